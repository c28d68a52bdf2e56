// Package publish defines the output contract the mapping worker pushes
// results through, generalized away from any specific transport's
// message/topic types.
package publish

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/pointcloud"
)

// Sink consumes mapping results. Implementations translate to whatever
// transport the embedder uses (ROS, gRPC, a local recorder); this module
// never depends on a transport directly.
type Sink interface {
	// PublishTransform broadcasts the world pose of a keyframe or held
	// frame, mapping the fixed map frame to the moving spin-LiDAR frame.
	PublishTransform(pose *mat.Dense, stamp time.Time)

	// PublishClouds delivers the world-frame point clouds for each sensor
	// branch at this timestamp, keyed by sensor name.
	PublishClouds(clouds map[string][]pointcloud.Point, stamp time.Time)

	// PublishPath delivers the cumulative trajectory so far.
	PublishPath(traj odometry.Trajectory)

	// PublishLoopMarkers delivers the marker segments for every loop edge
	// accepted so far. Called only on a step that accepted a new edge.
	PublishLoopMarkers(markers []loopclosure.MarkerPair)
}

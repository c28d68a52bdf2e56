// Package odometry implements the per-frame keyframe-gating driver that
// ties feature extraction, scan registration, and the local-map window
// together into a trajectory.
package odometry

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/localmap"
	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/registration"
	"github.com/unnamed2/tailor/spatialmath"
)

// YieldGate is the second, post-extraction minimum-feature-count check the
// driver applies before attempting registration, with its own thresholds:
// looser than the feature package's extraction-time gate on spin-LiDAR line
// points, equal on plane points, and stricter on solid-LiDAR output, which
// extraction only requires to be non-empty. A nil slice is not checked.
type YieldGate struct {
	MinLine, MinPlane, MinNonPlanar int
}

// DefaultYieldGate is the tuning used in production.
func DefaultYieldGate() YieldGate {
	return YieldGate{MinLine: 10, MinPlane: 100, MinNonPlanar: 100}
}

func (g YieldGate) ok(fs pointcloud.FeatureSet) bool {
	if fs.Line != nil && len(fs.Line) < g.MinLine {
		return false
	}
	if fs.Plane != nil && len(fs.Plane) < g.MinPlane {
		return false
	}
	if fs.NonPlanar != nil && len(fs.NonPlanar) < g.MinNonPlanar {
		return false
	}
	return true
}

// Config tunes the driver's keyframe gate and registration solver.
type Config struct {
	KeyframeX, KeyframeY, KeyframeZ           float64
	KeyframeRoll, KeyframePitch, KeyframeYaw  float64
	YieldGate                                 YieldGate
	Registration                              registration.Config
}

// DefaultConfig is the tuning used in production.
func DefaultConfig() Config {
	return Config{
		KeyframeX:     0.5,
		KeyframeY:     0.5,
		KeyframeZ:     0.1,
		KeyframeRoll:  0.02,
		KeyframePitch: 0.02,
		KeyframeYaw:   0.02,
		YieldGate:     DefaultYieldGate(),
		Registration:  registration.DefaultConfig(),
	}
}

// TrajectoryEntry is one stamped world pose.
type TrajectoryEntry struct {
	Stamp time.Time
	Pose  *mat.Dense
}

// Trajectory is the ordered, mutable-suffix sequence of keyframe poses.
type Trajectory []TrajectoryEntry

// Driver runs the odometry loop: gate, register, gate again (keyframe),
// insert.
type Driver struct {
	window           *localmap.Window
	trajectory       Trajectory
	nextInitialGuess spatialmath.Transform
	cfg              Config
}

// NewDriver returns a driver with an empty window and trajectory.
func NewDriver(cfg Config) *Driver {
	return &Driver{window: localmap.New(), cfg: cfg}
}

// Window exposes the local-map window, e.g. for loop-closure back-propagation.
func (d *Driver) Window() *localmap.Window { return d.window }

// Trajectory returns the accumulated trajectory. The returned slice aliases
// the driver's internal storage; callers must not retain it across a call
// that might rewrite a suffix (e.g. loop closure) without copying first.
func (d *Driver) Trajectory() Trajectory { return d.trajectory }

// RewriteTrajectorySuffix overwrites trajectory poses from index r onward,
// used by loop closure to apply a pose-graph correction retroactively.
func (d *Driver) RewriteTrajectorySuffix(r int, poseAt func(index int) *mat.Dense) {
	for i := r; i < len(d.trajectory); i++ {
		d.trajectory[i].Pose = poseAt(i)
	}
}

// Step processes one feature frame. It returns the published world pose and
// whether a keyframe was inserted. A nil pose means the frame was dropped
// (soft error): either the yield gate rejected it, or registration reported
// no feature found.
func (d *Driver) Step(frame pointcloud.FeatureFrame, stamp time.Time) (*mat.Dense, bool) {
	if !d.cfg.YieldGate.ok(frame.Spin) || !d.cfg.YieldGate.ok(frame.Solid) {
		return nil, false
	}

	if d.window.Empty() {
		identity := spatialmath.Identity().ToMatrix()
		d.window.Push(frame, identity)
		d.trajectory = append(d.trajectory, TrajectoryEntry{Stamp: stamp, Pose: identity})
		d.nextInitialGuess = spatialmath.Identity()
		return identity, true
	}

	localFrame := d.window.Aggregate()
	result := registration.Solve(d.nextInitialGuess, frame, localFrame, d.cfg.Registration)
	if !result.FoundFeature {
		return nil, false
	}
	d.nextInitialGuess = result.Transform

	var world mat.Dense
	world.Mul(d.window.HeadPose(), result.Transform.ToMatrix())

	if d.withinKeyframeGate(result.Transform) {
		return &world, false
	}

	d.window.Push(frame, &world)
	d.trajectory = append(d.trajectory, TrajectoryEntry{Stamp: stamp, Pose: &world})
	return &world, true
}

func (d *Driver) withinKeyframeGate(tr spatialmath.Transform) bool {
	c := d.cfg
	return math.Abs(tr.X) < c.KeyframeX &&
		math.Abs(tr.Y) < c.KeyframeY &&
		math.Abs(tr.Z) < c.KeyframeZ &&
		math.Abs(tr.Roll) < c.KeyframeRoll &&
		math.Abs(tr.Pitch) < c.KeyframePitch &&
		math.Abs(tr.Yaw) < c.KeyframeYaw
}

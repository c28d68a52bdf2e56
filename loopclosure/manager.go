// Package loopclosure detects and corrects accumulated odometry drift by
// matching the current keyframe against earlier ones and relaxing the
// resulting pose graph.
package loopclosure

import (
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/localmap"
	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/spatialmath"
)

// Edge is a constraint between two keyframes: the measured relative pose
// from Source to Target, and a scalar residual from whatever verified it.
type Edge struct {
	Source, Target int
	Relative       *mat.Dense
	Loss           float64
}

// MarkerPair is one line segment connecting the world positions of an
// accepted edge's two endpoints, for visualization.
type MarkerPair struct {
	From, To [3]float64
}

// Config tunes the manager.
type Config struct {
	Enable      bool
	MaxLoss     float64
	ResetCount  int
	InitialLoad int
}

// DefaultConfig is the tuning used in production.
func DefaultConfig() Config {
	return Config{Enable: true, MaxLoss: 0.05, ResetCount: 5, InitialLoad: 100}
}

// RewriteSuffix applies corrected world poses to every trajectory entry at
// or after the given absolute keyframe index, resolving a pose via poseAt.
type RewriteSuffix func(fromAbsoluteIndex int, poseAt func(absoluteIndex int) *mat.Dense)

// Manager accumulates the full keyframe history (unbounded, unlike
// localmap.Window's capped ring buffer) and periodically searches it for
// loop closures.
type Manager struct {
	cfg     Config
	counter int

	window        *localmap.Window
	rewriteSuffix RewriteSuffix

	poses   []spatialmath.Transform
	history []pointcloud.FeatureFrame
	edges   []Edge
}

// NewManager wires a manager to the odometry driver's window, for
// back-propagating corrected poses into the registration target, and a
// RewriteSuffix callback, for back-propagating into the full trajectory.
func NewManager(cfg Config, window *localmap.Window, rewriteSuffix RewriteSuffix) *Manager {
	return &Manager{cfg: cfg, counter: cfg.InitialLoad, window: window, rewriteSuffix: rewriteSuffix}
}

// Step records the newest keyframe's pose and features, then, once the
// cooldown counter elapses, asks detector for candidates. It returns the
// (possibly corrected) world pose of the newest keyframe and, when this call
// accepts at least one edge, the marker segments for every edge accepted so
// far (nil otherwise).
func (m *Manager) Step(detector Detector, feats pointcloud.FeatureFrame, pose *mat.Dense) (*mat.Dense, []MarkerPair) {
	tr, err := spatialmath.FromMatrix(pose)
	if err != nil {
		return pose, nil
	}
	m.poses = append(m.poses, tr)
	m.history = append(m.history, feats)

	if !m.cfg.Enable || detector == nil {
		return pose, nil
	}

	m.counter--
	if m.counter > 0 {
		return pose, nil
	}
	m.counter = m.cfg.ResetCount

	var accepted []Edge
	for _, e := range detector.Detect(feats, m.poses, m.history) {
		if e.Loss <= m.cfg.MaxLoss {
			accepted = append(accepted, e)
		}
	}
	if len(accepted) == 0 {
		return pose, nil
	}
	m.edges = append(m.edges, accepted...)

	graphEdges := append(consecutiveEdges(m.poses), m.edges...)
	corrected := optimize(m.poses, graphEdges)
	m.poses = corrected

	earliest := accepted[0].Source
	for _, e := range accepted[1:] {
		if e.Source < earliest {
			earliest = e.Source
		}
	}

	last := len(corrected) - 1
	poseAt := func(absoluteIndex int) *mat.Dense {
		if absoluteIndex < 0 || absoluteIndex > last {
			return nil
		}
		return corrected[absoluteIndex].ToMatrix()
	}

	for back := 1; back <= m.window.Size(); back++ {
		if p := poseAt(last - back + 1); p != nil {
			m.window.Set(back, p)
		}
	}
	if m.rewriteSuffix != nil {
		m.rewriteSuffix(earliest, poseAt)
	}

	return corrected[last].ToMatrix(), buildMarkers(m.edges, corrected)
}

func buildMarkers(edges []Edge, poses []spatialmath.Transform) []MarkerPair {
	markers := make([]MarkerPair, 0, len(edges))
	for _, e := range edges {
		if e.Source < 0 || e.Source >= len(poses) || e.Target < 0 || e.Target >= len(poses) {
			continue
		}
		from := poses[e.Source].Translation()
		to := poses[e.Target].Translation()
		markers = append(markers, MarkerPair{
			From: [3]float64{from.X, from.Y, from.Z},
			To:   [3]float64{to.X, to.Y, to.Z},
		})
	}
	return markers
}

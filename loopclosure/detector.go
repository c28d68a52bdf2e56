package loopclosure

import (
	"math"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/registration"
	"github.com/unnamed2/tailor/spatialmath"
)

// Detector searches the full keyframe history for loop-closure candidates
// against the newest keyframe (the last element of poses/history). Matching
// strategy (proximity, descriptor, …) is left to the implementation.
type Detector interface {
	Detect(feats pointcloud.FeatureFrame, poses []spatialmath.Transform, history []pointcloud.FeatureFrame) []Edge
}

// NearestPoseDetector proposes the closest-by-translation earlier keyframe
// outside MinGap steps back, then verifies the candidate by running the
// registration solver between the two keyframes' features, emitting an Edge
// only if the solver converges and found a feature to register against.
type NearestPoseDetector struct {
	MinGap       int
	MaxRadius    float64
	Registration registration.Config
}

// DefaultNearestPoseDetector is a reasonable builtin search policy.
func DefaultNearestPoseDetector() NearestPoseDetector {
	return NearestPoseDetector{MinGap: 30, MaxRadius: 5.0, Registration: registration.DefaultConfig()}
}

func (d NearestPoseDetector) Detect(feats pointcloud.FeatureFrame, poses []spatialmath.Transform, history []pointcloud.FeatureFrame) []Edge {
	current := len(poses) - 1
	if current < d.MinGap {
		return nil
	}

	best := -1
	bestDist := d.MaxRadius
	for i := 0; i <= current-d.MinGap; i++ {
		dist := poses[current].Translation().Sub(poses[i].Translation()).Norm()
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	result := registration.Solve(spatialmath.Identity(), feats, history[best], d.Registration)
	if !result.FoundFeature || !result.Converged {
		return nil
	}

	return []Edge{{
		Source:   best,
		Target:   current,
		Relative: result.Transform.ToMatrix(),
		Loss:     residualLoss(result.Transform),
	}}
}

func residualLoss(tr spatialmath.Transform) float64 {
	return math.Sqrt(tr.X*tr.X + tr.Y*tr.Y + tr.Z*tr.Z)
}

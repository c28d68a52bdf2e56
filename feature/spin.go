// Package feature turns raw synced frames into the line/plane/non-planar
// geometric primitives the residual assembler matches against.
//
// ExtractSpin implements the spin-LiDAR side (curvature-sorted per-ring edge
// and plane selection); ExtractSolid implements the solid-LiDAR side
// (per-neighborhood plane fit). Both enforce a minimum-yield gate and report
// an error rather than returning a feature set too sparse to register
// against.
package feature

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/unnamed2/tailor/pointcloud"
)

// SpinConfig tunes the curvature-based spin-LiDAR extractor.
type SpinConfig struct {
	NumRings        int
	LineK           int // line features picked per ring segment
	PlaneK          int // plane features picked per ring segment
	Segments        int // ring subdivisions used for top-K selection
	MinPointGap     int // minimum index spacing between picked points
	MinLinePoints   int // yield gate: minimum accepted line points
	MinPlanePoints  int // yield gate: minimum accepted plane points
	CurvatureWindow int // neighbors on each side used for curvature
}

// DefaultSpinConfig is the tuning used in production for a 16-ring sweep.
func DefaultSpinConfig() SpinConfig {
	return SpinConfig{
		NumRings:        16,
		LineK:           2,
		PlaneK:          4,
		Segments:        6,
		MinPointGap:     5,
		MinLinePoints:   20,
		MinPlanePoints:  100,
		CurvatureWindow: 5,
	}
}

// ExtractSpin computes curvature-sorted line and plane features from a dense
// multi-ring spin-LiDAR sweep. It reports an error (and extracts nothing
// usable) when the minimum yield thresholds in cfg are not met, so a sweep
// too sparse to register reliably never silently feeds the solver.
func ExtractSpin(points []pointcloud.Point, cfg SpinConfig) (pointcloud.FeatureSet, error) {
	rings := groupByRing(points, cfg.NumRings)

	var out pointcloud.FeatureSet
	for _, ring := range rings {
		if len(ring) < 2*cfg.CurvatureWindow+1 {
			continue
		}
		curv := curvature(ring, cfg.CurvatureWindow)
		line, plane := pickBySegment(ring, curv, cfg)
		out.Line = append(out.Line, line...)
		out.Plane = append(out.Plane, plane...)
	}

	if len(out.Line) < cfg.MinLinePoints || len(out.Plane) < cfg.MinPlanePoints {
		return pointcloud.FeatureSet{}, errors.Errorf(
			"spin-lidar feature yield too low: %d line (need %d), %d plane (need %d)",
			len(out.Line), cfg.MinLinePoints, len(out.Plane), cfg.MinPlanePoints)
	}
	return out, nil
}

// groupByRing buckets points by laser ring index, preserving within-ring
// ordering (which approximates angular order around the sweep).
func groupByRing(points []pointcloud.Point, numRings int) [][]pointcloud.Point {
	rings := make([][]pointcloud.Point, numRings)
	for _, p := range points {
		r := int(p.Ring)
		if r < 0 || r >= numRings {
			continue
		}
		rings[r] = append(rings[r], p)
	}
	return rings
}

// curvature scores each point in a ring by how far it deviates from the
// chord of its local neighborhood: large values mean sharp edges, small
// values mean locally flat surface.
func curvature(ring []pointcloud.Point, window int) []float64 {
	n := len(ring)
	scores := make([]float64, n)
	for i := window; i < n-window; i++ {
		var sx, sy, sz float64
		for d := -window; d <= window; d++ {
			if d == 0 {
				continue
			}
			p := ring[i+d].Position
			sx += p.X - ring[i].Position.X
			sy += p.Y - ring[i].Position.Y
			sz += p.Z - ring[i].Position.Z
		}
		scores[i] = math.Sqrt(sx*sx + sy*sy + sz*sz)
	}
	return scores
}

// pickBySegment divides a ring into cfg.Segments angular buckets (by index
// range, a stand-in for azimuth since points within a ring are already
// stored in sweep order) and, within each bucket, selects the top LineK
// highest-curvature points as line features and the bottom PlaneK
// lowest-curvature points as plane features, enforcing MinPointGap spacing
// between picks to avoid clustering all selections on one sharp corner.
func pickBySegment(ring []pointcloud.Point, curv []float64, cfg SpinConfig) (line, plane []pointcloud.Point) {
	n := len(ring)
	segments := cfg.Segments
	if segments <= 0 {
		segments = 1
	}
	segLen := n / segments
	if segLen == 0 {
		segLen = n
		segments = 1
	}

	for s := 0; s < segments; s++ {
		start := s * segLen
		end := start + segLen
		if s == segments-1 {
			end = n
		}
		idx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			idx = append(idx, i)
		}

		sort.Slice(idx, func(a, b int) bool { return curv[idx[a]] > curv[idx[b]] })
		line = append(line, pickSpaced(ring, idx, cfg.LineK, cfg.MinPointGap)...)

		sort.Slice(idx, func(a, b int) bool { return curv[idx[a]] < curv[idx[b]] })
		plane = append(plane, pickSpaced(ring, idx, cfg.PlaneK, cfg.MinPointGap)...)
	}
	return line, plane
}

func pickSpaced(ring []pointcloud.Point, sortedIdx []int, k, minGap int) []pointcloud.Point {
	var picked []pointcloud.Point
	var pickedIdx []int
	for _, i := range sortedIdx {
		if len(picked) >= k {
			break
		}
		tooClose := false
		for _, j := range pickedIdx {
			if abs(i-j) < minGap {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		picked = append(picked, ring[i])
		pickedIdx = append(pickedIdx, i)
	}
	return picked
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

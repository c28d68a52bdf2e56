package registration

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/spatialmath"
)

func wall(n int) []pointcloud.Point {
	pts := make([]pointcloud.Point, n)
	for i := 0; i < n; i++ {
		x := float64(i%20) * 0.2
		y := float64(i/20) * 0.2
		pts[i] = pointcloud.Point{Position: r3.Vector{X: x, Y: y, Z: 0}}
	}
	return pts
}

// edge returns two perpendicular edges of n points each, one along x and one
// along y, so that the line features pin down translation along both axes.
func edge(n int) []pointcloud.Point {
	pts := make([]pointcloud.Point, 0, 2*n)
	for i := 0; i < n; i++ {
		pts = append(pts, pointcloud.Point{Position: r3.Vector{X: float64(i) * 0.1, Y: 2, Z: 0}})
	}
	for i := 0; i < n; i++ {
		pts = append(pts, pointcloud.Point{Position: r3.Vector{X: -1, Y: float64(i) * 0.1, Z: 0}})
	}
	return pts
}

func TestSolveRecoversSmallMotion(t *testing.T) {
	local := pointcloud.FeatureFrame{
		Spin: pointcloud.FeatureSet{Line: edge(30), Plane: wall(200)},
	}

	motion := spatialmath.Transform{X: 0.05, Y: -0.03, Z: 0.01, Roll: 0.01, Pitch: -0.01, Yaw: 0.02}
	inv, err := motion.Inverse()
	test.That(t, err, test.ShouldBeNil)

	// source = local map transformed by motion's inverse, so the true
	// correction recovering source->local is `motion` itself.
	apply := func(v r3.Vector) r3.Vector { return inv.Apply(v) }
	source := pointcloud.FeatureFrame{
		Spin: pointcloud.FeatureSet{
			Line:  transform(local.Spin.Line, apply),
			Plane: transform(local.Spin.Plane, apply),
		},
	}

	result := Solve(spatialmath.Identity(), source, local, DefaultConfig())
	test.That(t, result.FoundFeature, test.ShouldBeTrue)

	test.That(t, math.Abs(result.Transform.X-motion.X), test.ShouldBeLessThan, 1e-3)
	test.That(t, math.Abs(result.Transform.Y-motion.Y), test.ShouldBeLessThan, 1e-3)
	test.That(t, math.Abs(result.Transform.Z-motion.Z), test.ShouldBeLessThan, 1e-3)
}

func TestSolveNoFeatureFound(t *testing.T) {
	result := Solve(spatialmath.Identity(), pointcloud.FeatureFrame{}, pointcloud.FeatureFrame{}, DefaultConfig())
	test.That(t, result.FoundFeature, test.ShouldBeFalse)
	test.That(t, result.Transform, test.ShouldResemble, spatialmath.Identity())
}

func TestIsDegenerateFullRankLeavesDiagonalUnchanged(t *testing.T) {
	cfg := DefaultConfig()

	h := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		h.Set(i, i, 2*cfg.DegenerateThreshold)
	}

	test.That(t, isDegenerate(h, cfg.DegenerateThreshold), test.ShouldBeFalse)

	// Solve only dampens h's diagonal when isDegenerate reports true on
	// iteration 1; a full-rank h above threshold must leave every diagonal
	// entry exactly as constructed.
	for i := 0; i < 6; i++ {
		test.That(t, h.At(i, i), test.ShouldEqual, 2*cfg.DegenerateThreshold)
	}
}

func TestIsDegenerateRankDeficientReturnsTrue(t *testing.T) {
	cfg := DefaultConfig()

	h := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		h.Set(i, i, 2*cfg.DegenerateThreshold)
	}
	// zero out one diagonal entry, as a corridor's axial direction would
	// leave no distinguishing features along that degree of freedom.
	h.Set(0, 0, 0)

	test.That(t, isDegenerate(h, cfg.DegenerateThreshold), test.ShouldBeTrue)
}

func TestSolveDegenerateCorridorReturnsFinitePose(t *testing.T) {
	// Plane features only along x-axis walls (constant x, varying y/z): their
	// normals constrain translation along x only, leaving translation along
	// y and z and rotation about x unconstrained, so H is degenerate along
	// those directions on iteration 1.
	wallX := func(x float64, n int) []pointcloud.Point {
		pts := make([]pointcloud.Point, n)
		for i := 0; i < n; i++ {
			pts[i] = pointcloud.Point{Position: r3.Vector{X: x, Y: float64(i%10) * 0.2, Z: float64(i/10) * 0.2}}
		}
		return pts
	}

	local := pointcloud.FeatureFrame{Solid: pointcloud.FeatureSet{Plane: wallX(0, 200)}}
	source := pointcloud.FeatureFrame{Solid: pointcloud.FeatureSet{Plane: wallX(0.02, 200)}}

	result := Solve(spatialmath.Identity(), source, local, DefaultConfig())
	test.That(t, result.FoundFeature, test.ShouldBeTrue)

	test.That(t, math.IsNaN(result.Transform.X), test.ShouldBeFalse)
	test.That(t, math.IsInf(result.Transform.X, 0), test.ShouldBeFalse)
	test.That(t, math.Abs(result.Transform.Y), test.ShouldBeLessThan, 1e-3)
	test.That(t, math.Abs(result.Transform.Z), test.ShouldBeLessThan, 1e-3)
}

func transform(pts []pointcloud.Point, apply func(r3.Vector) r3.Vector) []pointcloud.Point {
	out := make([]pointcloud.Point, len(pts))
	for i, p := range pts {
		np := p
		np.Position = apply(p.Position)
		out[i] = np
	}
	return out
}

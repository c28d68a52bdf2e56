package odometry

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/unnamed2/tailor/pointcloud"
)

func wallFrame(n int, xOffset float64) pointcloud.FeatureFrame {
	pts := make([]pointcloud.Point, n)
	for i := 0; i < n; i++ {
		x := float64(i%20)*0.2 + xOffset
		y := float64(i/20) * 0.2
		pts[i] = pointcloud.Point{Position: r3.Vector{X: x, Y: y, Z: 0}}
	}
	edge := make([]pointcloud.Point, 30)
	for i := range edge {
		edge[i] = pointcloud.Point{Position: r3.Vector{X: xOffset, Y: float64(i) * 0.1, Z: 0}}
	}
	return pointcloud.FeatureFrame{Spin: pointcloud.FeatureSet{Line: edge, Plane: pts}}
}

func TestStepSeedsWindowOnFirstFrame(t *testing.T) {
	d := NewDriver(DefaultConfig())
	pose, keyframe := d.Step(wallFrame(200, 0), time.Unix(0, 0))
	test.That(t, keyframe, test.ShouldBeTrue)
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, d.window.Size(), test.ShouldEqual, 1)
	test.That(t, len(d.trajectory), test.ShouldEqual, 1)
}

func TestStepRejectsBelowYieldGate(t *testing.T) {
	d := NewDriver(DefaultConfig())
	sparse := pointcloud.FeatureFrame{
		Spin: pointcloud.FeatureSet{Plane: []pointcloud.Point{{Position: r3.Vector{}}}},
	}
	pose, keyframe := d.Step(sparse, time.Unix(0, 0))
	test.That(t, pose, test.ShouldBeNil)
	test.That(t, keyframe, test.ShouldBeFalse)
	test.That(t, d.window.Empty(), test.ShouldBeTrue)
}

func TestStepHoldsNonKeyframeOutOfWindow(t *testing.T) {
	d := NewDriver(DefaultConfig())
	d.Step(wallFrame(200, 0), time.Unix(0, 0))

	// a frame with essentially no motion should pass the keyframe gate
	// and stay out of the window, but still report a pose.
	pose, keyframe := d.Step(wallFrame(200, 0), time.Unix(1, 0))
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, keyframe, test.ShouldBeFalse)
	test.That(t, d.window.Size(), test.ShouldEqual, 1)
}

func TestStepInsertsKeyframeOnLargeMotion(t *testing.T) {
	d := NewDriver(DefaultConfig())
	d.Step(wallFrame(200, 0), time.Unix(0, 0))

	pose, keyframe := d.Step(wallFrame(200, 0.6), time.Unix(1, 0))
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, keyframe, test.ShouldBeTrue)
	test.That(t, d.window.Size(), test.ShouldEqual, 2)
	test.That(t, len(d.Trajectory()), test.ShouldEqual, 2)
}

package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRoundTrip(t *testing.T) {
	cases := []Transform{
		Identity(),
		{X: 1, Y: 2, Z: 3, Roll: 0.1, Pitch: 0.2, Yaw: 0.3},
		{X: -4, Y: 0.5, Z: 10, Roll: -0.4, Pitch: 0.05, Yaw: 1.0},
	}

	for _, tc := range cases {
		m := tc.ToMatrix()
		back, err := FromMatrix(m)
		test.That(t, err, test.ShouldBeNil)

		test.That(t, back.X, test.ShouldAlmostEqual, tc.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, tc.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, tc.Z, 1e-9)
		test.That(t, back.Roll, test.ShouldAlmostEqual, tc.Roll, 1e-9)
		test.That(t, back.Pitch, test.ShouldAlmostEqual, tc.Pitch, 1e-9)
		test.That(t, back.Yaw, test.ShouldAlmostEqual, tc.Yaw, 1e-9)
	}
}

func TestInverse(t *testing.T) {
	tr := Transform{X: 1, Y: -2, Z: 0.5, Roll: 0.1, Pitch: -0.2, Yaw: 0.3}
	inv, err := tr.Inverse()
	test.That(t, err, test.ShouldBeNil)

	composed, err := tr.Compose(inv)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, math.Abs(composed.X), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(composed.Y), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(composed.Z), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(composed.Roll), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(composed.Pitch), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(composed.Yaw), test.ShouldBeLessThan, 1e-9)
}

func TestApplyIdentity(t *testing.T) {
	p := r3.Vector{X: 1, Y: 2, Z: 3}
	got := Identity().Apply(p)
	test.That(t, got, test.ShouldResemble, p)
}

package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestQuaternionIdentity(t *testing.T) {
	q := Identity().Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, 1.0)
	test.That(t, q.Imag, test.ShouldAlmostEqual, 0.0)
	test.That(t, q.Jmag, test.ShouldAlmostEqual, 0.0)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, 0.0)
}

func TestQuaternionIsUnit(t *testing.T) {
	tr := Transform{Roll: 0.3, Pitch: -0.7, Yaw: 1.1}
	q := tr.Quaternion()
	norm := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	test.That(t, norm, test.ShouldAlmostEqual, 1.0)
}

func TestQuaternionYaw90(t *testing.T) {
	tr := Transform{Yaw: math.Pi / 2}
	q := tr.Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, math.Cos(math.Pi/4))
	test.That(t, q.Kmag, test.ShouldAlmostEqual, math.Sin(math.Pi/4))
}

// Package spatialmath provides the 6-DoF pose representation used throughout
// tailor and its conversion to and from 4x4 homogeneous transform matrices.
package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Transform is a rigid-body pose expressed as three translation components
// and three Euler angles. The rotation is always composed in ZYX intrinsic
// order: R = Rz(Yaw) * Ry(Pitch) * Rx(Roll). Every conversion in this package
// uses that same order; changing it here changes it everywhere, which is the
// point.
type Transform struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
}

// Identity returns the zero transform.
func Identity() Transform {
	return Transform{}
}

// ToMatrix builds the 4x4 homogeneous matrix for this transform.
func (t Transform) ToMatrix() *mat.Dense {
	rot := mgl64.HomogRotate3DZ(t.Yaw).Mul4(mgl64.HomogRotate3DY(t.Pitch)).Mul4(mgl64.HomogRotate3DX(t.Roll))
	m := mgl4ToDense(rot)
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	return m
}

// FromMatrix extracts the ZYX Euler decomposition of a 4x4 homogeneous
// matrix. It is only well-defined away from the pitch = +/-pi/2 gimbal
// singularity, which scan-to-scan pose increments never approach since they
// stay small between consecutive keyframes.
func FromMatrix(m *mat.Dense) (Transform, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Transform{}, errors.Errorf("expected 4x4 matrix, got %dx%d", r, c)
	}

	r00, r10, r20 := m.At(0, 0), m.At(1, 0), m.At(2, 0)
	r21, r22 := m.At(2, 1), m.At(2, 2)

	pitch := math.Asin(clamp(-r20, -1, 1))
	yaw := math.Atan2(r10, r00)
	roll := math.Atan2(r21, r22)

	return Transform{
		X:     m.At(0, 3),
		Y:     m.At(1, 3),
		Z:     m.At(2, 3),
		Roll:  roll,
		Pitch: pitch,
		Yaw:   yaw,
	}, nil
}

// Compose returns the transform equivalent to applying t first and then
// other, i.e. matrix(t) * matrix(other).
func (t Transform) Compose(other Transform) (Transform, error) {
	var m mat.Dense
	m.Mul(t.ToMatrix(), other.ToMatrix())
	return FromMatrix(&m)
}

// Inverse returns the inverse transform, computed via matrix inverse of the
// 4x4 homogeneous form. It only fails for a numerically singular input,
// which never occurs for a pure rigid transform.
func (t Transform) Inverse() (Transform, error) {
	inv, err := InverseMatrix(t.ToMatrix())
	if err != nil {
		return Transform{}, err
	}
	return FromMatrix(inv)
}

// InverseMatrix inverts a 4x4 homogeneous transform matrix.
func InverseMatrix(m *mat.Dense) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, errors.Wrap(err, "singular transform matrix")
	}
	return &inv, nil
}

// Rotation returns the 3x3 rotation block of the transform's matrix form.
func (t Transform) Rotation() *mat.Dense {
	m := t.ToMatrix()
	rot := mat.NewDense(3, 3, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			rot.Set(row, col, m.At(row, col))
		}
	}
	return rot
}

// Translation returns the translation component as a vector.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t.X, Y: t.Y, Z: t.Z}
}

// Apply rotates and translates p by this transform.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return TransformPoint(t.ToMatrix(), p)
}

// TransformPoint applies a 4x4 homogeneous matrix to a 3D point.
func TransformPoint(m *mat.Dense, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + m.At(0, 3),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + m.At(1, 3),
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + m.At(2, 3),
	}
}

// RotatePoint applies the rotation block of a 4x4 homogeneous matrix to a
// vector, ignoring translation.
func RotatePoint(m *mat.Dense, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z,
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z,
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z,
	}
}

// RotateTranspose applies R^T to a vector, where R is the rotation block of
// a 4x4 homogeneous matrix. Used by the residual assembler, which needs
// R^T*e far more often than it needs the explicit transpose matrix.
func RotateTranspose(m *mat.Dense, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(1, 0)*p.Y + m.At(2, 0)*p.Z,
		Y: m.At(0, 1)*p.X + m.At(1, 1)*p.Y + m.At(2, 1)*p.Z,
		Z: m.At(0, 2)*p.X + m.At(1, 2)*p.Y + m.At(2, 2)*p.Z,
	}
}

func mgl4ToDense(m mgl64.Mat4) *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			d.Set(row, col, m.At(row, col))
		}
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

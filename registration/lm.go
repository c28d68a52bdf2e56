// Package registration implements the damped Gauss-Newton (Levenberg-
// Marquardt-style) solver that registers a frame's features against a
// local-map feature frame, producing a 6-DoF pose increment.
package registration

import (
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/residual"
	"github.com/unnamed2/tailor/spatialmath"
)

// Config tunes the solver.
type Config struct {
	MaxIterations      int
	DegenerateThreshold float64 // eigenvalue floor below which H's diagonal is damped
	DampingValue       float64 // amount added to each diagonal entry when degenerate
	TranslationEps2    float64 // squared-norm convergence threshold for translation
	RotationEps2       float64 // squared-norm convergence threshold for rotation
	Residual           residual.Config
}

// DefaultConfig is the tuning used in production: 30 iterations, light
// damping when the scene geometry goes degenerate, tight convergence
// thresholds on both translation and rotation.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       30,
		DegenerateThreshold: 10.0,
		DampingValue:        0.5,
		TranslationEps2:     1e-7,
		RotationEps2:        1e-7,
		Residual:            residual.DefaultConfig(),
	}
}

// Result carries the outcome of a Solve call along with whether any
// correspondences were found at all, so callers can distinguish "converged
// at this pose" from "no feature found, pose unchanged".
type Result struct {
	Transform    spatialmath.Transform
	Converged    bool
	FoundFeature bool
}

// Solve iterates damped Gauss-Newton starting at initial, registering
// source against localMap, for up to cfg.MaxIterations steps. It is
// deterministic given the same correspondences.
func Solve(initial spatialmath.Transform, source, localMap pointcloud.FeatureFrame, cfg Config) Result {
	estimate := initial
	degenerateChecked := false
	var damp bool

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		sys := residual.Assemble(estimate, source, localMap, cfg.Residual)
		if sys.Rows == 0 {
			return Result{Transform: estimate, FoundFeature: false}
		}

		var h mat.Dense
		h.Mul(sys.A.T(), sys.A)

		if !degenerateChecked {
			damp = isDegenerate(&h, cfg.DegenerateThreshold)
			degenerateChecked = true
		}
		if damp {
			for i := 0; i < 6; i++ {
				h.Set(i, i, h.At(i, i)+cfg.DampingValue)
			}
		}

		var g mat.Dense
		g.Mul(sys.A.T(), sys.B)

		var qr mat.QR
		qr.Factorize(&h)
		var delta mat.Dense
		if err := qr.SolveTo(&delta, false, &g); err != nil {
			return Result{Transform: estimate, FoundFeature: true}
		}

		estimate.X += delta.At(0, 0)
		estimate.Y += delta.At(1, 0)
		estimate.Z += delta.At(2, 0)
		estimate.Roll += delta.At(3, 0)
		estimate.Pitch += delta.At(4, 0)
		estimate.Yaw += delta.At(5, 0)

		transNorm2 := sq(delta.At(0, 0)) + sq(delta.At(1, 0)) + sq(delta.At(2, 0))
		rotNorm2 := sq(delta.At(3, 0)) + sq(delta.At(4, 0)) + sq(delta.At(5, 0))

		if transNorm2 < cfg.TranslationEps2 && rotNorm2 < cfg.RotationEps2 {
			return Result{Transform: estimate, Converged: true, FoundFeature: true}
		}
	}

	return Result{Transform: estimate, FoundFeature: true}
}

// isDegenerate inspects h's eigenvalues and reports whether any is below
// threshold. h is symmetric (A^T*A, optionally already damped), so a
// symmetric eigendecomposition is used rather than a general one.
func isDegenerate(h *mat.Dense, threshold float64) bool {
	sym := toSym(h)
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return false
	}
	for _, v := range eig.Values(nil) {
		if v < threshold {
			return true
		}
	}
	return false
}

func toSym(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			data[i*n+j] = d.At(i, j)
		}
	}
	return mat.NewSymDense(n, data)
}

func sq(v float64) float64 { return v * v }

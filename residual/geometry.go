package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

func centroidOf(pts []r3.Vector) r3.Vector {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(len(pts)))
}

func covarianceOf(pts []r3.Vector, centroid r3.Vector) *mat.SymDense {
	var xx, xy, xz, yy, yz, zz float64
	for _, p := range pts {
		d := p.Sub(centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	n := float64(len(pts))
	return mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		0, yy / n, yz / n,
		0, 0, zz / n,
	})
}

// eigenDecompose returns the eigenvalues of cov in ascending order and the
// matrix whose columns are the corresponding unit eigenvectors.
func eigenDecompose(cov *mat.SymDense) (values [3]float64, vectors *mat.Dense, ok bool) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return values, nil, false
	}
	got := eig.Values(nil)
	copy(values[:], got)
	vectors = mat.NewDense(3, 3, nil)
	eig.VectorsTo(vectors)
	return values, vectors, true
}

func columnVector(m *mat.Dense, col int) r3.Vector {
	return r3.Vector{X: m.At(0, col), Y: m.At(1, col), Z: m.At(2, col)}
}

// fitLine fits a line to pts via covariance eigen decomposition. It accepts
// the fit only when the largest eigenvalue dominates the second by at least
// minRatio, rejecting correspondence sets too isotropic to pin down a
// direction.
func fitLine(pts []r3.Vector, minRatio float64) (centroid, direction r3.Vector, ok bool) {
	if len(pts) < 3 {
		return r3.Vector{}, r3.Vector{}, false
	}
	c := centroidOf(pts)
	values, vectors, ok := eigenDecompose(covarianceOf(pts, c))
	if !ok || values[2] <= 0 || values[2] < minRatio*values[1] {
		return r3.Vector{}, r3.Vector{}, false
	}
	return c, columnVector(vectors, 2), true
}

// fitPlane fits a plane to pts via covariance eigen decomposition. It
// accepts the fit only when the smallest eigenvalue is dominated by the
// second-smallest by at most maxRatio, rejecting correspondence sets too
// thick to pin down a normal.
func fitPlane(pts []r3.Vector, maxRatio float64) (centroid, normal r3.Vector, ok bool) {
	if len(pts) < 3 {
		return r3.Vector{}, r3.Vector{}, false
	}
	c := centroidOf(pts)
	values, vectors, ok := eigenDecompose(covarianceOf(pts, c))
	if !ok || values[1] <= 0 || values[0] >= maxRatio*values[1] {
		return r3.Vector{}, r3.Vector{}, false
	}
	return c, columnVector(vectors, 0), true
}

package feature

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/spatialmath"
)

// SolidConfig tunes the solid-LiDAR (narrow-FoV) extractor.
type SolidConfig struct {
	NeighborhoodK int     // points per local neighborhood used for the plane fit
	PlanarRatio   float64 // max (smallest eigenvalue / middle eigenvalue) to call a neighborhood planar
}

// DefaultSolidConfig is the tuning used in production.
func DefaultSolidConfig() SolidConfig {
	return SolidConfig{
		NeighborhoodK: 10,
		PlanarRatio:   0.1,
	}
}

// ExtractSolid partitions a narrow-FoV cloud into plane and non-planar
// points by fitting a local plane to each point's neighborhood via
// covariance eigen decomposition, then applies extrinsic to carry the
// result into the spin-LiDAR frame. The extrinsic is applied exactly as
// given; any inversion needed to get it pointing the right direction is the
// caller's responsibility.
func ExtractSolid(points []pointcloud.Point, extrinsic spatialmath.Transform, cfg SolidConfig) (pointcloud.FeatureSet, error) {
	if len(points) < cfg.NeighborhoodK+1 {
		return pointcloud.FeatureSet{}, errors.New("livox feature empty: not enough points for a neighborhood")
	}

	var out pointcloud.FeatureSet
	for i, p := range points {
		neighbors := bruteForceKNN(points, i, cfg.NeighborhoodK)
		if len(neighbors) < 3 {
			continue
		}
		_, eigenvalues, ok := fitPlaneEigen(neighbors)
		if !ok {
			continue
		}
		if eigenvalues[0] <= cfg.PlanarRatio*eigenvalues[1] {
			out.Plane = append(out.Plane, p)
		} else {
			out.NonPlanar = append(out.NonPlanar, p)
		}
	}

	if len(out.Plane) == 0 || len(out.NonPlanar) == 0 {
		return pointcloud.FeatureSet{}, errors.New("livox feature empty: no plane or no non-planar points extracted")
	}

	m := extrinsic.ToMatrix()
	apply := func(v r3.Vector) r3.Vector { return spatialmath.TransformPoint(m, v) }
	return out.Transform(apply), nil
}

// bruteForceKNN returns the k nearest neighbors (by Euclidean distance,
// excluding the point itself) of points[center].
func bruteForceKNN(points []pointcloud.Point, center, k int) []pointcloud.Point {
	type cand struct {
		idx  int
		dist float64
	}
	p := points[center].Position
	cands := make([]cand, 0, len(points)-1)
	for i, q := range points {
		if i == center {
			continue
		}
		d := q.Position.Sub(p).Norm2()
		cands = append(cands, cand{i, d})
	}
	// partial selection sort for the smallest k distances; neighborhoods are
	// small (tens of points) so this is cheap and avoids pulling in a
	// separate sort import for a one-shot partial selection.
	for i := 0; i < k && i < len(cands); i++ {
		best := i
		for j := i + 1; j < len(cands); j++ {
			if cands[j].dist < cands[best].dist {
				best = j
			}
		}
		cands[i], cands[best] = cands[best], cands[i]
	}
	n := k
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]pointcloud.Point, n)
	for i := 0; i < n; i++ {
		out[i] = points[cands[i].idx]
	}
	return out
}

// fitPlaneEigen fits a plane to a neighborhood by eigen-decomposing the
// point covariance. Eigenvalues are returned ascending; the eigenvector for
// the smallest eigenvalue is the plane normal.
func fitPlaneEigen(pts []pointcloud.Point) (normal r3.Vector, eigenvalues [3]float64, ok bool) {
	centroid := centroidOf(pts)
	cov := covarianceOf(pts, centroid)

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r3.Vector{}, eigenvalues, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	copy(eigenvalues[:], values)
	normal = r3.Vector{X: vectors.At(0, 0), Y: vectors.At(1, 0), Z: vectors.At(2, 0)}
	return normal, eigenvalues, true
}

func centroidOf(pts []pointcloud.Point) r3.Vector {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p.Position)
	}
	return c.Mul(1 / float64(len(pts)))
}

func covarianceOf(pts []pointcloud.Point, centroid r3.Vector) *mat.SymDense {
	var xx, xy, xz, yy, yz, zz float64
	for _, p := range pts {
		d := p.Position.Sub(centroid)
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

// Package residual assembles the overdetermined linear system A*delta = b
// that the LM solver minimizes: one row per accepted point-to-line,
// point-to-plane, or point-to-point correspondence between the current
// source features and the local-map feature frame.
package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/spatialmath"
)

// Config tunes correspondence search and acceptance.
type Config struct {
	K                int     // neighbors considered per correspondence
	LineEigenRatio   float64 // largest/second-largest eigenvalue floor to accept a line fit
	PlaneEigenRatio  float64 // smallest/second-smallest eigenvalue ceiling to accept a plane fit
	MaxPointDistance float64 // point-to-point correspondence distance gate, meters
	MaxRows          int     // hard cap on assembled rows
}

// DefaultConfig is the tuning used in production.
func DefaultConfig() Config {
	return Config{
		K:                5,
		LineEigenRatio:   3.0,
		PlaneEigenRatio:  0.1,
		MaxPointDistance: 1.0,
		MaxRows:          4000,
	}
}

// System is the assembled overdetermined linear system, A*delta = b, where
// delta is the 6-vector (tx, ty, tz, droll, dpitch, dyaw). A and B are nil
// when Rows is 0.
type System struct {
	A    *mat.Dense
	B    *mat.Dense
	Rows int
}

// Assemble builds the residual system for candidate pose estimate against
// localMap, from source's spin and solid feature sets.
func Assemble(estimate spatialmath.Transform, source, localMap pointcloud.FeatureFrame, cfg Config) *System {
	rot := estimate.ToMatrix()

	var rows []row
	rows = appendLineRows(rows, source.Spin.Line, localMap.Spin.Line, rot, cfg)
	rows = appendPlaneRows(rows, source.Spin.Plane, localMap.Spin.Plane, rot, cfg)
	rows = appendPlaneRows(rows, source.Solid.Plane, localMap.Solid.Plane, rot, cfg)
	rows = appendPointRows(rows, source.Solid.NonPlanar, localMap.Solid.NonPlanar, rot, cfg)

	if len(rows) > cfg.MaxRows {
		rows = rows[:cfg.MaxRows]
	}
	if len(rows) == 0 {
		return &System{}
	}

	a := mat.NewDense(len(rows), 6, nil)
	b := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		for j := 0; j < 6; j++ {
			a.Set(i, j, r.jac[j])
		}
		b.Set(i, 0, r.b)
	}
	return &System{A: a, B: b, Rows: len(rows)}
}

type row struct {
	jac [6]float64
	b   float64
}

func appendLineRows(rows []row, src, local []pointcloud.Point, rot *mat.Dense, cfg Config) []row {
	if len(src) == 0 || len(local) == 0 {
		return rows
	}
	for _, p := range src {
		transformed := spatialmath.TransformPoint(rot, p.Position)
		neighbors := knn(local, transformed, cfg.K)
		centroid, dir, ok := fitLine(neighbors, cfg.LineEigenRatio)
		if !ok {
			continue
		}
		v := transformed.Sub(centroid)
		proj := v.Dot(dir)
		perp := v.Sub(dir.Mul(proj))
		dist := perp.Norm()
		if dist < 1e-9 {
			continue
		}
		e := perp.Mul(1 / dist)
		rows = append(rows, makeRow(e, p.Position, dist, rot))
	}
	return rows
}

func appendPlaneRows(rows []row, src, local []pointcloud.Point, rot *mat.Dense, cfg Config) []row {
	if len(src) == 0 || len(local) == 0 {
		return rows
	}
	for _, p := range src {
		transformed := spatialmath.TransformPoint(rot, p.Position)
		neighbors := knn(local, transformed, cfg.K)
		centroid, normal, ok := fitPlane(neighbors, cfg.PlaneEigenRatio)
		if !ok {
			continue
		}
		dist := normal.Dot(transformed.Sub(centroid))
		rows = append(rows, makeRow(normal, p.Position, dist, rot))
	}
	return rows
}

func appendPointRows(rows []row, src, local []pointcloud.Point, rot *mat.Dense, cfg Config) []row {
	if len(src) == 0 || len(local) == 0 {
		return rows
	}
	for _, p := range src {
		transformed := spatialmath.TransformPoint(rot, p.Position)
		neighbor := knn(local, transformed, 1)
		if len(neighbor) == 0 {
			continue
		}
		diff := transformed.Sub(neighbor[0])
		dist := diff.Norm()
		if dist < 1e-9 || dist > cfg.MaxPointDistance {
			continue
		}
		e := diff.Mul(1 / dist)
		rows = append(rows, makeRow(e, p.Position, dist, rot))
	}
	return rows
}

// makeRow computes the Jacobian row for unit direction e, residual distance
// dist, and the original (untransformed) source point. The rotational block
// is p cross R^T*e, the derivative of the transformed point with respect to
// a small rotation about each axis, dotted with e.
func makeRow(e, sourcePoint r3.Vector, dist float64, rot *mat.Dense) row {
	rTe := spatialmath.RotateTranspose(rot, e)
	rotPart := sourcePoint.Cross(rTe)
	var r row
	r.jac[0], r.jac[1], r.jac[2] = e.X, e.Y, e.Z
	r.jac[3], r.jac[4], r.jac[5] = rotPart.X, rotPart.Y, rotPart.Z
	r.b = -dist
	return r
}

package loopclosure

import (
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/spatialmath"
)

const (
	posegraphIterations = 10
	numericalStep       = 1e-5
	posegraphDamping    = 1e-6
)

// optimize relaxes poses against edges by Gauss-Newton, holding poses[0] as
// the fixed anchor. Each edge contributes six scalar residuals comparing
// the predicted relative transform pose[Source]^-1 . pose[Target] against
// the edge's measured Relative, expressed directly in Euler/translation
// parameter space (the same linearization registration.Solve uses, rather
// than a true SE(3) tangent-space log map). The Jacobian is numerical
// central-difference rather than closed-form.
func optimize(poses []spatialmath.Transform, edges []Edge) []spatialmath.Transform {
	n := len(poses)
	if n < 2 || len(edges) == 0 {
		return poses
	}

	current := make([]spatialmath.Transform, n)
	copy(current, poses)

	free := n - 1
	params := 6 * free

	for iter := 0; iter < posegraphIterations; iter++ {
		residuals := edgeResiduals(current, edges)
		rows := len(residuals)
		if rows == 0 {
			break
		}

		a := mat.NewDense(rows, params, nil)
		b := mat.NewDense(rows, 1, nil)
		for r, v := range residuals {
			b.Set(r, 0, -v)
		}

		for p := 0; p < params; p++ {
			poseIdx := p/6 + 1
			paramIdx := p % 6

			plus := make([]spatialmath.Transform, n)
			copy(plus, current)
			plus[poseIdx] = perturb(plus[poseIdx], paramIdx, numericalStep)
			plusRes := edgeResiduals(plus, edges)

			minus := make([]spatialmath.Transform, n)
			copy(minus, current)
			minus[poseIdx] = perturb(minus[poseIdx], paramIdx, -numericalStep)
			minusRes := edgeResiduals(minus, edges)

			for r := 0; r < rows; r++ {
				a.Set(r, p, (plusRes[r]-minusRes[r])/(2*numericalStep))
			}
		}

		var h mat.Dense
		h.Mul(a.T(), a)
		for i := 0; i < params; i++ {
			h.Set(i, i, h.At(i, i)+posegraphDamping)
		}

		var g mat.Dense
		g.Mul(a.T(), b)

		var delta mat.Dense
		if err := delta.Solve(&h, &g); err != nil {
			break
		}

		for p := 0; p < params; p++ {
			poseIdx := p/6 + 1
			paramIdx := p % 6
			current[poseIdx] = perturb(current[poseIdx], paramIdx, delta.At(p, 0))
		}
	}

	return current
}

// edgeResiduals stacks six scalar residuals per edge: the componentwise
// difference between the predicted and measured relative transforms.
func edgeResiduals(poses []spatialmath.Transform, edges []Edge) []float64 {
	out := make([]float64, 0, 6*len(edges))
	for _, e := range edges {
		if e.Source < 0 || e.Source >= len(poses) || e.Target < 0 || e.Target >= len(poses) {
			out = append(out, 0, 0, 0, 0, 0, 0)
			continue
		}

		sInv, err := poses[e.Source].Inverse()
		if err != nil {
			out = append(out, 0, 0, 0, 0, 0, 0)
			continue
		}
		predicted, err := sInv.Compose(poses[e.Target])
		if err != nil {
			out = append(out, 0, 0, 0, 0, 0, 0)
			continue
		}

		measured, err := spatialmath.FromMatrix(e.Relative)
		if err != nil {
			out = append(out, 0, 0, 0, 0, 0, 0)
			continue
		}

		out = append(out,
			predicted.X-measured.X,
			predicted.Y-measured.Y,
			predicted.Z-measured.Z,
			predicted.Roll-measured.Roll,
			predicted.Pitch-measured.Pitch,
			predicted.Yaw-measured.Yaw,
		)
	}
	return out
}

// consecutiveEdges builds one edge per adjacent keyframe pair from the
// stored pose sequence, so every keyframe participates in the pose graph
// even when it is not itself a loop-edge endpoint; without them, only the
// poses a loop edge directly touches would move under optimize.
func consecutiveEdges(poses []spatialmath.Transform) []Edge {
	edges := make([]Edge, 0, len(poses)-1)
	for i := 0; i+1 < len(poses); i++ {
		inv, err := poses[i].Inverse()
		if err != nil {
			continue
		}
		relative, err := inv.Compose(poses[i+1])
		if err != nil {
			continue
		}
		edges = append(edges, Edge{Source: i, Target: i + 1, Relative: relative.ToMatrix()})
	}
	return edges
}

func perturb(t spatialmath.Transform, paramIdx int, delta float64) spatialmath.Transform {
	switch paramIdx {
	case 0:
		t.X += delta
	case 1:
		t.Y += delta
	case 2:
		t.Z += delta
	case 3:
		t.Roll += delta
	case 4:
		t.Pitch += delta
	case 5:
		t.Yaw += delta
	}
	return t
}

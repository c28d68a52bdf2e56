package residual

import (
	"github.com/golang/geo/r3"

	"github.com/unnamed2/tailor/pointcloud"
)

// knn returns the positions of the k points in target nearest to query, by
// Euclidean distance. This is a brute-force search; local-map feature sets
// are bounded by the keyframe window and stay small enough for this to be
// cheap.
func knn(target []pointcloud.Point, query r3.Vector, k int) []r3.Vector {
	type cand struct {
		pos  r3.Vector
		dist float64
	}
	cands := make([]cand, len(target))
	for i, p := range target {
		cands[i] = cand{p.Position, p.Position.Sub(query).Norm2()}
	}

	if k > len(cands) {
		k = len(cands)
	}
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(cands); j++ {
			if cands[j].dist < cands[best].dist {
				best = j
			}
		}
		cands[i], cands[best] = cands[best], cands[i]
	}

	out := make([]r3.Vector, k)
	for i := 0; i < k; i++ {
		out[i] = cands[i].pos
	}
	return out
}

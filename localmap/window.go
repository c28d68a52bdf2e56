// Package localmap implements the fixed-capacity ring buffer of recent
// keyframes and the lazily rebuilt aggregate local map used as the
// registration target.
package localmap

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/spatialmath"
)

// Capacity is the fixed number of keyframes the window retains.
const Capacity = 20

// Window is a ring buffer of the most recent Capacity keyframes, each a
// feature frame plus its world pose.
type Window struct {
	frames [Capacity]pointcloud.FeatureFrame
	poses  [Capacity]*mat.Dense

	head  int // physical slot of the most recently pushed entry
	size  int
	dirty bool
	cache pointcloud.FeatureFrame
}

// New returns an empty window.
func New() *Window {
	return &Window{head: Capacity - 1, dirty: true}
}

// Empty reports whether the window has never been pushed to.
func (w *Window) Empty() bool { return w.size == 0 }

// Size returns the number of entries currently held (capped at Capacity).
func (w *Window) Size() int { return w.size }

// Push appends frame/pose at the head, evicting the oldest entry once the
// window is full, and marks the aggregate dirty.
func (w *Window) Push(frame pointcloud.FeatureFrame, pose *mat.Dense) {
	w.head = (w.head + 1) % Capacity
	if w.size < Capacity {
		w.size++
	}
	w.frames[w.head] = frame
	w.poses[w.head] = pose
	w.dirty = true
}

// HeadPose returns the world pose of the most recently pushed entry. It
// panics if the window is empty; callers must check Empty first.
func (w *Window) HeadPose() *mat.Dense {
	if w.Empty() {
		panic("localmap: HeadPose called on empty window")
	}
	return w.poses[w.head]
}

// slot maps a 1-indexed back-index (1 = newest) to a physical ring slot:
// physical = (head + capacity + 1 - back_index) mod capacity.
func (w *Window) slot(backIndex int) int {
	return (w.head + Capacity + 1 - backIndex) % Capacity
}

// Set rewrites the pose of the entry backIndex positions back from the
// head (1 = newest), used by loop closure to back-propagate a corrected
// pose. backIndex must be in [1, Size()]; out-of-range calls are ignored.
func (w *Window) Set(backIndex int, pose *mat.Dense) {
	if backIndex < 1 || backIndex > w.size {
		return
	}
	w.poses[w.slot(backIndex)] = pose
	w.dirty = true
}

// Aggregate returns the feature frame formed by expressing every window
// entry in the head's local coordinate frame, rebuilding it only if the
// window has mutated since the last call.
func (w *Window) Aggregate() pointcloud.FeatureFrame {
	if !w.dirty {
		return w.cache
	}
	w.cache = w.buildAggregate()
	w.dirty = false
	return w.cache
}

func (w *Window) buildAggregate() pointcloud.FeatureFrame {
	if w.Empty() {
		return pointcloud.FeatureFrame{}
	}

	headInv, err := spatialmath.InverseMatrix(w.HeadPose())
	if err != nil {
		return pointcloud.FeatureFrame{}
	}

	var result pointcloud.FeatureFrame
	for i := 0; i < w.size; i++ {
		var relative mat.Dense
		relative.Mul(headInv, w.poses[i])
		apply := func(v r3.Vector) r3.Vector { return spatialmath.TransformPoint(&relative, v) }
		result.Spin.Concat(w.frames[i].Spin.Transform(apply))
		result.Solid.Concat(w.frames[i].Solid.Transform(apply))
	}
	return result
}

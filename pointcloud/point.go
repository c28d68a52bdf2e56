// Package pointcloud defines the point and feature-cloud types shared by
// every stage of the pipeline: raw synced frames in, geometric feature sets
// out.
package pointcloud

import (
	"time"

	"github.com/golang/geo/r3"
)

// Point is a single LiDAR return. Ring is meaningful only for spin-LiDAR
// points; solid-LiDAR extraction leaves it at zero.
type Point struct {
	Position  r3.Vector
	Intensity float32
	Ring      uint16
	Time      float32 // seconds since the start of the sweep
}

// FeatureSet is an aggregate of up to three optional point sets. For
// spin-LiDAR output, Line and Plane are populated and NonPlanar is nil; for
// solid-LiDAR output, Plane and NonPlanar are populated and Line is nil.
type FeatureSet struct {
	Line      []Point
	Plane     []Point
	NonPlanar []Point
}

// Empty reports whether every populated slice in the set is empty.
func (f FeatureSet) Empty() bool {
	return len(f.Line) == 0 && len(f.Plane) == 0 && len(f.NonPlanar) == 0
}

// Concat appends a copy of other's points onto f's, slice-by-slice. A nil
// slice in either operand is simply skipped, preserving the "not populated"
// distinction only when both sides are nil.
func (f *FeatureSet) Concat(other FeatureSet) {
	if other.Line != nil {
		f.Line = append(f.Line, other.Line...)
	}
	if other.Plane != nil {
		f.Plane = append(f.Plane, other.Plane...)
	}
	if other.NonPlanar != nil {
		f.NonPlanar = append(f.NonPlanar, other.NonPlanar...)
	}
}

// Transform returns a copy of f with every point transformed by apply.
func (f FeatureSet) Transform(apply func(r3.Vector) r3.Vector) FeatureSet {
	return FeatureSet{
		Line:      transformPoints(f.Line, apply),
		Plane:     transformPoints(f.Plane, apply),
		NonPlanar: transformPoints(f.NonPlanar, apply),
	}
}

func transformPoints(pts []Point, apply func(r3.Vector) r3.Vector) []Point {
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	for i, p := range pts {
		np := p
		np.Position = apply(p.Position)
		out[i] = np
	}
	return out
}

// FeatureFrame pairs the per-sensor feature sets extracted from one
// synchronized frame.
type FeatureFrame struct {
	Spin  FeatureSet
	Solid FeatureSet
}

// SyncedMessage is a pair of raw sensor clouds sharing a common wall-clock
// timestamp, as delivered by an external frame-sync source.
type SyncedMessage struct {
	Spin  []Point
	Solid []Point
	Stamp time.Time
}

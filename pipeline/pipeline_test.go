package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/config"
	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/pointcloud"
)

// recordingSink is the fake-component idiom from services/slam/fake/slam.go
// (rdk) applied to publish.Sink: it just remembers every call for
// assertions instead of talking to a transport.
type recordingSink struct {
	transforms []float64 // x of each published transform, in order
	pathLens   []int
	markers    [][]loopclosure.MarkerPair
}

func (s *recordingSink) PublishTransform(pose *mat.Dense, stamp time.Time) {
	s.transforms = append(s.transforms, pose.At(0, 3))
}
func (s *recordingSink) PublishClouds(clouds map[string][]pointcloud.Point, stamp time.Time) {}
func (s *recordingSink) PublishPath(traj odometry.Trajectory) {
	s.pathLens = append(s.pathLens, len(traj))
}
func (s *recordingSink) PublishLoopMarkers(markers []loopclosure.MarkerPair) {
	s.markers = append(s.markers, markers)
}

type nopSink struct{}

func (nopSink) PublishTransform(*mat.Dense, time.Time)           {}
func (nopSink) PublishClouds(map[string][]pointcloud.Point, time.Time) {}
func (nopSink) PublishPath(odometry.Trajectory)                  {}
func (nopSink) PublishLoopMarkers([]loopclosure.MarkerPair)       {}

func wallFeatureFrame(n int, xOffset float64) pointcloud.FeatureFrame {
	plane := make([]pointcloud.Point, n)
	for i := 0; i < n; i++ {
		x := float64(i%20)*0.2 + xOffset
		y := float64(i/20) * 0.2
		plane[i] = pointcloud.Point{Position: r3.Vector{X: x, Y: y, Z: 0}}
	}
	line := make([]pointcloud.Point, 30)
	for i := range line {
		line[i] = pointcloud.Point{Position: r3.Vector{X: xOffset, Y: float64(i) * 0.1, Z: 0}}
	}
	return pointcloud.FeatureFrame{Spin: pointcloud.FeatureSet{Line: line, Plane: plane}}
}

type emptySource struct{}

func (emptySource) Next(ctx context.Context) (pointcloud.SyncedMessage, bool) {
	return pointcloud.SyncedMessage{}, false
}

// TestPipelineStartStopDrainsCleanly covers end-to-end scenario 6 (shutdown
// drain): both workers must terminate within a bounded time once the frame
// source is exhausted and Stop is called.
func TestPipelineStartStopDrainsCleanly(t *testing.T) {
	attrs, err := config.Load(config.MapProvider{})
	test.That(t, err, test.ShouldBeNil)

	p := New(emptySource{}, attrs, nil, nopSink{}, golog.NewTestLogger(t))
	done := make(chan struct{})
	go func() {
		p.Start(context.Background(), golog.NewTestLogger(t))
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not shut down in time")
	}
}

// TestMappingWorkerStationaryFrameSeedsIdentity covers end-to-end scenario 1:
// a single frame on an empty window yields the zero transform and one
// trajectory entry.
func TestMappingWorkerStationaryFrameSeedsIdentity(t *testing.T) {
	attrs, err := config.Load(config.MapProvider{})
	test.That(t, err, test.ShouldBeNil)
	attrs.UseSolidLidar = false

	sink := &recordingSink{}
	w := NewMappingWorker(attrs, nil, sink, golog.NewTestLogger(t))

	w.step(calculateVal{
		msg:   pointcloud.SyncedMessage{Stamp: time.Unix(0, 0)},
		frame: wallFeatureFrame(200, 0),
	})

	test.That(t, len(w.driver.Trajectory()), test.ShouldEqual, 1)
	test.That(t, sink.transforms, test.ShouldResemble, []float64{0.0})
}

// TestMappingWorkerKeyframeSpacing covers end-to-end scenarios 2 and 3: below
// the keyframe threshold, the trajectory stays at length 1; above it, every
// accepted frame grows the trajectory.
func TestMappingWorkerKeyframeSpacing(t *testing.T) {
	attrs, err := config.Load(config.MapProvider{})
	test.That(t, err, test.ShouldBeNil)
	attrs.UseSolidLidar = false

	sink := &recordingSink{}
	w := NewMappingWorker(attrs, nil, sink, golog.NewTestLogger(t))

	w.step(calculateVal{msg: pointcloud.SyncedMessage{Stamp: time.Unix(0, 0)}, frame: wallFeatureFrame(200, 0)})
	w.step(calculateVal{msg: pointcloud.SyncedMessage{Stamp: time.Unix(1, 0)}, frame: wallFeatureFrame(200, 0.3)})
	test.That(t, len(w.driver.Trajectory()), test.ShouldEqual, 1)

	w2 := NewMappingWorker(attrs, nil, sink, golog.NewTestLogger(t))
	w2.step(calculateVal{msg: pointcloud.SyncedMessage{Stamp: time.Unix(0, 0)}, frame: wallFeatureFrame(200, 0)})
	w2.step(calculateVal{msg: pointcloud.SyncedMessage{Stamp: time.Unix(1, 0)}, frame: wallFeatureFrame(200, 0.6)})
	test.That(t, len(w2.driver.Trajectory()), test.ShouldEqual, 2)
}

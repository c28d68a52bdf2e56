// Package pipeline wires the feature and mapping stages together with
// context-cancelable goroutines and channel-backed queues: each stage owns
// its own queue, runs as a background worker tracked by a sync.WaitGroup,
// and drains until its context is canceled.
package pipeline

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/config"
	"github.com/unnamed2/tailor/feature"
	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/publish"
	"github.com/unnamed2/tailor/queue"
	"github.com/unnamed2/tailor/spatialmath"
)

// FrameSource delivers synchronized sensor frames, replacing
// sync_frame_delegate's push callback with an explicit pull.
type FrameSource interface {
	Next(ctx context.Context) (pointcloud.SyncedMessage, bool)
}

// FeatureWorker extracts geometric features from synced frames.
type FeatureWorker struct {
	in *queue.Queue[pointcloud.SyncedMessage]

	useSpin, useSolid bool
	spinCfg           feature.SpinConfig
	solidCfg          feature.SolidConfig
	solidExtrinsic    spatialmath.Transform

	out    func(pointcloud.SyncedMessage, pointcloud.FeatureFrame)
	logger golog.Logger
}

// NewFeatureWorker constructs a feature worker reading from its own
// internal queue and forwarding every successfully extracted frame to out.
func NewFeatureWorker(attrs config.Attrs, out func(pointcloud.SyncedMessage, pointcloud.FeatureFrame), logger golog.Logger) *FeatureWorker {
	return &FeatureWorker{
		in:             queue.New[pointcloud.SyncedMessage](),
		useSpin:        attrs.UseSpinLidar,
		useSolid:       attrs.UseSolidLidar,
		spinCfg:        feature.DefaultSpinConfig(),
		solidCfg:       feature.DefaultSolidConfig(),
		solidExtrinsic: attrs.SolidLidarExtrinsic,
		out:            out,
		logger:         logger,
	}
}

// Push enqueues a synced frame for extraction.
func (w *FeatureWorker) Push(msg pointcloud.SyncedMessage) { w.in.Push(msg) }

// Run drives the worker until ctx is done, acquiring and draining batches
// as they arrive.
func (w *FeatureWorker) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer wg.Done()
		for {
			batch, ok := w.in.Acquire(ctx)
			if !ok {
				return
			}
			for _, msg := range batch {
				if ctx.Err() != nil {
					return
				}
				if frame, ok := w.extract(msg); ok {
					w.out(msg, frame)
				}
			}
		}
	})
}

func (w *FeatureWorker) extract(msg pointcloud.SyncedMessage) (pointcloud.FeatureFrame, bool) {
	var frame pointcloud.FeatureFrame

	if w.useSpin {
		fs, err := feature.ExtractSpin(msg.Spin, w.spinCfg)
		if err != nil {
			w.logger.Infow("dropping frame", "reason", err)
			return pointcloud.FeatureFrame{}, false
		}
		frame.Spin = fs
	}

	if w.useSolid {
		fs, err := feature.ExtractSolid(msg.Solid, w.solidExtrinsic, w.solidCfg)
		if err != nil {
			w.logger.Infow("dropping frame", "reason", err)
			return pointcloud.FeatureFrame{}, false
		}
		frame.Solid = fs
	}

	return frame, true
}

// calculateVal pairs a synced frame with its extracted features.
type calculateVal struct {
	msg   pointcloud.SyncedMessage
	frame pointcloud.FeatureFrame
}

// MappingWorker drives odometry and loop closure for each extracted frame
// and publishes the result.
type MappingWorker struct {
	in *queue.Queue[calculateVal]

	driver         *odometry.Driver
	loop           *loopclosure.Manager
	detector       loopclosure.Detector
	solidExtrinsic spatialmath.Transform

	sink   publish.Sink
	logger golog.Logger
}

// NewMappingWorker constructs a mapping worker. detector may be nil to
// disable loop closure regardless of attrs.Loop.Enable.
func NewMappingWorker(attrs config.Attrs, detector loopclosure.Detector, sink publish.Sink, logger golog.Logger) *MappingWorker {
	driver := odometry.NewDriver(attrs.Odometry)
	loop := loopclosure.NewManager(attrs.Loop, driver.Window(), driver.RewriteTrajectorySuffix)
	return &MappingWorker{
		in:             queue.New[calculateVal](),
		driver:         driver,
		loop:           loop,
		detector:       detector,
		solidExtrinsic: attrs.SolidLidarExtrinsic,
		sink:           sink,
		logger:         logger,
	}
}

// Push enqueues an extracted frame for mapping.
func (w *MappingWorker) Push(msg pointcloud.SyncedMessage, frame pointcloud.FeatureFrame) {
	w.in.Push(calculateVal{msg: msg, frame: frame})
}

// Driver exposes the underlying odometry driver, e.g. for a final
// tumdump.Write call on shutdown.
func (w *MappingWorker) Driver() *odometry.Driver { return w.driver }

// Run drives the worker until ctx is done, acquiring batches and publishing
// the resulting pose, clouds, path, and any accepted loop markers for each.
func (w *MappingWorker) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer wg.Done()
		for {
			batch, ok := w.in.Acquire(ctx)
			if !ok {
				return
			}
			for _, cv := range batch {
				if ctx.Err() != nil {
					return
				}
				w.step(cv)
			}
		}
	})
}

func (w *MappingWorker) step(cv calculateVal) {
	pose, keyframe := w.driver.Step(cv.frame, cv.msg.Stamp)
	if pose == nil {
		w.logger.Infow("frame dropped", "stamp", cv.msg.Stamp)
		return
	}

	// loop closure only searches newly inserted keyframes.
	if keyframe && w.detector != nil {
		corrected, markers := w.loop.Step(w.detector, cv.frame, pose)
		pose = corrected
		if len(markers) > 0 {
			w.sink.PublishLoopMarkers(markers)
		}
	}

	// The solid-LiDAR cloud is raw sensor data, still in the solid sensor's
	// own frame; only extracted features ever get the extrinsic applied
	// (feature.ExtractSolid), so publishing it in world coordinates needs
	// pose composed with the extrinsic here, not pose alone.
	var solidWorld mat.Dense
	solidWorld.Mul(pose, w.solidExtrinsic.ToMatrix())

	w.sink.PublishTransform(pose, cv.msg.Stamp)
	w.sink.PublishClouds(map[string][]pointcloud.Point{
		"spin":  transformedCloud(pose, cv.msg.Spin),
		"solid": transformedCloud(&solidWorld, cv.msg.Solid),
	}, cv.msg.Stamp)
	w.sink.PublishPath(w.driver.Trajectory())
}

func transformedCloud(pose *mat.Dense, points []pointcloud.Point) []pointcloud.Point {
	out := make([]pointcloud.Point, len(points))
	for i, p := range points {
		np := p
		np.Position = spatialmath.TransformPoint(pose, p.Position)
		out[i] = np
	}
	return out
}

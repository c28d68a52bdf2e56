// Package main wires every module into a runnable mapping process, the Go
// analogue of module/main.go's constructor wiring in viam-orb-slam3, minus
// the rdk module-registry layer (this module has no registry to join).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/unnamed2/tailor/config"
	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/pipeline"
	"github.com/unnamed2/tailor/pointcloud"
	"github.com/unnamed2/tailor/tumdump"
)

func main() {
	utils.ContextualMain(mainWithArgs, golog.NewLogger("tailor"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON object of tailor configuration keys")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	attrs, err := loadAttrs(*configPath)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	var detector loopclosure.Detector
	if attrs.Loop.Enable {
		d := loopclosure.DefaultNearestPoseDetector()
		d.Registration = attrs.Registration
		detector = d
	}

	sink := &loggingSink{logger: logger}
	source := &replaySource{logger: logger}
	p := pipeline.New(source, attrs, detector, sink, logger)

	p.Start(ctx, logger)
	<-ctx.Done()
	p.Stop()

	if attrs.MappingSavePath != "" {
		traj := p.MappingWorker().Driver().Trajectory()
		if err := tumdump.Write(attrs.MappingSavePath, traj); err != nil {
			logger.Errorw("failed to dump trajectory", "error", err)
		}
	}
	return nil
}

func loadAttrs(path string) (config.Attrs, error) {
	if path == "" {
		return config.Load(config.MapProvider{})
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Attrs{}, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return config.Attrs{}, err
	}
	return config.Load(config.MapProvider(m))
}

// replaySource is a placeholder FrameSource standing in for whatever
// sensor-transport adapter an embedder supplies; it yields nothing, leaving
// the pipeline idle until ctx is canceled, matching how module/main.go in
// viam-orb-slam3 blocks on ctx.Done after wiring its module.
type replaySource struct {
	logger golog.Logger
}

func (s *replaySource) Next(ctx context.Context) (pointcloud.SyncedMessage, bool) {
	select {
	case <-ctx.Done():
		return pointcloud.SyncedMessage{}, false
	case <-time.After(time.Hour):
		return pointcloud.SyncedMessage{}, false
	}
}

// loggingSink logs every publish call instead of forwarding to a transport,
// a minimal stand-in for a ROS or gRPC publisher.
type loggingSink struct {
	logger golog.Logger
}

func (s *loggingSink) PublishTransform(pose *mat.Dense, stamp time.Time) {
	s.logger.Infow("published transform", "stamp", stamp, "x", pose.At(0, 3), "y", pose.At(1, 3), "z", pose.At(2, 3))
}

func (s *loggingSink) PublishClouds(clouds map[string][]pointcloud.Point, stamp time.Time) {
	for name, pts := range clouds {
		s.logger.Debugw("published cloud", "sensor", name, "points", len(pts))
	}
}

func (s *loggingSink) PublishPath(traj odometry.Trajectory) {
	s.logger.Infow("published path", "keyframes", len(traj))
}

func (s *loggingSink) PublishLoopMarkers(markers []loopclosure.MarkerPair) {
	s.logger.Infow("published loop markers", "count", len(markers))
}

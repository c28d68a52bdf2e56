package pipeline

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/unnamed2/tailor/config"
	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/publish"
)

// Pipeline wires a FrameSource through a FeatureWorker and a MappingWorker
// to a publish.Sink, constructing both stages side by side and connecting
// them with a plain function callback rather than a shared queue.
type Pipeline struct {
	source  FrameSource
	feature *FeatureWorker
	mapping *MappingWorker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a pipeline from already-loaded configuration. detector may
// be nil to run with loop closure disabled regardless of attrs.Loop.Enable.
func New(source FrameSource, attrs config.Attrs, detector loopclosure.Detector, sink publish.Sink, logger golog.Logger) *Pipeline {
	mapping := NewMappingWorker(attrs, detector, sink, logger)
	feature := NewFeatureWorker(attrs, mapping.Push, logger)
	return &Pipeline{source: source, feature: feature, mapping: mapping}
}

// Start launches the feature worker, the mapping worker, and a frame-pump
// goroutine that pulls from source and pushes into the feature worker,
// until ctx is done.
func (p *Pipeline) Start(ctx context.Context, logger golog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.feature.Run(ctx, &p.wg)
	p.mapping.Run(ctx, &p.wg)

	p.wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer p.wg.Done()
		logger.Info("frame pump started")
		defer logger.Info("frame pump stopped")
		for {
			msg, ok := p.source.Next(ctx)
			if !ok {
				return
			}
			p.feature.Push(msg)
		}
	})
}

// Stop cancels every worker and blocks until they exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// MappingWorker exposes the mapping stage directly, for callers that need
// the trajectory or local-map state after Stop returns.
func (p *Pipeline) MappingWorker() *MappingWorker { return p.mapping }

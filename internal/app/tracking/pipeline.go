package tracking

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
	"github.com/dkeye/bounce/internal/vision"
)

// Publisher receives every state update made by the worker.
type Publisher interface {
	Publish(domain.TrackedPosition) error
}

type Pipeline struct {
	queue      *FrameQueue
	state      *SharedPositionState
	detector   core.ObjectDetector
	cfg        core.DetectorConfig
	publishers []Publisher

	processed atomic.Int64
	misses    atomic.Int64
}

func NewPipeline(q *FrameQueue, state *SharedPositionState, det core.ObjectDetector, cfg core.DetectorConfig, pubs ...Publisher) *Pipeline {
	return &Pipeline{
		queue:      q,
		state:      state,
		detector:   det,
		cfg:        cfg,
		publishers: pubs,
	}
}

// Run is the worker loop. It returns when ctx ends; frames still queued at
// that point are discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	log.Debug().Str("module", "tracking").Msg("worker started")
	for {
		rec, err := p.queue.Next(ctx)
		if err != nil {
			n := p.queue.Discard()
			log.Info().
				Str("module", "tracking").
				Int64("processed", p.processed.Load()).
				Int64("misses", p.misses.Load()).
				Int64("dropped", p.queue.Dropped()).
				Int("discarded", n).
				Msg("worker stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		p.Process(rec)
	}
}

// Process runs one detection cycle on rec.
func (p *Pipeline) Process(rec domain.FrameRecord) domain.TrackedPosition {
	gray := vision.ToGray(rec.Pixels)
	pos, ok := p.detector.Detect(gray, p.cfg)
	if !ok {
		p.misses.Add(1)
		log.Trace().Str("module", "tracking").Int64("pts", rec.Timestamp).Msg("no detection")
	}
	cur := p.state.Apply(rec.Timestamp, pos, ok)
	p.processed.Add(1)

	for _, pub := range p.publishers {
		if err := pub.Publish(cur); err != nil {
			log.Warn().Err(err).Str("module", "tracking").Msg("publish position")
		}
	}
	return cur
}

func (p *Pipeline) Processed() int64 { return p.processed.Load() }
func (p *Pipeline) Misses() int64    { return p.misses.Load() }

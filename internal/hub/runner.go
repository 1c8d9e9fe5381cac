package hub

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/pipeline"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// Producer is the frame pipeline as the runner sees it.
type Producer interface {
	Produce(ctx context.Context) (*types.FrameResult, error)
	ProduceSynthetic(ts time.Time) *types.FrameResult
}

// Recorder persists produced frames. Optional.
type Recorder interface {
	Record(fr *types.FrameResult) error
}

// Metrics counts runner activity for /status.
type Metrics struct {
	Produced  atomic.Uint64
	Synthetic atomic.Uint64
	RecordErr atomic.Uint64
}

func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_produced_total":  m.Produced.Load(),
		"frames_synthetic_total": m.Synthetic.Load(),
		"record_err_total":       m.RecordErr.Load(),
	}
}

// Runner drives the pipeline at a bounded rate and publishes each tick
// to the hub. While the real path fails it substitutes synthetic frames
// and keeps re-probing, so degradation shows up as frame content, not
// as a stalled feed.
type Runner struct {
	pipe          Producer
	hub           *Hub
	recorder      Recorder
	metrics       *Metrics
	maxFPS        float64
	syntheticOnly bool
	degraded      atomic.Bool
}

func NewRunner(pipe Producer, h *Hub, maxFPS float64, syntheticOnly bool, recorder Recorder, metrics *Metrics) *Runner {
	if maxFPS <= 0 {
		maxFPS = 30
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Runner{
		pipe:          pipe,
		hub:           h,
		recorder:      recorder,
		metrics:       metrics,
		maxFPS:        maxFPS,
		syntheticOnly: syntheticOnly,
	}
}

func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Degraded reports whether the last tick fell back to synthetic frames.
func (r *Runner) Degraded() bool {
	return r.degraded.Load() || r.syntheticOnly
}

func (r *Runner) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / r.maxFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fr := r.tick(ctx)
		if fr == nil {
			continue
		}
		r.metrics.Produced.Add(1)
		if fr.Synthetic {
			r.metrics.Synthetic.Add(1)
		}
		if r.recorder != nil {
			if err := r.recorder.Record(fr); err != nil {
				r.metrics.RecordErr.Add(1)
			}
		}
		r.hub.Publish(fr)
	}
}

func (r *Runner) tick(ctx context.Context) *types.FrameResult {
	if r.syntheticOnly {
		return r.pipe.ProduceSynthetic(time.Now())
	}

	fr, err := r.pipe.Produce(ctx)
	switch {
	case err == nil:
		if r.degraded.Load() {
			log.Printf("pipeline recovered, real frames resumed")
			r.degraded.Store(false)
		}
		return fr
	case errors.Is(err, pipeline.ErrNoFrame):
		// Soft miss: the ticker interval is the retry delay.
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		if !r.degraded.Load() {
			log.Printf("pipeline degraded, serving synthetic frames: %v", err)
			r.degraded.Store(true)
		}
		return r.pipe.ProduceSynthetic(time.Now())
	}
}

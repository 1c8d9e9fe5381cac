// Package pipeline turns captured frames and depth estimates into
// normalized, temporally smoothed, subsampled frame results ready for
// the wire.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/params"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/simulator"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// ErrNoFrame is a transient capture miss. Callers retry after a short
// delay instead of escalating.
var ErrNoFrame = errors.New("no frame available")

// Capture yields the next raw color frame, already sized to the target
// width.
type Capture interface {
	Grab(ctx context.Context) (types.Image, error)
}

// Estimator maps a color image to a depth grid, possibly at a different
// resolution.
type Estimator interface {
	Estimate(ctx context.Context, img types.Image) (types.DepthMap, error)
}

type Config struct {
	TargetWidth int
	Stride      int
	FOVDeg      float64
}

// Pipeline owns the smoothed depth state. It is driven by a single
// goroutine; the shared tunables are re-read from the store once per
// Produce call.
type Pipeline struct {
	capture   Capture
	estimator Estimator
	store     *params.Store
	pattern   simulator.Pattern
	cfg       Config

	ema  []float32
	emaW int
	emaH int
}

func New(capture Capture, estimator Estimator, store *params.Store, cfg Config) *Pipeline {
	return &Pipeline{
		capture:   capture,
		estimator: estimator,
		store:     store,
		// Pattern height assumes the common 4:3 sensor; real frames
		// carry their own dims.
		pattern: simulator.Pattern{Width: cfg.TargetWidth, Height: cfg.TargetWidth * 3 / 4},
		cfg:     cfg,
	}
}

// Produce runs one full real iteration. ErrNoFrame passes through
// untouched; estimator and capture failures come back wrapped and the
// caller decides whether to fall back.
func (p *Pipeline) Produce(ctx context.Context) (*types.FrameResult, error) {
	img, err := p.capture.Grab(ctx)
	if err != nil {
		if errors.Is(err, ErrNoFrame) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("capture: %w", err)
	}
	dm, err := p.estimator.Estimate(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	if dm.W != img.W || dm.H != img.H {
		dm, err = rescaleDepth(dm, img.W, img.H)
		if err != nil {
			return nil, fmt.Errorf("rescale: %w", err)
		}
	}
	return p.finish(img, dm, false, time.Now()), nil
}

// ProduceSynthetic runs the same tail of the pipeline on the test
// pattern, so degraded sessions see frames shaped exactly like real
// ones.
func (p *Pipeline) ProduceSynthetic(ts time.Time) *types.FrameResult {
	img, dm := p.pattern.Generate(ts)
	return p.finish(img, dm, true, ts)
}

func (p *Pipeline) finish(img types.Image, dm types.DepthMap, synthetic bool, ts time.Time) *types.FrameResult {
	snap := p.store.Snapshot()

	sanitize(dm.Values)
	normalize(dm.Values, snap.ClampNear, snap.ClampFar)
	p.smooth(dm, snap.EMAAlpha)

	stride := p.cfg.Stride
	depthSub, w, h := subsample(p.ema, dm.W, dm.H, stride)
	rgbSub := subsampleRGB(img.RGB, img.W, img.H, stride)

	return &types.FrameResult{
		Width:      w,
		Height:     h,
		Depth:      depthSub,
		RGB:        rgbSub,
		Intrinsics: intrinsicsFor(w, h, p.cfg.FOVDeg),
		Stride:     stride,
		Timestamp:  float64(ts.UnixNano()) / 1e9,
		Synthetic:  synthetic,
	}
}

// smooth folds the raw grid into the EMA state. A resolution change
// reseeds the state rather than mixing grids of different shapes.
func (p *Pipeline) smooth(dm types.DepthMap, alpha float64) {
	if p.ema == nil || p.emaW != dm.W || p.emaH != dm.H {
		p.ema = append([]float32(nil), dm.Values...)
		p.emaW, p.emaH = dm.W, dm.H
		return
	}
	a := float32(alpha)
	for i, raw := range dm.Values {
		p.ema[i] = a*raw + (1-a)*p.ema[i]
	}
}

// sanitize replaces non-finite values in place before any further math.
func sanitize(values []float32) {
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			values[i] = 0
		}
	}
}

// normalize shifts to zero minimum, scales to unit maximum and maps
// affinely into [near, far].
func normalize(values []float32, near, far float64) {
	if len(values) == 0 {
		return
	}
	min := values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
	}
	var max float32
	for i := range values {
		values[i] -= min
		if values[i] > max {
			max = values[i]
		}
	}
	if max > 1e-6 {
		inv := 1 / max
		for i := range values {
			values[i] *= inv
		}
	}
	n := float32(near)
	span := float32(far - near)
	for i := range values {
		values[i] = n + span*values[i]
	}
}

// subsample keeps every strideth row and column, returning a fresh
// slice so emitted frames never alias the EMA state.
func subsample(values []float32, w, h, stride int) ([]float32, int, int) {
	if stride < 1 {
		stride = 1
	}
	ws := (w + stride - 1) / stride
	hs := (h + stride - 1) / stride
	out := make([]float32, 0, ws*hs)
	for y := 0; y < h; y += stride {
		row := y * w
		for x := 0; x < w; x += stride {
			out = append(out, values[row+x])
		}
	}
	return out, ws, hs
}

func subsampleRGB(rgb []byte, w, h, stride int) []byte {
	if stride < 1 {
		stride = 1
	}
	ws := (w + stride - 1) / stride
	hs := (h + stride - 1) / stride
	out := make([]byte, 0, ws*hs*3)
	for y := 0; y < h; y += stride {
		row := y * w * 3
		for x := 0; x < w; x += stride {
			i := row + x*3
			out = append(out, rgb[i], rgb[i+1], rgb[i+2])
		}
	}
	return out
}

// intrinsicsFor derives pinhole parameters from the horizontal FOV and
// the emitted grid size, so intrinsics always match the payload.
func intrinsicsFor(w, h int, fovDeg float64) types.Intrinsics {
	f := 0.5 * float64(w) / math.Tan(fovDeg*math.Pi/180/2)
	return types.Intrinsics{
		Fx: f,
		Fy: f,
		Cx: float64(w-1) / 2,
		Cy: float64(h-1) / 2,
	}
}

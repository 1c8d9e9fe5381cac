package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/params"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

type stubCapture struct {
	img types.Image
	err error
}

func (s stubCapture) Grab(context.Context) (types.Image, error) {
	return s.img, s.err
}

type stubEstimator struct {
	dm  types.DepthMap
	err error
}

func (s stubEstimator) Estimate(context.Context, types.Image) (types.DepthMap, error) {
	return s.dm, s.err
}

func defaultStore() *params.Store {
	return params.NewStore(params.Set{EMAAlpha: 0.2, ClampNear: 0.2, ClampFar: 4.0})
}

func flatImage(w, h int) types.Image {
	return types.Image{W: w, H: h, RGB: make([]byte, w*h*3)}
}

func TestSanitizeReplacesNonFinite(t *testing.T) {
	values := []float32{1, float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1)), -2}
	sanitize(values)
	want := []float32{1, 0, 0, 0, -2}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("values[%d] = %g, want %g", i, values[i], want[i])
		}
	}
}

func TestNormalizeBounds(t *testing.T) {
	values := []float32{-3, 0, 1.5, 7, 2}
	normalize(values, 0.2, 4.0)
	for i, v := range values {
		if v < 0.2 || v > 4.0 {
			t.Fatalf("values[%d] = %g outside [0.2, 4.0]", i, v)
		}
	}
	if values[0] != 0.2 {
		t.Fatalf("minimum mapped to %g, want 0.2", values[0])
	}
	if values[3] != 4.0 {
		t.Fatalf("maximum mapped to %g, want 4.0", values[3])
	}
}

func TestNormalizeConstantInput(t *testing.T) {
	values := []float32{5, 5, 5}
	normalize(values, 0.2, 4.0)
	for i, v := range values {
		if v != 0.2 {
			t.Fatalf("values[%d] = %g, want clamp near for flat input", i, v)
		}
	}
}

func TestEMAConvergence(t *testing.T) {
	for _, alpha := range []float64{0.1, 0.5, 1.0} {
		p := &Pipeline{}
		p.smooth(types.DepthMap{W: 1, H: 1, Values: []float32{0}}, alpha)

		target := types.DepthMap{W: 1, H: 1, Values: []float32{1}}
		iterations := int(10/alpha) + 1
		for i := 0; i < iterations; i++ {
			p.smooth(types.DepthMap{W: 1, H: 1, Values: append([]float32(nil), target.Values...)}, alpha)
		}
		if diff := math.Abs(float64(p.ema[0]) - 1); diff > 1e-3 {
			t.Fatalf("alpha=%g: ema %g did not converge within %d iterations", alpha, p.ema[0], iterations)
		}
	}
}

func TestEMAFirstFrameSeeds(t *testing.T) {
	p := &Pipeline{}
	p.smooth(types.DepthMap{W: 2, H: 1, Values: []float32{3, 4}}, 0.2)
	if p.ema[0] != 3 || p.ema[1] != 4 {
		t.Fatalf("first frame not seeded directly: %v", p.ema)
	}
}

func TestEMAResetsOnResize(t *testing.T) {
	p := &Pipeline{}
	p.smooth(types.DepthMap{W: 2, H: 1, Values: []float32{1, 1}}, 0.2)
	p.smooth(types.DepthMap{W: 1, H: 2, Values: []float32{9, 9}}, 0.2)
	if p.ema[0] != 9 || p.ema[1] != 9 {
		t.Fatalf("resize did not reseed: %v", p.ema)
	}
}

func TestSubsampleDims(t *testing.T) {
	values := make([]float32, 5*3)
	for i := range values {
		values[i] = float32(i)
	}
	out, w, h := subsample(values, 5, 3, 2)
	if w != 3 || h != 2 {
		t.Fatalf("subsampled dims %dx%d, want 3x2", w, h)
	}
	want := []float32{0, 2, 4, 10, 12, 14}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %g, want %g", i, out[i], want[i])
		}
	}
}

func TestSubsampleRGBKeepsPixels(t *testing.T) {
	rgb := make([]byte, 4*2*3)
	for i := range rgb {
		rgb[i] = byte(i)
	}
	out := subsampleRGB(rgb, 4, 2, 2)
	if len(out) != 2*1*3 {
		t.Fatalf("subsampled rgb length %d", len(out))
	}
	if out[0] != 0 || out[1] != 1 || out[2] != 2 {
		t.Fatalf("pixel (0,0) corrupted: %v", out[:3])
	}
	if out[3] != 6 || out[4] != 7 || out[5] != 8 {
		t.Fatalf("pixel (2,0) corrupted: %v", out[3:6])
	}
}

func TestIntrinsicsMatchGrid(t *testing.T) {
	intr := intrinsicsFor(320, 240, 60)
	wantF := 0.5 * 320 / math.Tan(60*math.Pi/180/2)
	if math.Abs(intr.Fx-wantF) > 1e-9 || intr.Fx != intr.Fy {
		t.Fatalf("focal length %g/%g, want %g", intr.Fx, intr.Fy, wantF)
	}
	if intr.Cx != 159.5 || intr.Cy != 119.5 {
		t.Fatalf("principal point %g,%g", intr.Cx, intr.Cy)
	}
}

func TestProduceEndToEnd(t *testing.T) {
	w, h := 8, 6
	dm := types.DepthMap{W: w, H: h, Values: make([]float32, w*h)}
	for i := range dm.Values {
		dm.Values[i] = float32(i)
	}
	dm.Values[3] = float32(math.NaN())

	p := New(stubCapture{img: flatImage(w, h)}, stubEstimator{dm: dm}, defaultStore(), Config{
		TargetWidth: w,
		Stride:      2,
		FOVDeg:      60,
	})

	fr, err := p.Produce(context.Background())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if fr.Width != 4 || fr.Height != 3 {
		t.Fatalf("frame dims %dx%d", fr.Width, fr.Height)
	}
	if len(fr.Depth) != 12 || len(fr.RGB) != 36 {
		t.Fatalf("payload sizes depth=%d rgb=%d", len(fr.Depth), len(fr.RGB))
	}
	if fr.Synthetic {
		t.Fatalf("real frame marked synthetic")
	}
	for i, v := range fr.Depth {
		if float64(v) < 0.2 || float64(v) > 4.0 {
			t.Fatalf("depth[%d] = %g outside clamp range", i, v)
		}
	}
}

func TestProducePassesThroughNoFrame(t *testing.T) {
	p := New(stubCapture{err: ErrNoFrame}, stubEstimator{}, defaultStore(), Config{
		TargetWidth: 8, Stride: 2, FOVDeg: 60,
	})
	if _, err := p.Produce(context.Background()); err != ErrNoFrame {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}

func TestProduceSyntheticWellFormed(t *testing.T) {
	p := New(stubCapture{err: ErrNoFrame}, stubEstimator{}, defaultStore(), Config{
		TargetWidth: 64, Stride: 2, FOVDeg: 60,
	})
	fr := p.ProduceSynthetic(time.Unix(50, 0))
	if !fr.Synthetic {
		t.Fatalf("synthetic frame not marked")
	}
	if fr.Width != 32 || fr.Height != 24 {
		t.Fatalf("synthetic dims %dx%d", fr.Width, fr.Height)
	}
	if len(fr.Depth) != fr.Width*fr.Height || len(fr.RGB) != fr.Width*fr.Height*3 {
		t.Fatalf("synthetic payload sizes depth=%d rgb=%d", len(fr.Depth), len(fr.RGB))
	}
	for i, v := range fr.Depth {
		if float64(v) < 0.2 || float64(v) > 4.0 {
			t.Fatalf("synthetic depth[%d] = %g outside clamp range", i, v)
		}
	}
}

func TestFrameUsesOneParameterSnapshot(t *testing.T) {
	store := defaultStore()
	dm := types.DepthMap{W: 4, H: 4, Values: make([]float32, 16)}
	for i := range dm.Values {
		dm.Values[i] = float32(i)
	}
	p := New(stubCapture{img: flatImage(4, 4)}, stubEstimator{dm: dm}, store, Config{
		TargetWidth: 4, Stride: 1, FOVDeg: 60,
	})

	fr, err := p.Produce(context.Background())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	snap := store.Snapshot()
	for i, v := range fr.Depth {
		if float64(v) < snap.ClampNear-1e-6 || float64(v) > snap.ClampFar+1e-6 {
			t.Fatalf("depth[%d] = %g outside snapshot bounds", i, v)
		}
	}
}

package simulator

import (
	"bytes"
	"testing"
	"time"
)

func TestGenerateDimensions(t *testing.T) {
	p := Pattern{Width: 64, Height: 48}
	img, dm := p.Generate(time.Unix(100, 0))

	if img.W != 64 || img.H != 48 {
		t.Fatalf("image dims %dx%d", img.W, img.H)
	}
	if len(img.RGB) != 64*48*3 {
		t.Fatalf("rgb length %d", len(img.RGB))
	}
	if dm.W != 64 || dm.H != 48 {
		t.Fatalf("depth dims %dx%d", dm.W, dm.H)
	}
	if len(dm.Values) != 64*48 {
		t.Fatalf("depth length %d", len(dm.Values))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	p := Pattern{Width: 32, Height: 24}
	ts := time.Unix(1234, 567)

	imgA, dmA := p.Generate(ts)
	imgB, dmB := p.Generate(ts)

	if !bytes.Equal(imgA.RGB, imgB.RGB) {
		t.Fatalf("color output differs for identical timestamps")
	}
	for i := range dmA.Values {
		if dmA.Values[i] != dmB.Values[i] {
			t.Fatalf("depth output differs at %d", i)
		}
	}
}

func TestGenerateVariesWithTime(t *testing.T) {
	p := Pattern{Width: 32, Height: 24}
	_, dmA := p.Generate(time.Unix(0, 0))
	_, dmB := p.Generate(time.Unix(2, 0))

	same := true
	for i := range dmA.Values {
		if dmA.Values[i] != dmB.Values[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("depth surface did not move between timestamps")
	}
}

func TestGenerateDepthFinite(t *testing.T) {
	p := Pattern{Width: 16, Height: 16}
	_, dm := p.Generate(time.Now())
	for i, v := range dm.Values {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %g", i, v)
		}
	}
}

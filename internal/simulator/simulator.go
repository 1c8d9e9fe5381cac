// Package simulator produces a deterministic test pattern standing in
// for the camera plus estimator pair when the real path is unavailable.
package simulator

import (
	"math"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// Pattern generates time-varying frames at fixed dimensions. A given
// (timestamp, size) pair always yields the same output, so every
// session rendering the same tick sees the same pattern.
type Pattern struct {
	Width  int
	Height int
}

// Generate returns a color frame of horizontal bands scrolling with
// time and a depth surface with a gaussian bump orbiting the center.
func (p Pattern) Generate(ts time.Time) (types.Image, types.DepthMap) {
	w, h := p.Width, p.Height
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	t := float64(ts.UnixNano()) / 1e9

	rgb := make([]byte, w*h*3)
	phase := t * 40
	for y := 0; y < h; y++ {
		band := (y + int(phase)) / 24 % 3
		var r, g, b byte
		switch band {
		case 0:
			r, g, b = 230, 60, 60
		case 1:
			r, g, b = 60, 200, 90
		default:
			r, g, b = 70, 90, 230
		}
		row := y * w * 3
		for x := 0; x < w; x++ {
			rgb[row+x*3] = r
			rgb[row+x*3+1] = g
			rgb[row+x*3+2] = b
		}
	}

	// Bump center orbits at ~0.2 Hz, radius a third of the frame.
	angle := t * 2 * math.Pi * 0.2
	cx := float64(w)/2 + float64(w)/3*math.Cos(angle)
	cy := float64(h)/2 + float64(h)/3*math.Sin(angle)
	sigma2 := float64(w*h) / 40

	values := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			values[y*w+x] = float32(math.Exp(-(dx*dx + dy*dy) / sigma2))
		}
	}

	return types.Image{W: w, H: h, RGB: rgb}, types.DepthMap{W: w, H: h, Values: values}
}

package pipeline

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// rescaleDepth resamples the estimator's native grid to the display
// resolution with cubic interpolation.
func rescaleDepth(dm types.DepthMap, w, h int) (types.DepthMap, error) {
	src := gocv.NewMatWithSize(dm.H, dm.W, gocv.MatTypeCV32F)
	defer src.Close()
	ptr, err := src.DataPtrFloat32()
	if err != nil {
		return types.DepthMap{}, fmt.Errorf("depth mat: %w", err)
	}
	copy(ptr, dm.Values)

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationCubic)

	out, err := dst.DataPtrFloat32()
	if err != nil {
		return types.DepthMap{}, fmt.Errorf("depth mat: %w", err)
	}
	values := make([]float32, w*h)
	copy(values, out)
	return types.DepthMap{W: w, H: h, Values: values}, nil
}

package types

// Image is a row-major interleaved RGB frame.
type Image struct {
	W   int
	H   int
	RGB []byte
}

// DepthMap is a row-major float grid with the same orientation as the
// image it was estimated from.
type DepthMap struct {
	W      int
	H      int
	Values []float32
}

// Intrinsics are the pinhole parameters matching a particular grid size.
type Intrinsics struct {
	Fx float64
	Fy float64
	Cx float64
	Cy float64
}

// FrameResult is one produced output frame at subsampled resolution.
// It is immutable once emitted and may be shared read-only between any
// number of sessions.
type FrameResult struct {
	Width      int
	Height     int
	Depth      []float32
	RGB        []byte
	Intrinsics Intrinsics
	Stride     int
	Timestamp  float64
	Synthetic  bool
}

// Package protocol implements the binary frame format and the JSON
// control messages shared with viewers.
//
// Frame layout, little-endian:
//
//	uint32  headerLen
//	byte[]  header JSON {"w","h","fx","fy","cx","cy","stride","ts"}
//	byte[]  zero padding until headerLen+pad is a multiple of 4
//	f32[]   depth, row-major, w*h values
//	u8[]    RGB, row-major interleaved, 3*w*h bytes
//
// A zero headerLen with no payload is the handshake frame announcing
// connection readiness.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

const headerAlign = 4

// Header describes the grid a frame's payload is laid out on.
type Header struct {
	W      int     `json:"w"`
	H      int     `json:"h"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Cx     float64 `json:"cx"`
	Cy     float64 `json:"cy"`
	Stride int     `json:"stride"`
	Ts     float64 `json:"ts"`
}

// Handshake returns the zero-length-header liveness frame.
func Handshake() []byte {
	return []byte{0, 0, 0, 0}
}

// EncodeFrame serializes a frame result into one wire blob.
func EncodeFrame(fr *types.FrameResult) ([]byte, error) {
	header := Header{
		W:      fr.Width,
		H:      fr.Height,
		Fx:     fr.Intrinsics.Fx,
		Fy:     fr.Intrinsics.Fy,
		Cx:     fr.Intrinsics.Cx,
		Cy:     fr.Intrinsics.Cy,
		Stride: fr.Stride,
		Ts:     fr.Timestamp,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	n := fr.Width * fr.Height
	if len(fr.Depth) != n {
		return nil, fmt.Errorf("depth length %d does not match %dx%d grid", len(fr.Depth), fr.Width, fr.Height)
	}
	if len(fr.RGB) != 3*n {
		return nil, fmt.Errorf("rgb length %d does not match %dx%d grid", len(fr.RGB), fr.Width, fr.Height)
	}

	pad := (headerAlign - len(headerJSON)%headerAlign) % headerAlign
	blob := make([]byte, 4+len(headerJSON)+pad+4*n+3*n)

	binary.LittleEndian.PutUint32(blob, uint32(len(headerJSON)))
	offset := 4
	offset += copy(blob[offset:], headerJSON)
	offset += pad
	for _, v := range fr.Depth {
		binary.LittleEndian.PutUint32(blob[offset:], math.Float32bits(v))
		offset += 4
	}
	copy(blob[offset:], fr.RGB)
	return blob, nil
}

// DecodeFrame parses a wire blob back into its parts. Used by tooling
// and tests; the server only encodes.
func DecodeFrame(blob []byte) (Header, []float32, []byte, error) {
	var header Header
	if len(blob) < 4 {
		return header, nil, nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	headerLen := int(binary.LittleEndian.Uint32(blob))
	if headerLen == 0 {
		if len(blob) != 4 {
			return header, nil, nil, fmt.Errorf("handshake frame has %d trailing bytes", len(blob)-4)
		}
		return header, nil, nil, nil
	}
	pad := (headerAlign - headerLen%headerAlign) % headerAlign
	if len(blob) < 4+headerLen+pad {
		return header, nil, nil, fmt.Errorf("blob truncated inside header")
	}
	if err := json.Unmarshal(blob[4:4+headerLen], &header); err != nil {
		return header, nil, nil, fmt.Errorf("decode header: %w", err)
	}

	n := header.W * header.H
	want := 4 + headerLen + pad + 4*n + 3*n
	if len(blob) != want {
		return header, nil, nil, fmt.Errorf("blob length %d, want %d for %dx%d", len(blob), want, header.W, header.H)
	}

	offset := 4 + headerLen + pad
	depth := make([]float32, n)
	for i := range depth {
		depth[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[offset:]))
		offset += 4
	}
	rgb := make([]byte, 3*n)
	copy(rgb, blob[offset:])
	return header, depth, rgb, nil
}

package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

func sampleFrame(w, h int) *types.FrameResult {
	n := w * h
	depth := make([]float32, n)
	rgb := make([]byte, 3*n)
	for i := 0; i < n; i++ {
		depth[i] = 0.2 + float32(i)*0.01
		rgb[i*3] = byte(i)
		rgb[i*3+1] = byte(i + 1)
		rgb[i*3+2] = byte(i + 2)
	}
	return &types.FrameResult{
		Width:  w,
		Height: h,
		Depth:  depth,
		RGB:    rgb,
		Intrinsics: types.Intrinsics{
			Fx: 277.128, Fy: 277.128, Cx: float64(w-1) / 2, Cy: float64(h-1) / 2,
		},
		Stride:    2,
		Timestamp: 1725100000.125,
	}
}

func TestFrameRoundTrip(t *testing.T) {
	fr := sampleFrame(6, 4)
	blob, err := EncodeFrame(fr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	header, depth, rgb, err := DecodeFrame(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	wantHeader := Header{
		W: 6, H: 4,
		Fx: fr.Intrinsics.Fx, Fy: fr.Intrinsics.Fy,
		Cx: fr.Intrinsics.Cx, Cy: fr.Intrinsics.Cy,
		Stride: 2, Ts: fr.Timestamp,
	}
	if diff := cmp.Diff(wantHeader, header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fr.Depth, depth); diff != "" {
		t.Fatalf("depth mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fr.RGB, rgb); diff != "" {
		t.Fatalf("rgb mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameBlobLength(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 2}, {5, 7}, {320, 240}} {
		fr := sampleFrame(dims[0], dims[1])
		blob, err := EncodeFrame(fr)
		if err != nil {
			t.Fatalf("encode %v: %v", dims, err)
		}
		headerLen := int(binary.LittleEndian.Uint32(blob))
		pad := (headerAlign - headerLen%headerAlign) % headerAlign
		n := dims[0] * dims[1]
		want := 4 + headerLen + pad + 4*n + 3*n
		if len(blob) != want {
			t.Fatalf("dims %v: blob length %d, want %d", dims, len(blob), want)
		}
		if (headerLen+pad)%4 != 0 {
			t.Fatalf("dims %v: header+pad %d not aligned", dims, headerLen+pad)
		}
	}
}

func TestEncodeRejectsMismatchedPayload(t *testing.T) {
	fr := sampleFrame(4, 4)
	fr.Depth = fr.Depth[:3]
	if _, err := EncodeFrame(fr); err == nil {
		t.Fatalf("expected depth length error")
	}

	fr = sampleFrame(4, 4)
	fr.RGB = fr.RGB[:5]
	if _, err := EncodeFrame(fr); err == nil {
		t.Fatalf("expected rgb length error")
	}
}

func TestHandshakeFrame(t *testing.T) {
	blob := Handshake()
	if len(blob) != 4 {
		t.Fatalf("handshake length %d", len(blob))
	}
	header, depth, rgb, err := DecodeFrame(blob)
	if err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	if header.W != 0 || depth != nil || rgb != nil {
		t.Fatalf("handshake decoded with payload: %+v", header)
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	fr := sampleFrame(4, 4)
	blob, err := EncodeFrame(fr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, _, err := DecodeFrame(blob[:len(blob)-1]); err == nil {
		t.Fatalf("expected truncation error")
	}
	if _, _, _, err := DecodeFrame(blob[:2]); err == nil {
		t.Fatalf("expected short blob error")
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"set_params","ema_alpha":0.5,"clamp_far":0.1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != CmdSetParams {
		t.Fatalf("unexpected type %q", cmd.Type)
	}
	if cmd.EMAAlpha == nil || *cmd.EMAAlpha != 0.5 {
		t.Fatalf("ema_alpha not captured: %v", cmd.EMAAlpha)
	}
	if cmd.ClampNear != nil {
		t.Fatalf("absent clamp_near should be nil")
	}
	if cmd.ClampFar == nil || *cmd.ClampFar != 0.1 {
		t.Fatalf("clamp_far not captured: %v", cmd.ClampFar)
	}
}

func TestParseCommandRejectsMalformed(t *testing.T) {
	if _, err := ParseCommand([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected JSON error")
	}
	if _, err := ParseCommand([]byte(`{"index":1}`)); err == nil {
		t.Fatalf("expected missing-type error")
	}
}

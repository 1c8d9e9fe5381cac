package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/protocol"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

func testFrame(ts float64, synthetic bool) *types.FrameResult {
	return &types.FrameResult{
		Width: 2, Height: 2,
		Depth:      []float32{0.2, 0.3, 0.4, 0.5},
		RGB:        make([]byte, 12),
		Intrinsics: types.Intrinsics{Fx: 1, Fy: 1, Cx: 0.5, Cy: 0.5},
		Stride:     2,
		Timestamp:  ts,
		Synthetic:  synthetic,
	}
}

func recordingPath(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one recording file, found %d", len(entries))
	}
	return filepath.Join(dir, entries[0].Name())
}

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	if err := rec.Record(testFrame(10.5, false)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Record(testFrame(11.5, true)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records, err := ReadAll(recordingPath(t, dir))
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count %d, want 2", len(records))
	}
	if records[0].Ts != 10.5 || records[0].Synthetic {
		t.Fatalf("first record corrupted: %+v", records[0])
	}
	if records[1].Ts != 11.5 || !records[1].Synthetic {
		t.Fatalf("second record corrupted: %+v", records[1])
	}

	header, depth, _, err := protocol.DecodeFrame(records[0].Blob)
	if err != nil {
		t.Fatalf("decode stored blob: %v", err)
	}
	if header.W != 2 || header.H != 2 || len(depth) != 4 {
		t.Fatalf("stored blob decoded to %dx%d, %d depth values", header.W, header.H, len(depth))
	}
}

func TestRecordAfterCloseFails(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.Record(testFrame(1, false)); err == nil {
		t.Fatalf("expected error recording after close")
	}
}

func TestReadAllRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.rec")
	if err := os.WriteFile(path, []byte("NOTADEPTHFILE"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadAll(path); err == nil {
		t.Fatalf("expected magic error")
	}
}

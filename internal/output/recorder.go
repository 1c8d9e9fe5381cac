// Package output persists delivered frames to disk for offline
// inspection.
package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/protocol"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

const recordMagic = "LDEPREC1"

// Record is one captured frame: the timestamp and synthetic flag from
// production plus the exact wire blob a viewer would have received.
type Record struct {
	Ts        float64 `cbor:"ts"`
	Synthetic bool    `cbor:"synthetic"`
	Blob      []byte  `cbor:"blob"`
}

// Recorder appends length-prefixed CBOR records to a timestamped file.
type Recorder struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_livedepth.rec", timestamp))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(recordMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Recorder{f: f, w: w}, nil
}

// Record encodes the frame to its wire form and appends it.
func (r *Recorder) Record(fr *types.FrameResult) error {
	blob, err := protocol.EncodeFrame(fr)
	if err != nil {
		return err
	}
	payload, err := cbor.Marshal(Record{Ts: fr.Timestamp, Synthetic: fr.Synthetic, Blob: blob})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.New("recorder is closed")
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := r.w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

// ReadAll loads every record from a recording file.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	magic := make([]byte, len(recordMagic))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != recordMagic {
		return nil, fmt.Errorf("not a livedepth recording: magic %q", magic)
	}

	var records []Record
	var prefix [4]byte
	for {
		if _, err := io.ReadFull(reader, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("read record prefix: %w", err)
		}
		payload := make([]byte, binary.LittleEndian.Uint32(prefix[:]))
		if _, err := io.ReadFull(reader, payload); err != nil {
			return records, fmt.Errorf("read record payload: %w", err)
		}
		var rec Record
		if err := cbor.Unmarshal(payload, &rec); err != nil {
			return records, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}
}

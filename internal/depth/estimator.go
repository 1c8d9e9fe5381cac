// Package depth talks to the monocular depth estimator. The model runs
// out of process; this client ships frames to it and validates what
// comes back.
package depth

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// Estimator maps a normalized color image to a float depth grid. The
// grid may come back at the model's native resolution rather than the
// input resolution.
type Estimator interface {
	Estimate(ctx context.Context, img types.Image) (types.DepthMap, error)
}

type request struct {
	W   int    `cbor:"w"`
	H   int    `cbor:"h"`
	RGB []byte `cbor:"rgb"`
}

type reply struct {
	W     int    `cbor:"w"`
	H     int    `cbor:"h"`
	Depth []byte `cbor:"depth"`
}

// Remote is a ZMQ REQ client for an inference sidecar. A transport
// error poisons the REQ state machine, so the socket is torn down and
// re-dialed on the next call.
type Remote struct {
	mu       sync.Mutex
	endpoint string
	timeout  time.Duration
	socket   *zmq4.Socket
}

func NewRemote(endpoint string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{endpoint: endpoint, timeout: timeout}
}

func (r *Remote) Estimate(ctx context.Context, img types.Image) (types.DepthMap, error) {
	if err := ctx.Err(); err != nil {
		return types.DepthMap{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.socket == nil {
		if err := r.dialLocked(); err != nil {
			return types.DepthMap{}, err
		}
	}

	payload, err := cbor.Marshal(request{W: img.W, H: img.H, RGB: img.RGB})
	if err != nil {
		return types.DepthMap{}, fmt.Errorf("estimator request encode: %w", err)
	}
	if _, err := r.socket.SendBytes(payload, 0); err != nil {
		r.resetLocked()
		return types.DepthMap{}, fmt.Errorf("estimator send: %w", err)
	}
	raw, err := r.socket.RecvBytes(0)
	if err != nil {
		r.resetLocked()
		return types.DepthMap{}, fmt.Errorf("estimator recv: %w", err)
	}

	dm, err := decodeReply(raw)
	if err != nil {
		return types.DepthMap{}, err
	}
	return dm, nil
}

func (r *Remote) dialLocked() error {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return fmt.Errorf("estimator socket: %w", err)
	}
	if err := socket.SetRcvtimeo(r.timeout); err != nil {
		_ = socket.Close()
		return fmt.Errorf("estimator socket: %w", err)
	}
	if err := socket.SetSndtimeo(r.timeout); err != nil {
		_ = socket.Close()
		return fmt.Errorf("estimator socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return fmt.Errorf("estimator socket: %w", err)
	}
	if err := socket.Connect(r.endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("estimator connect %s: %w", r.endpoint, err)
	}
	r.socket = socket
	return nil
}

func (r *Remote) resetLocked() {
	if r.socket != nil {
		_ = r.socket.Close()
		r.socket = nil
	}
}

// Close releases the socket.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func decodeReply(raw []byte) (types.DepthMap, error) {
	var rep reply
	if err := cbor.Unmarshal(raw, &rep); err != nil {
		return types.DepthMap{}, fmt.Errorf("estimator reply decode: %w", err)
	}
	if rep.W < 1 || rep.H < 1 {
		return types.DepthMap{}, fmt.Errorf("estimator reply has bad dims %dx%d", rep.W, rep.H)
	}
	want := rep.W * rep.H * 4
	if len(rep.Depth) != want {
		return types.DepthMap{}, fmt.Errorf("estimator reply depth length %d, want %d", len(rep.Depth), want)
	}
	values := make([]float32, rep.W*rep.H)
	for i := range values {
		bits := binary.LittleEndian.Uint32(rep.Depth[i*4:])
		values[i] = math.Float32frombits(bits)
	}
	return types.DepthMap{W: rep.W, H: rep.H, Values: values}, nil
}

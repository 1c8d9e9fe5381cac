// Package camera resolves, opens and reads capture devices. Enumeration
// is pluggable: a platform listing utility when present, a brute-force
// open probe otherwise.
package camera

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/pipeline"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// Registry owns the active capture handle. All mutation goes through
// its mutex; Grab is only ever called from the pipeline runner but
// shares the lock with control-channel switches.
type Registry struct {
	mu          sync.Mutex
	providers   []Provider
	devices     []Descriptor
	targetWidth int
	handle      *gocv.VideoCapture
	active      int
}

func NewRegistry(targetWidth int, providers ...Provider) *Registry {
	return &Registry{
		providers:   providers,
		targetWidth: targetWidth,
		active:      -1,
	}
}

// Enumerate refreshes the device set from the first provider that
// yields anything.
func (r *Registry) Enumerate(ctx context.Context) []Descriptor {
	var devices []Descriptor
	for _, p := range r.providers {
		found, err := p.Enumerate(ctx)
		if err != nil {
			log.Printf("camera: provider %T unavailable: %v", p, err)
			continue
		}
		if len(found) > 0 {
			devices = found
			break
		}
	}
	r.mu.Lock()
	r.devices = devices
	snapshot := append([]Descriptor(nil), devices...)
	r.mu.Unlock()
	return snapshot
}

// Devices returns the last enumerated set without refreshing.
func (r *Registry) Devices() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Descriptor(nil), r.devices...)
}

// Resolve maps a name preference to a device index: exact match first,
// then case-insensitive substring, then the configured fallback index.
func (r *Registry) Resolve(namePreference string, fallbackIndex int) int {
	if namePreference == "" {
		return fallbackIndex
	}
	r.mu.Lock()
	devices := append([]Descriptor(nil), r.devices...)
	r.mu.Unlock()

	for _, d := range devices {
		if d.Name == namePreference {
			return d.Index
		}
	}
	lower := strings.ToLower(namePreference)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			return d.Index
		}
	}
	log.Printf("camera: no device matches %q, falling back to index %d", namePreference, fallbackIndex)
	return fallbackIndex
}

// Open opens the device at index, replacing any current handle.
func (r *Registry) Open(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(index)
}

func (r *Registry) openLocked(index int) error {
	if r.handle != nil {
		_ = r.handle.Close()
		r.handle = nil
		r.active = -1
	}
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return fmt.Errorf("camera %d did not open", index)
	}
	r.handle = vc
	r.active = index
	return nil
}

// Switch moves to a new device. The previous handle is closed first; if
// the new device fails to open the previous one is reopened so a usable
// handle is kept when avoidable.
func (r *Registry) Switch(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index == r.active && r.handle != nil {
		return nil
	}
	previous := r.active
	err := r.openLocked(index)
	if err == nil {
		return nil
	}
	if previous >= 0 {
		if reopenErr := r.openLocked(previous); reopenErr != nil {
			log.Printf("camera: lost previous device %d after failed switch: %v", previous, reopenErr)
		}
	}
	return err
}

// Active returns the currently open device index, or -1.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Grab reads one frame, resizes it to the target width (aspect
// preserved, derived height truncated) and converts BGR to RGB.
// A transient read miss surfaces as pipeline.ErrNoFrame.
func (r *Registry) Grab(ctx context.Context) (types.Image, error) {
	if err := ctx.Err(); err != nil {
		return types.Image{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return types.Image{}, fmt.Errorf("no camera handle open")
	}

	raw := gocv.NewMat()
	defer raw.Close()
	if ok := r.handle.Read(&raw); !ok || raw.Empty() {
		return types.Image{}, pipeline.ErrNoFrame
	}

	w0, h0 := raw.Cols(), raw.Rows()
	if w0 < 1 || h0 < 1 {
		return types.Image{}, pipeline.ErrNoFrame
	}
	w := r.targetWidth
	h := h0 * w / w0
	if h < 1 {
		h = 1
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(raw, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	data, err := rgb.ToBytes()
	if err != nil {
		return types.Image{}, fmt.Errorf("frame bytes: %w", err)
	}
	return types.Image{W: w, H: h, RGB: data}, nil
}

// Close releases the active handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		_ = r.handle.Close()
		r.handle = nil
		r.active = -1
	}
}

package camera

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// Descriptor identifies one capture device. Immutable once enumerated.
type Descriptor struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Provider enumerates available capture devices. Providers are
// best-effort; the registry falls through to the next one when a
// provider errors or finds nothing.
type Provider interface {
	Enumerate(ctx context.Context) ([]Descriptor, error)
}

// ListProvider shells out to the platform device-listing utility.
// Unavailable on systems without v4l2-ctl, which is fine: the probe
// provider covers those.
type ListProvider struct{}

var videoNodeRe = regexp.MustCompile(`^/dev/video(\d+)$`)

func (ListProvider) Enumerate(ctx context.Context) ([]Descriptor, error) {
	out, err := exec.CommandContext(ctx, "v4l2-ctl", "--list-devices").Output()
	if err != nil {
		return nil, fmt.Errorf("v4l2-ctl: %w", err)
	}
	return parseDeviceList(string(out)), nil
}

// parseDeviceList reads v4l2-ctl --list-devices output: a name line
// followed by indented /dev/video* nodes. Only the first node of each
// block is the capture device; the rest are metadata nodes.
func parseDeviceList(out string) []Descriptor {
	var devices []Descriptor
	name := ""
	captured := false
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") && !strings.HasPrefix(line, " ") {
			name = strings.TrimSpace(line)
			name = strings.TrimSuffix(name, ":")
			if i := strings.LastIndex(name, " ("); i > 0 {
				name = name[:i]
			}
			captured = false
			continue
		}
		node := strings.TrimSpace(line)
		m := videoNodeRe.FindStringSubmatch(node)
		if m == nil || captured {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		devices = append(devices, Descriptor{Index: index, Name: name})
		captured = true
	}
	return devices
}

// ProbeProvider brute-forces device indices by attempting to open each
// one. Slower than listing but works anywhere gocv does.
type ProbeProvider struct {
	// MaxIndex bounds the probe; zero means the default of 10 indices.
	MaxIndex int
}

func (p ProbeProvider) Enumerate(ctx context.Context) ([]Descriptor, error) {
	max := p.MaxIndex
	if max <= 0 {
		max = 10
	}
	var devices []Descriptor
	for i := 0; i < max; i++ {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		opened := vc.IsOpened()
		_ = vc.Close()
		if opened {
			devices = append(devices, Descriptor{Index: i, Name: fmt.Sprintf("Camera %d", i)})
		}
	}
	return devices, nil
}

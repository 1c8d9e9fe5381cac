package config

import (
	"fmt"
	"os"
	"time"
)

type AppConfig struct {
	Port         int
	CameraIndex  int
	CameraName   string
	TargetWidth  int
	Stride       int
	FOVDeg       float64
	EMAAlpha     float64
	ClampNear    float64
	ClampFar     float64
	Synthetic    bool
	Estimator    string
	MaxFPS       float64
	PingInterval time.Duration
	PongTimeout  time.Duration
	CertFile     string
	KeyFile      string
	Record       bool
	RecordDir    string
}

// TLS reports whether encrypted transport was requested.
func (c AppConfig) TLS() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// Validate enforces the startup-fatal configuration rules. Missing TLS
// material when TLS was requested is a configuration error, not a
// runtime error path.
func (c AppConfig) Validate() error {
	if c.TargetWidth < 1 {
		return fmt.Errorf("target width must be positive, got %d", c.TargetWidth)
	}
	if c.Stride < 1 {
		return fmt.Errorf("stride must be >= 1, got %d", c.Stride)
	}
	if c.FOVDeg <= 0 || c.FOVDeg >= 180 {
		return fmt.Errorf("fov must be in (0,180), got %g", c.FOVDeg)
	}
	if c.MaxFPS <= 0 {
		return fmt.Errorf("max fps must be positive, got %g", c.MaxFPS)
	}
	if c.TLS() {
		if c.CertFile == "" || c.KeyFile == "" {
			return fmt.Errorf("TLS requires both cert and key, got cert=%q key=%q", c.CertFile, c.KeyFile)
		}
		for _, path := range []string{c.CertFile, c.KeyFile} {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("TLS material unreadable: %w", err)
			}
		}
	}
	return nil
}

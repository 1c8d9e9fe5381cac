package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/camera"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/config"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/depth"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/hub"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/output"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/params"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/pipeline"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/server"
)

func main() {
	var (
		port             = flag.Int("port", 8765, "WebSocket listen port")
		cameraIndex      = flag.Int("camera-index", 0, "Capture device index used when no name matches")
		cameraName       = flag.String("camera-name", "", "Capture device name preference (exact, then substring match)")
		width            = flag.Int("width", 640, "Target frame width; height follows the source aspect")
		stride           = flag.Int("stride", 2, "Subsample stride for depth and color payloads")
		fov              = flag.Float64("fov", 60.0, "Horizontal field of view in degrees")
		emaAlpha         = flag.Float64("ema-alpha", 0.2, "Temporal smoothing factor in [0,1]")
		clampNear        = flag.Float64("clamp-near", 0.2, "Near bound of the normalized depth range")
		clampFar         = flag.Float64("clamp-far", 4.0, "Far bound of the normalized depth range")
		estimator        = flag.String("estimator", "tcp://127.0.0.1:5555", "ZMQ endpoint of the depth inference sidecar")
		estimatorTimeout = flag.Duration("estimator-timeout", 5*time.Second, "Inference request timeout")
		synthetic        = flag.Bool("synthetic", false, "Serve the synthetic test pattern instead of the camera")
		maxFPS           = flag.Float64("max-fps", 30, "Upper bound on produced frames per second")
		pingInterval     = flag.Duration("ping-interval", 30*time.Second, "WebSocket keepalive ping interval")
		pongTimeout      = flag.Duration("pong-timeout", 60*time.Second, "WebSocket pong wait before a session is considered dead")
		certFile         = flag.String("cert", "", "TLS certificate file (with -key enables wss)")
		keyFile          = flag.String("key", "", "TLS key file")
		record           = flag.Bool("record", false, "Record delivered frames to disk")
		recordDir        = flag.String("record-dir", "recordings", "Directory for frame recordings")
	)
	flag.Parse()

	cfg := config.AppConfig{
		Port:         *port,
		CameraIndex:  *cameraIndex,
		CameraName:   *cameraName,
		TargetWidth:  *width,
		Stride:       *stride,
		FOVDeg:       *fov,
		EMAAlpha:     *emaAlpha,
		ClampNear:    *clampNear,
		ClampFar:     *clampFar,
		Synthetic:    *synthetic,
		Estimator:    *estimator,
		MaxFPS:       *maxFPS,
		PingInterval: *pingInterval,
		PongTimeout:  *pongTimeout,
		CertFile:     *certFile,
		KeyFile:      *keyFile,
		Record:       *record,
		RecordDir:    *recordDir,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := params.NewStore(params.Set{
		EMAAlpha:  cfg.EMAAlpha,
		ClampNear: cfg.ClampNear,
		ClampFar:  cfg.ClampFar,
	})

	registry := camera.NewRegistry(cfg.TargetWidth, camera.ListProvider{}, camera.ProbeProvider{})
	defer registry.Close()

	var est pipeline.Estimator
	if !cfg.Synthetic {
		devices := registry.Enumerate(ctx)
		log.Printf("enumerated %d capture devices", len(devices))
		index := registry.Resolve(cfg.CameraName, cfg.CameraIndex)
		if err := registry.Open(index); err != nil {
			log.Printf("camera %d unavailable, starting degraded: %v", index, err)
		}

		remote := depth.NewRemote(cfg.Estimator, *estimatorTimeout)
		defer remote.Close()
		est = remote
	}

	pipe := pipeline.New(registry, est, store, pipeline.Config{
		TargetWidth: cfg.TargetWidth,
		Stride:      cfg.Stride,
		FOVDeg:      cfg.FOVDeg,
	})

	h := hub.New()

	var recorder hub.Recorder
	if cfg.Record {
		rec, err := output.NewRecorder(cfg.RecordDir)
		if err != nil {
			log.Fatalf("failed to start recorder: %v", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("recorder close failed: %v", err)
			}
		}()
		recorder = rec
	}

	runner := hub.NewRunner(pipe, h, cfg.MaxFPS, cfg.Synthetic, recorder, nil)
	go runner.Run(ctx)

	statusFn := func() map[string]any {
		payload := runner.Metrics().Snapshot()
		payload["degraded"] = runner.Degraded()
		payload["camera_active"] = registry.Active()
		return payload
	}

	scheme := "ws"
	if cfg.TLS() {
		scheme = "wss"
	}
	log.Printf("streaming on %s://localhost:%d/ws", scheme, cfg.Port)
	err := server.Run(ctx, cfg, server.Deps{
		Hub:      h,
		Params:   store,
		Cameras:  cameraAdapter{registry: registry},
		StatusFn: statusFn,
	})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// cameraAdapter narrows the registry to the surface the control
// channel needs.
type cameraAdapter struct {
	registry *camera.Registry
}

func (a cameraAdapter) Devices(ctx context.Context) []server.Device {
	enumerated := a.registry.Enumerate(ctx)
	devices := make([]server.Device, 0, len(enumerated))
	for _, d := range enumerated {
		devices = append(devices, server.Device{Index: d.Index, Name: d.Name})
	}
	return devices
}

func (a cameraAdapter) Switch(index int) error {
	return a.registry.Switch(index)
}

func (a cameraAdapter) Active() int {
	return a.registry.Active()
}

// Package server accepts viewer connections and runs one streaming
// session per connection: a producer goroutine delivering binary
// frames and a consumer goroutine handling JSON control messages.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/config"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/hub"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/params"
)

const writeWait = 10 * time.Second

// Device is one selectable capture device as reported to viewers.
type Device struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// CameraControl is the registry surface the control channel drives.
type CameraControl interface {
	Devices(ctx context.Context) []Device
	Switch(index int) error
	Active() int
}

// Deps are the collaborators a Server fans commands and frames through.
type Deps struct {
	Hub     *hub.Hub
	Params  *params.Store
	Cameras CameraControl
	// StatusFn contributes extra fields to /status. Optional.
	StatusFn func() map[string]any
}

type Server struct {
	upgrader websocket.Upgrader
	cfg      config.AppConfig
	deps     Deps
	baseCtx  context.Context

	pongWait  time.Duration
	pingEvery time.Duration
}

func New(ctx context.Context, cfg config.AppConfig, deps Deps) *Server {
	pongWait := cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	pingEvery := cfg.PingInterval
	if pingEvery <= 0 || pingEvery >= pongWait {
		pingEvery = pongWait * 9 / 10
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:       cfg,
		deps:      deps,
		baseCtx:   ctx,
		pongWait:  pongWait,
		pingEvery: pingEvery,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves until ctx is done. With TLS material configured it listens
// encrypted; Validate has already guaranteed the files exist.
func Run(ctx context.Context, cfg config.AppConfig, deps Deps) error {
	srv := New(ctx, cfg, deps)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.TLS() {
		return httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	}
	return httpServer.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := newSession(s, conn)
	go sess.run(s.baseCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	snap := s.deps.Params.Snapshot()
	payload := map[string]any{
		"port":       s.cfg.Port,
		"width":      s.cfg.TargetWidth,
		"stride":     s.cfg.Stride,
		"fov_deg":    s.cfg.FOVDeg,
		"ema_alpha":  snap.EMAAlpha,
		"clamp_near": snap.ClampNear,
		"clamp_far":  snap.ClampFar,
		"synthetic":  s.cfg.Synthetic,
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.deps.StatusFn != nil {
		payload = s.deps.StatusFn()
	}
	payload["ws_clients"] = s.deps.Hub.Count()
	payload["frames_dropped_total"] = s.deps.Hub.Dropped()
	_ = json.NewEncoder(w).Encode(payload)
}

func paramsPayload(msgType string, set params.Set) map[string]any {
	return map[string]any{
		"type":       msgType,
		"ema_alpha":  set.EMAAlpha,
		"clamp_near": set.ClampNear,
		"clamp_far":  set.ClampFar,
	}
}

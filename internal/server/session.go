package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/hub"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/protocol"
)

// Session state machine: Connecting → Active → (Degraded ⇄ Active) →
// Closed. Transitions are driven by the producer goroutine only; the
// consumer never touches state.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateDegraded
	stateClosed
)

// session is one viewer connection. The producer and consumer
// goroutines share only the write mutex; either one exiting cancels
// the session context, which stops the sibling and closes the
// connection. Other sessions are unaffected.
type session struct {
	id      string
	srv     *Server
	conn    *websocket.Conn
	writeMu sync.Mutex
	state   sessionState
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	return &session{
		id:    uuid.NewString(),
		srv:   srv,
		conn:  conn,
		state: stateConnecting,
	}
}

func (s *session) run(baseCtx context.Context) {
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	log.Printf("session %s: connected from %s", s.id, s.conn.RemoteAddr())

	s.conn.SetReadLimit(1 << 20)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.srv.pongWait))
	})

	// Handshake: zero-length-header frame, then the current tunables.
	if err := s.writeMessage(websocket.BinaryMessage, protocol.Handshake()); err != nil {
		log.Printf("session %s: handshake failed: %v", s.id, err)
		_ = s.conn.Close()
		return
	}
	if err := s.writeJSON(paramsPayload("params", s.srv.deps.Params.Snapshot())); err != nil {
		log.Printf("session %s: parameter announcement failed: %v", s.id, err)
		_ = s.conn.Close()
		return
	}
	s.state = stateActive

	sub := s.srv.deps.Hub.Subscribe()
	defer s.srv.deps.Hub.Unsubscribe(sub)

	// The consumer blocks in ReadMessage; closing the connection on
	// cancellation is what unblocks it.
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.produceLoop(ctx, sub)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.controlLoop(ctx)
	}()
	wg.Wait()

	s.state = stateClosed
	log.Printf("session %s: closed", s.id)
}

func (s *session) produceLoop(ctx context.Context, sub *hub.Subscriber) {
	ping := time.NewTicker(s.srv.pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case fr := <-sub.Frames():
			s.observe(fr.Synthetic)
			blob, err := protocol.EncodeFrame(fr)
			if err != nil {
				log.Printf("session %s: frame encode failed: %v", s.id, err)
				continue
			}
			if err := s.writeMessage(websocket.BinaryMessage, blob); err != nil {
				return
			}
		}
	}
}

// observe tracks Active ⇄ Degraded from the frames actually delivered,
// logging each transition once.
func (s *session) observe(synthetic bool) {
	switch {
	case synthetic && s.state == stateActive:
		s.state = stateDegraded
		log.Printf("session %s: degraded, serving synthetic frames", s.id)
	case !synthetic && s.state == stateDegraded:
		s.state = stateActive
		log.Printf("session %s: recovered, serving live frames", s.id)
	}
}

func (s *session) controlLoop(ctx context.Context) {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		cmd, err := protocol.ParseCommand(payload)
		if err != nil {
			// Malformed control messages are ignored, not fatal.
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *session) dispatch(ctx context.Context, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CmdListCams:
		devices := s.srv.deps.Cameras.Devices(ctx)
		if devices == nil {
			devices = []Device{}
		}
		_ = s.writeJSON(map[string]any{
			"type":     "cams",
			"items":    devices,
			"selected": s.srv.deps.Cameras.Active(),
		})
	case protocol.CmdSetCam:
		if cmd.Index == nil {
			_ = s.writeJSON(map[string]any{"type": "set_cam_err", "error": "missing index"})
			return
		}
		if err := s.srv.deps.Cameras.Switch(*cmd.Index); err != nil {
			_ = s.writeJSON(map[string]any{"type": "set_cam_err", "error": err.Error()})
			return
		}
		log.Printf("session %s: switched to camera %d", s.id, *cmd.Index)
		_ = s.writeJSON(map[string]any{"type": "set_cam_ok", "index": *cmd.Index})
	case protocol.CmdGetParams:
		_ = s.writeJSON(paramsPayload("params", s.srv.deps.Params.Snapshot()))
	case protocol.CmdSetParams:
		set := s.srv.deps.Params.Update(cmd.EMAAlpha, cmd.ClampNear, cmd.ClampFar)
		_ = s.writeJSON(paramsPayload("params_ok", set))
	default:
		// Unknown commands are ignored.
	}
}

func (s *session) writeJSON(payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(payload)
}

func (s *session) writeMessage(messageType int, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, payload)
}

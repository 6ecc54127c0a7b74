package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/blocking-sandbox/internal/control"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 1 << 16
	frameTypeState = "state"
	frameTypeError = "error"
)

var errSocketClosed = errors.New("socket closed")

// socket serialises writes to one connection.
type socket struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (s *socket) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *socket) writeControl(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	return s.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func (s *socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

func frame(kind, sessionID string, data map[string]any) map[string]any {
	return map[string]any{"type": kind, "session_id": sessionID, "data": data}
}

// serveSocket binds a WebSocket to one session. Client frames are control
// messages; server frames are {type: tick|complete|state|error, data}.
// Successful messages produce no frame except sync_state, which answers
// with the full state.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.mgr.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := logging.FromContext(ctx, s.log).With(logging.SessionID(id))

	sock := &socket{conn: conn}
	defer sock.close()

	sub := sess.Feed().Subscribe()
	defer sub.Close()

	if err := sock.writeJSON(frame(frameTypeState, id, sess.State().ToMap())); err != nil {
		return
	}
	log.Debug(ctx, "socket attached")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(ctx, sock, sub, log)
	}()

	s.readLoop(ctx, sock, id, log)
	cancel()
	sock.close()
	wg.Wait()
	log.Debug(ctx, "socket detached", logging.Int("dropped", int(sub.Dropped())))
}

// pump forwards feed events and keeps the connection alive with pings. A
// closed feed means the session was deleted; the socket is closed too.
func (s *Server) pump(ctx context.Context, sock *socket, sub *session.Subscription, log logging.Logger) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = sock.writeControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"))
				sock.close()
				return
			}
			if err := sock.writeJSON(ev.ToMap()); err != nil {
				log.Debug(ctx, "socket write failed", logging.Err(err))
				sock.close()
				return
			}
		case <-ping.C:
			if err := sock.writeControl(websocket.PingMessage, nil); err != nil {
				sock.close()
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, sock *socket, id string, log logging.Logger) {
	conn := sock.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Debug(ctx, "socket read ended", logging.Err(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		raw := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			f := &control.Failure{Code: control.CodeInvalidArgument, Message: errBadJSON.Error()}
			_ = sock.writeJSON(frame(frameTypeError, id, f.ToMap()))
			continue
		}
		s.handleFrame(ctx, sock, id, raw)
	}
}

func (s *Server) handleFrame(ctx context.Context, sock *socket, id string, raw map[string]any) {
	msg, f := control.MessageFromMap(raw, id)
	if f == nil && msg.SessionID != id {
		f = &control.Failure{Code: control.CodeInvalidArgument, Message: "socket is bound to session " + id}
	}
	var reply control.Reply
	if f == nil {
		reply, f = s.dispatch.Dispatch(ctx, msg)
	}
	if f != nil {
		_ = sock.writeJSON(frame(frameTypeError, id, f.ToMap()))
		return
	}
	if reply.State != nil {
		_ = sock.writeJSON(frame(frameTypeState, id, reply.State.ToMap()))
	}
}

// Package httpapi serves the session manager over REST and a push-style
// WebSocket channel.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/blocking-sandbox/internal/control"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/observability"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/model"
)

const maxBodyBytes = 1 << 16

const requestIDHeader = "X-Request-ID"

// Server holds the HTTP handlers.
type Server struct {
	dispatch  *control.Dispatcher
	mgr       *session.Manager
	log       logging.Logger
	collector *observability.RPCCollector
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRPCCollector records request metrics on c.
func WithRPCCollector(c *observability.RPCCollector) Option {
	return func(s *Server) { s.collector = c }
}

// WithGatherer sets what /metrics exposes. Without it /metrics is not
// routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCheckOrigin overrides the WebSocket origin check. The default
// accepts any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) {
		if fn != nil {
			s.upgrader.CheckOrigin = fn
		}
	}
}

// New builds a Server around d.
func New(d *control.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatch: d,
		mgr:      d.Manager(),
		log:      logging.Noop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestContext)
	if s.collector != nil {
		r.Use(s.collector.HTTPMiddleware(routeTemplate))
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/reset", s.resetSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/run", s.runSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/step", s.stepSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/control", s.controlSession).Methods(http.MethodPost)

	r.HandleFunc("/ws/sessions/{id}", s.serveSocket).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", observability.HandlerFor(s.gatherer)).Methods(http.MethodGet)
	}
	return r
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return ""
}

// requestContext attaches a request id and a request-scoped logger.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		ctx = logging.ContextWithLogger(ctx, s.log.With(
			logging.String("http_method", r.Method),
			logging.String("path", r.URL.Path),
		))
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.mgr.List()),
		"running":  s.mgr.Running(),
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, f := control.CreateOptionsFromMap(body)
	if f != nil {
		s.writeError(w, r, f)
		return
	}
	sess, err := s.mgr.Create(opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context(), s.log).Info(r.Context(), "session created", logging.SessionID(sess.ID()))
	writeJSON(w, http.StatusCreated, sess.State().ToMap())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.mgr.List()
	out := make([]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.State().ToMap())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.mgr.State(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.ToMap())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Reset(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getSession(w, r)
}

// runSession resolves an idle session synchronously. ?replay=true, or
// {"replay": true} in the body, reuses the recorded seed.
func (s *Server) runSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	replay, err := model.BoolField(body, "replay")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("replay") == "true" {
		replay = true
	}

	var ticks []model.TickResult
	if replay {
		ticks, err = s.mgr.Replay(r.Context(), id)
	} else {
		ticks, err = s.mgr.RunToCompletion(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.mgr.State(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticks": control.TicksToList(ticks),
		"state": st.ToMap(),
	})
}

func (s *Server) stepSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tick, err := s.mgr.Step(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.mgr.State(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tick": tick.ToMap(), "state": st.ToMap()})
}

// controlSession applies one live control message to the session in the
// path.
func (s *Server) controlSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, f := control.MessageFromMap(body, id)
	if f != nil {
		s.writeError(w, r, f)
		return
	}
	if msg.SessionID != id {
		s.writeError(w, r, &control.Failure{Code: control.CodeInvalidArgument, Message: "session_id does not match the path"})
		return
	}
	reply, f := s.dispatch.Dispatch(r.Context(), msg)
	if f != nil {
		s.writeError(w, r, f)
		return
	}
	writeJSON(w, http.StatusOK, reply.ToMap())
}

var errBadJSON = errors.New("request body is not a JSON object")

// readBody decodes an optional JSON object. An empty body yields an empty
// map.
func readBody(r *http.Request) (map[string]any, error) {
	out := map[string]any{}
	if r.Body == nil {
		return out, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, &control.Failure{Code: control.CodeInvalidArgument, Message: errBadJSON.Error() + ": " + err.Error()}
	}
	return out, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := control.FailureFromError("", err)
	code := control.HTTPStatus(f)
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "request failed", logging.Err(err))
	}
	writeJSON(w, code, map[string]any{"error": f.ToMap()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

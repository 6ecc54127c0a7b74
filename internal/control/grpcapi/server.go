package grpcapi

import (
	"context"

	"github.com/signalsfoundry/blocking-sandbox/internal/control"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/observability"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements SandboxControlServer on top of a control dispatcher.
type Server struct {
	dispatch *control.Dispatcher
	mgr      *session.Manager
	log      logging.Logger
}

var _ SandboxControlServer = (*Server)(nil)

// NewServer returns a service bound to d.
func NewServer(d *control.Dispatcher, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{dispatch: d, mgr: d.Manager(), log: log}
}

func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	opts, f := control.CreateOptionsFromMap(req.AsMap())
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	sess, err := s.mgr.Create(opts)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	logging.FromContext(ctx, s.log).Info(ctx, "session created", logging.SessionID(sess.ID()))
	return toStruct(sess.State().ToMap())
}

func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, f := control.SessionIDFromMap(req.AsMap())
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	st, err := s.mgr.State(id)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	return toStruct(st.ToMap())
}

func (s *Server) ListSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sessions := s.mgr.List()
	out := make([]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.State().ToMap())
	}
	return toStruct(map[string]any{"sessions": out})
}

func (s *Server) DeleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, f := control.SessionIDFromMap(req.AsMap())
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	if err := s.mgr.Delete(ctx, id); err != nil {
		return nil, control.ToStatusError(err)
	}
	return toStruct(map[string]any{"ok": true})
}

func (s *Server) ResetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, f := control.SessionIDFromMap(req.AsMap())
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	if err := s.mgr.Reset(ctx, id); err != nil {
		return nil, control.ToStatusError(err)
	}
	st, err := s.mgr.State(id)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	return toStruct(st.ToMap())
}

// RunToCompletion resolves an idle session synchronously. With replay set
// the recorded seed is reused instead of resetting the configuration.
func (s *Server) RunToCompletion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	id, f := control.SessionIDFromMap(m)
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	replay, err := model.BoolField(m, "replay")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var ticks []model.TickResult
	if replay {
		ticks, err = s.mgr.Replay(ctx, id)
	} else {
		ticks, err = s.mgr.RunToCompletion(ctx, id)
	}
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	st, err := s.mgr.State(id)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	return toStruct(map[string]any{
		"ticks": control.TicksToList(ticks),
		"state": st.ToMap(),
	})
}

func (s *Server) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, f := control.SessionIDFromMap(req.AsMap())
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	tick, err := s.mgr.Step(id)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	st, err := s.mgr.State(id)
	if err != nil {
		return nil, control.ToStatusError(err)
	}
	return toStruct(map[string]any{"tick": tick.ToMap(), "state": st.ToMap()})
}

// Control applies one live control message.
func (s *Server) Control(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, f := control.MessageFromMap(req.AsMap(), "")
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	reply, f := s.dispatch.Dispatch(ctx, msg)
	if f != nil {
		return nil, control.ToStatusError(f)
	}
	return toStruct(reply.ToMap())
}

// Watch streams a session's events. The first frame is the current state;
// the stream ends when the client goes away, the session is deleted, or,
// with until_complete set, after the first completion event.
func (s *Server) Watch(req *structpb.Struct, stream SandboxControl_WatchServer) error {
	ctx := stream.Context()
	m := req.AsMap()
	id, f := control.SessionIDFromMap(m)
	if f != nil {
		return control.ToStatusError(f)
	}
	untilComplete, err := model.BoolField(m, "until_complete")
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.mgr.Get(id)
	if err != nil {
		return control.ToStatusError(err)
	}

	sub := sess.Feed().Subscribe()
	defer sub.Close()

	log := logging.FromContext(ctx, s.log).With(logging.SessionID(id))
	if err := send(stream, map[string]any{
		"type":       "state",
		"session_id": id,
		"data":       sess.State().ToMap(),
	}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "watch closed by client", logging.Int("dropped", int(sub.Dropped())))
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := send(stream, ev.ToMap()); err != nil {
				return err
			}
			if untilComplete && ev.Kind == session.EventComplete {
				return nil
			}
		}
	}
}

func send(stream SandboxControl_WatchServer, m map[string]any) error {
	msg, err := toStruct(m)
	if err != nil {
		return err
	}
	return stream.Send(msg)
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// NewGRPCServer builds a grpc.Server with the sandbox interceptor chain and
// the otelgrpc stats handler, and registers srv on it. collector may be nil.
func NewGRPCServer(srv SandboxControlServer, log logging.Logger, collector *observability.RPCCollector, opts ...grpc.ServerOption) *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RequestIDStreamServerInterceptor(log),
	}
	if collector != nil {
		unary = append(unary, collector.UnaryServerInterceptor())
		stream = append(stream, collector.StreamServerInterceptor())
	}

	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
	server := grpc.NewServer(append(base, opts...)...)
	RegisterSandboxControlServer(server, srv)
	return server
}

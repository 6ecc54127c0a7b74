package control

import (
	"context"

	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
)

// Dispatcher applies control messages to a session manager.
type Dispatcher struct {
	mgr *session.Manager
	log logging.Logger
}

// NewDispatcher binds a dispatcher to mgr.
func NewDispatcher(mgr *session.Manager, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{mgr: mgr, log: log}
}

// Manager returns the underlying session manager.
func (d *Dispatcher) Manager() *session.Manager { return d.mgr }

// Dispatch applies msg. Start launches the loop with no extra observers;
// transports follow events through the session feed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (Reply, *Failure) {
	log := logging.FromContext(ctx, d.log)
	if msg.SessionID == "" {
		return Reply{}, &Failure{Code: CodeInvalidArgument, Message: "session_id is required"}
	}

	var (
		reply Reply
		err   error
	)
	switch msg.Type {
	case TypeStart:
		err = d.mgr.Start(msg.SessionID)
	case TypePause:
		err = d.mgr.Pause(msg.SessionID)
	case TypeResume:
		err = d.mgr.Resume(msg.SessionID)
	case TypeReset:
		err = d.mgr.Reset(ctx, msg.SessionID)
	case TypeStop:
		err = d.mgr.Stop(ctx, msg.SessionID)
	case TypeUpdatePlayer:
		err = d.mgr.UpdatePlayer(msg.SessionID, msg.Role, msg.Attributes)
	case TypeSetTickRate:
		err = d.mgr.SetTickRate(msg.SessionID, msg.TickRateMs)
	case TypeSyncState:
		state, serr := d.mgr.State(msg.SessionID)
		if serr == nil {
			reply.State = &state
		}
		err = serr
	case TypeStep:
		tick, serr := d.mgr.Step(msg.SessionID)
		if serr == nil {
			reply.Tick = &tick
		}
		err = serr
	default:
		return Reply{}, &Failure{Code: CodeUnknownMessage, Message: "unknown message type " + string(msg.Type)}
	}

	if err != nil {
		f := FailureFromError(msg.Type, err)
		log.Debug(ctx, "control message rejected",
			logging.SessionID(msg.SessionID),
			logging.String("type", string(msg.Type)),
			logging.String("code", string(f.Code)),
		)
		return Reply{}, f
	}
	log.Debug(ctx, "control message applied",
		logging.SessionID(msg.SessionID),
		logging.String("type", string(msg.Type)),
	)
	return reply, nil
}

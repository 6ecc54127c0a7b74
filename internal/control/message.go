// Package control translates transport-agnostic control messages into
// session manager calls and maps their failures onto wire codes.
package control

import (
	"fmt"
	"sort"
	"strings"

	"github.com/signalsfoundry/blocking-sandbox/model"
)

// MessageType names a live control message.
type MessageType string

const (
	TypeStart        MessageType = "start"
	TypePause        MessageType = "pause"
	TypeResume       MessageType = "resume"
	TypeReset        MessageType = "reset"
	TypeUpdatePlayer MessageType = "update_player"
	TypeSetTickRate  MessageType = "set_tick_rate"
	TypeSyncState    MessageType = "sync_state"
	TypeStop         MessageType = "stop"
	TypeStep         MessageType = "step"
)

var knownTypes = map[MessageType]bool{
	TypeStart:        true,
	TypePause:        true,
	TypeResume:       true,
	TypeReset:        true,
	TypeUpdatePlayer: true,
	TypeSetTickRate:  true,
	TypeSyncState:    true,
	TypeStop:         true,
	TypeStep:         true,
}

// Message is one control request against a session. Role and Attributes
// apply to update_player, TickRateMs to set_tick_rate.
type Message struct {
	Type       MessageType
	SessionID  string
	Role       model.Role
	Attributes map[string]int
	TickRateMs int
}

// MessageFromMap parses {type, session_id, role, attributes, tick_rate_ms}.
// sessionID, when non-empty, fills a missing session_id; socket frames
// carry the id in the URL instead of the body.
func MessageFromMap(m map[string]any, sessionID string) (Message, *Failure) {
	typ, err := model.StringField(m, "type")
	if err != nil {
		return Message{}, invalid(err)
	}
	msg := Message{Type: MessageType(strings.ToLower(strings.TrimSpace(typ)))}
	if msg.Type == "" {
		return Message{}, &Failure{Code: CodeInvalidArgument, Message: "message type is required"}
	}
	if !knownTypes[msg.Type] {
		return Message{}, &Failure{Code: CodeUnknownMessage, Message: fmt.Sprintf("unknown message type %q", typ)}
	}

	if msg.SessionID, err = model.StringField(m, "session_id"); err != nil {
		return Message{}, invalid(err)
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}

	switch msg.Type {
	case TypeUpdatePlayer:
		role, err := model.StringField(m, "role")
		if err != nil {
			return Message{}, invalid(err)
		}
		if msg.Role, err = model.ParseRole(role); err != nil {
			return Message{}, invalid(err)
		}
		attrs, err := model.MapField(m, "attributes")
		if err != nil {
			return Message{}, invalid(err)
		}
		if msg.Attributes, err = model.AttributePatchFromMap(attrs); err != nil {
			return Message{}, invalid(err)
		}
		if unknown := unknownAttributeKeys(attrs); len(unknown) > 0 {
			return Message{}, &Failure{Code: CodeInvalidArgument, Message: "unknown attributes: " + strings.Join(unknown, ", ")}
		}
	case TypeSetTickRate:
		if msg.TickRateMs, err = model.IntField(m, "tick_rate_ms"); err != nil {
			return Message{}, invalid(err)
		}
	}
	return msg, nil
}

func unknownAttributeKeys(attrs map[string]any) []string {
	known := make(map[string]bool, len(model.AttributeKeys))
	for _, k := range model.AttributeKeys {
		known[k] = true
	}
	var out []string
	for k := range attrs {
		if !known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ToMap renders the message in the form MessageFromMap accepts.
func (m Message) ToMap() map[string]any {
	out := map[string]any{
		"type":       string(m.Type),
		"session_id": m.SessionID,
	}
	switch m.Type {
	case TypeUpdatePlayer:
		out["role"] = m.Role.String()
		attrs := make(map[string]any, len(m.Attributes))
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		out["attributes"] = attrs
	case TypeSetTickRate:
		out["tick_rate_ms"] = m.TickRateMs
	}
	return out
}

// Reply carries the payload of a successful message: the state for
// sync_state and the tick for step. Other messages succeed silently.
type Reply struct {
	State *model.SimulationState
	Tick  *model.TickResult
}

// ToMap renders {ok, state?, tick?}.
func (r Reply) ToMap() map[string]any {
	out := map[string]any{"ok": true}
	if r.State != nil {
		out["state"] = r.State.ToMap()
	}
	if r.Tick != nil {
		out["tick"] = r.Tick.ToMap()
	}
	return out
}

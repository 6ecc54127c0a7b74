package control

import (
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/model"
)

// CreateOptionsFromMap parses a session creation body:
// {blocker?, rusher?, tick_rate_ms?, max_ticks?, qb_zone_depth?, seed?}.
// Participants use the flat player form; missing attributes keep the
// defaults for that side.
func CreateOptionsFromMap(m map[string]any) (session.CreateOptions, *Failure) {
	var (
		opts session.CreateOptions
		err  error
	)
	if m == nil {
		return opts, nil
	}
	if opts.Blocker, err = playerOption(m, "blocker", model.DefaultBlocker()); err != nil {
		return opts, invalid(err)
	}
	if opts.Rusher, err = playerOption(m, "rusher", model.DefaultRusher()); err != nil {
		return opts, invalid(err)
	}
	if opts.TickRateMs, err = model.IntField(m, "tick_rate_ms"); err != nil {
		return opts, invalid(err)
	}
	if opts.MaxTicks, err = model.IntField(m, "max_ticks"); err != nil {
		return opts, invalid(err)
	}
	if opts.QBZoneDepth, err = model.FloatField(m, "qb_zone_depth"); err != nil {
		return opts, invalid(err)
	}
	if opts.Seed, err = model.SeedField(m, "seed"); err != nil {
		return opts, invalid(err)
	}
	return opts, nil
}

func playerOption(m map[string]any, key string, base model.Player) (*model.Player, error) {
	if v, ok := m[key]; !ok || v == nil {
		return nil, nil
	}
	raw, err := model.MapField(m, key)
	if err != nil {
		return nil, err
	}
	p, err := model.PlayerFromMap(raw, base)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SessionIDFromMap reads the required session_id of a request body.
func SessionIDFromMap(m map[string]any) (string, *Failure) {
	id, err := model.StringField(m, "session_id")
	if err != nil {
		return "", invalid(err)
	}
	if id == "" {
		return "", &Failure{Code: CodeInvalidArgument, Message: "session_id is required"}
	}
	return id, nil
}

// TicksToList renders tick results for keyed transports.
func TicksToList(ticks []model.TickResult) []any {
	out := make([]any, len(ticks))
	for i, t := range ticks {
		out[i] = t.ToMap()
	}
	return out
}

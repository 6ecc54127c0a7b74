package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDefaultPlayersAreValid(t *testing.T) {
	for _, p := range []Player{DefaultBlocker(), DefaultRusher()} {
		if err := p.Validate(); err != nil {
			t.Fatalf("%s: Validate: %v", p.ID, err)
		}
	}

	b := DefaultBlocker()
	if b.Role != RoleBlocker || b.Attributes.Strength != 80 || b.Attributes.PassBlock != 78 {
		t.Fatalf("unexpected default blocker: %+v", b)
	}
	r := DefaultRusher()
	if r.Role != RoleRusher || r.Attributes.Strength != 82 || r.Attributes.PowerMoves != 78 {
		t.Fatalf("unexpected default rusher: %+v", r)
	}
}

func TestPlayerValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Player)
	}{
		{"missing id", func(p *Player) { p.ID = " " }},
		{"unknown role", func(p *Player) { p.Role = RoleUnknown }},
		{"attribute too high", func(p *Player) { p.Attributes.Speed = 100 }},
		{"attribute negative", func(p *Player) { p.Attributes.FinesseMoves = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultBlocker()
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidPlayer) {
				t.Fatalf("Validate = %v, want ErrInvalidPlayer", err)
			}
		})
	}
}

func TestAttributesMerge(t *testing.T) {
	base := DefaultRusher().Attributes

	got, err := base.Merge(map[string]int{AttrSpeed: 99, AttrPowerMoves: 0})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.Speed != 99 || got.PowerMoves != 0 || got.Strength != base.Strength {
		t.Fatalf("Merge result = %+v", got)
	}

	if _, err := base.Merge(map[string]int{"vertical": 40}); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("Merge unknown key err = %v", err)
	}
	if _, err := base.Merge(map[string]int{AttrAgility: 120}); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("Merge out of range err = %v", err)
	}
}

func TestPlayerMapForm(t *testing.T) {
	p := DefaultRusher()
	m := p.ToMap()
	if m["role"] != "rusher" {
		t.Fatalf("role rendered as %v", m["role"])
	}
	if m[AttrFinesseMoves] != 70 {
		t.Fatalf("finesse_moves rendered as %v", m[AttrFinesseMoves])
	}

	got, err := PlayerFromMap(m, Player{})
	if err != nil {
		t.Fatalf("PlayerFromMap: %v", err)
	}
	if got != p {
		t.Fatalf("PlayerFromMap = %+v, want %+v", got, p)
	}
}

func TestPlayerFromMapFillsFromBase(t *testing.T) {
	// Numbers decoded from JSON arrive as float64.
	got, err := PlayerFromMap(map[string]any{"name": "Rookie", "strength": float64(60)}, DefaultBlocker())
	if err != nil {
		t.Fatalf("PlayerFromMap: %v", err)
	}
	if got.Name != "Rookie" || got.Attributes.Strength != 60 || got.Attributes.PassBlock != 78 {
		t.Fatalf("PlayerFromMap = %+v", got)
	}

	if _, err := PlayerFromMap(map[string]any{"strength": 60.5}, DefaultBlocker()); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("fractional attribute err = %v", err)
	}
	if _, err := PlayerFromMap(map[string]any{"role": "kicker"}, DefaultBlocker()); !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("bad role err = %v", err)
	}
}

func TestPlayerJSONUsesStringRole(t *testing.T) {
	b, err := json.Marshal(DefaultBlocker())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal raw: %v", err)
	}
	if raw["role"] != "blocker" {
		t.Fatalf("json role = %v", raw["role"])
	}

	var back Player
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != DefaultBlocker() {
		t.Fatalf("json round trip = %+v", back)
	}
}

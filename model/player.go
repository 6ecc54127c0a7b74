package model

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the side a participant plays in the engagement.
type Role int

const (
	RoleUnknown Role = iota
	RoleBlocker
	RoleRusher
)

func (r Role) String() string {
	switch r {
	case RoleBlocker:
		return "blocker"
	case RoleRusher:
		return "rusher"
	default:
		return "unknown"
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRole accepts "blocker" or "rusher", case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blocker":
		return RoleBlocker, nil
	case "rusher":
		return RoleRusher, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: role %q", ErrUnknownTag, s)
	}
}

// Attribute bounds on the ratings scale.
const (
	MinAttribute = 0
	MaxAttribute = 99
)

// Attribute keys used by the flat map form and by partial updates.
const (
	AttrStrength      = "strength"
	AttrSpeed         = "speed"
	AttrAgility       = "agility"
	AttrPassBlock     = "pass_block"
	AttrAwareness     = "awareness"
	AttrBlockShedding = "block_shedding"
	AttrPowerMoves    = "power_moves"
	AttrFinesseMoves  = "finesse_moves"
)

// AttributeKeys lists every attribute key in canonical order.
var AttributeKeys = []string{
	AttrStrength, AttrSpeed, AttrAgility, AttrPassBlock, AttrAwareness,
	AttrBlockShedding, AttrPowerMoves, AttrFinesseMoves,
}

// Attributes are the ratings the resolver reads. The first five matter
// mostly to blockers, the last three to rushers.
type Attributes struct {
	Strength  int `json:"strength"`
	Speed     int `json:"speed"`
	Agility   int `json:"agility"`
	PassBlock int `json:"pass_block"`
	Awareness int `json:"awareness"`

	BlockShedding int `json:"block_shedding"`
	PowerMoves    int `json:"power_moves"`
	FinesseMoves  int `json:"finesse_moves"`
}

func (a *Attributes) field(key string) *int {
	switch key {
	case AttrStrength:
		return &a.Strength
	case AttrSpeed:
		return &a.Speed
	case AttrAgility:
		return &a.Agility
	case AttrPassBlock:
		return &a.PassBlock
	case AttrAwareness:
		return &a.Awareness
	case AttrBlockShedding:
		return &a.BlockShedding
	case AttrPowerMoves:
		return &a.PowerMoves
	case AttrFinesseMoves:
		return &a.FinesseMoves
	}
	return nil
}

// Get returns the value of a named attribute.
func (a Attributes) Get(key string) (int, bool) {
	p := a.field(key)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Merge returns a copy of a with the given attributes overwritten. Unknown
// keys and out-of-range values are rejected without applying anything.
func (a Attributes) Merge(patch map[string]int) (Attributes, error) {
	out := a
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := out.field(k)
		if p == nil {
			return a, fmt.Errorf("%w: unknown attribute %q", ErrInvalidPlayer, k)
		}
		v := patch[k]
		if v < MinAttribute || v > MaxAttribute {
			return a, fmt.Errorf("%w: %s=%d outside [%d,%d]", ErrInvalidPlayer, k, v, MinAttribute, MaxAttribute)
		}
		*p = v
	}
	return out, nil
}

// Validate checks every attribute is on the ratings scale.
func (a Attributes) Validate() error {
	for _, k := range AttributeKeys {
		v, _ := a.Get(k)
		if v < MinAttribute || v > MaxAttribute {
			return fmt.Errorf("%w: %s=%d outside [%d,%d]", ErrInvalidPlayer, k, v, MinAttribute, MaxAttribute)
		}
	}
	return nil
}

// Player is one participant in an engagement.
type Player struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	Attributes Attributes `json:"attributes"`
}

// Validate checks identity, role and attribute ranges.
func (p Player) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPlayer)
	}
	if p.Role != RoleBlocker && p.Role != RoleRusher {
		return fmt.Errorf("%w: role must be blocker or rusher", ErrInvalidPlayer)
	}
	return p.Attributes.Validate()
}

// DefaultBlocker returns the stock left tackle used when no blocker is given.
func DefaultBlocker() Player {
	return Player{
		ID:   "blocker-1",
		Name: "Left Tackle",
		Role: RoleBlocker,
		Attributes: Attributes{
			Strength:      80,
			Speed:         55,
			Agility:       62,
			PassBlock:     78,
			Awareness:     74,
			BlockShedding: 30,
			PowerMoves:    25,
			FinesseMoves:  20,
		},
	}
}

// DefaultRusher returns the stock edge rusher used when no rusher is given.
func DefaultRusher() Player {
	return Player{
		ID:   "rusher-1",
		Name: "Edge Rusher",
		Role: RoleRusher,
		Attributes: Attributes{
			Strength:      82,
			Speed:         76,
			Agility:       72,
			PassBlock:     20,
			Awareness:     66,
			BlockShedding: 75,
			PowerMoves:    78,
			FinesseMoves:  70,
		},
	}
}

// ToMap renders the player as a flat keyed structure with a string role.
func (p Player) ToMap() map[string]any {
	m := map[string]any{
		"id":   p.ID,
		"name": p.Name,
		"role": p.Role.String(),
	}
	for _, k := range AttributeKeys {
		v, _ := p.Attributes.Get(k)
		m[k] = v
	}
	return m
}

// PlayerFromMap parses the flat form produced by ToMap. Attributes that are
// absent keep the value from base, so callers can pass a default player to
// fill gaps.
func PlayerFromMap(m map[string]any, base Player) (Player, error) {
	p := base
	if v, ok := m["id"]; ok {
		s, ok := v.(string)
		if !ok {
			return Player{}, fmt.Errorf("%w: id must be a string", ErrInvalidPlayer)
		}
		p.ID = s
	}
	if v, ok := m["name"]; ok {
		s, ok := v.(string)
		if !ok {
			return Player{}, fmt.Errorf("%w: name must be a string", ErrInvalidPlayer)
		}
		p.Name = s
	}
	if v, ok := m["role"]; ok {
		s, _ := v.(string)
		r, err := ParseRole(s)
		if err != nil {
			return Player{}, err
		}
		p.Role = r
	}
	patch, err := AttributePatchFromMap(m)
	if err != nil {
		return Player{}, err
	}
	attrs, err := p.Attributes.Merge(patch)
	if err != nil {
		return Player{}, err
	}
	p.Attributes = attrs
	return p, p.Validate()
}

// AttributePatchFromMap extracts the attribute keys present in m. Other keys
// are ignored.
func AttributePatchFromMap(m map[string]any) (map[string]int, error) {
	patch := make(map[string]int)
	for _, k := range AttributeKeys {
		if _, ok := m[k]; !ok {
			continue
		}
		v, err := IntField(m, k)
		if err != nil {
			return nil, err
		}
		patch[k] = v
	}
	return patch, nil
}

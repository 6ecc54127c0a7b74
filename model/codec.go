package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrUnknownTag indicates a string tag that does not name an enum value.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrInvalidPlayer indicates a participant failed validation.
	ErrInvalidPlayer = errors.New("invalid player")
	// ErrInvalidField indicates a keyed field had the wrong shape.
	ErrInvalidField = errors.New("invalid field")
)

// FloatField reads a number from a keyed structure. Keyed structures arrive
// from JSON, structpb or hand-built maps, so any Go numeric kind is accepted.
// A missing or null key yields zero.
func FloatField(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidField, key, v)
	}
}

// IntField is FloatField restricted to integral values.
func IntField(m map[string]any, key string) (int, error) {
	f, err := FloatField(m, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidField, key, f)
	}
	return int(f), nil
}

// StringField reads an optional string.
func StringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidField, key, v)
	}
	return s, nil
}

// BoolField reads an optional bool.
func BoolField(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidField, key, v)
	}
	return b, nil
}

// MapField reads an optional nested object; a missing key yields an
// empty map.
func MapField(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object, got %T", ErrInvalidField, key, v)
	}
	return sub, nil
}

// SeedField reads a seed given either as a decimal string or as an
// integral number. Large seeds must use the string form to survive
// float64 transports.
func SeedField(m map[string]any, key string) (uint64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		return parseSeed(s)
	}
	f, err := FloatField(m, key)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > 1<<53 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %v", ErrInvalidField, key, f)
	}
	return uint64(f), nil
}

func formatSeed(seed uint64) string { return strconv.FormatUint(seed, 10) }

func parseSeed(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seed: %v", ErrInvalidField, err)
	}
	return v, nil
}

package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNumericFieldsAcceptAnyNumberKind(t *testing.T) {
	m := map[string]any{
		"f64":  float64(2.5),
		"i":    7,
		"i64":  int64(8),
		"num":  json.Number("9"),
		"null": nil,
	}
	if v, err := FloatField(m, "f64"); err != nil || v != 2.5 {
		t.Fatalf("FloatField = %v, %v", v, err)
	}
	for key, want := range map[string]int{"i": 7, "i64": 8, "num": 9, "null": 0, "missing": 0} {
		got, err := IntField(m, key)
		if err != nil || got != want {
			t.Fatalf("IntField(%s) = %d, %v; want %d", key, got, err, want)
		}
	}
	if _, err := IntField(m, "f64"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("fractional IntField should fail with ErrInvalidField, got %v", err)
	}
}

func TestFieldTypeMismatch(t *testing.T) {
	m := map[string]any{"n": 1.0, "s": "x", "b": true, "o": map[string]any{"k": 1.0}}
	if _, err := StringField(m, "n"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("StringField on number: %v", err)
	}
	if _, err := BoolField(m, "s"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("BoolField on string: %v", err)
	}
	if _, err := FloatField(m, "b"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("FloatField on bool: %v", err)
	}
	if _, err := MapField(m, "s"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("MapField on string: %v", err)
	}
	sub, err := MapField(m, "missing")
	if err != nil || sub == nil || len(sub) != 0 {
		t.Fatalf("MapField on missing key = %v, %v", sub, err)
	}
}

func TestSeedField(t *testing.T) {
	tests := []struct {
		in      any
		want    uint64
		wantErr bool
	}{
		{nil, 0, false},
		{"18446744073709551615", 18446744073709551615, false},
		{float64(42), 42, false},
		{7, 7, false},
		{"", 0, false},
		{"abc", 0, true},
		{float64(-1), 0, true},
		{1.5, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := SeedField(map[string]any{"seed": tt.in}, "seed")
		if (err != nil) != tt.wantErr {
			t.Fatalf("SeedField(%v) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("SeedField(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

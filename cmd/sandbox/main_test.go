package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	if err := run(ctx, args, &out, io.Discard); err != nil {
		t.Fatalf("run(%v): %v", args, err)
	}
	return out.String()
}

func TestRunJSONStreamsTicksAndCompletion(t *testing.T) {
	out := runCLI(t, "-clock", "accelerated", "-seed", "11", "-format", "json", "-replay")

	var kinds []string
	var last, lastTick map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var frame map[string]any
		if err := json.Unmarshal(sc.Bytes(), &frame); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		kind, _ := frame["type"].(string)
		kinds = append(kinds, kind)
		data, _ := frame["data"].(map[string]any)
		switch kind {
		case "tick":
			lastTick = data
		case "complete":
			last = data
		}
	}

	if len(kinds) < 4 || kinds[0] != "state" {
		t.Fatalf("unexpected frame sequence %v", kinds)
	}
	if kinds[len(kinds)-2] != "complete" || kinds[len(kinds)-1] != "replay" {
		t.Fatalf("expected complete then replay at the end, got %v", kinds)
	}
	if last["is_complete"] != true {
		t.Fatalf("final state not complete: %v", last)
	}
	switch last["outcome"] {
	case "RUSHER_WIN", "BLOCKER_WIN", "PANCAKE":
	default:
		t.Fatalf("non-terminal outcome %v", last["outcome"])
	}
	if lastTick["outcome"] != last["outcome"] {
		t.Fatalf("last tick outcome %v != final outcome %v", lastTick["outcome"], last["outcome"])
	}
	if !strings.Contains(out, `"match":true`) {
		t.Fatalf("replay from the same seed should match the live run:\n%s", out)
	}
}

func TestRunConcurrentSessionsText(t *testing.T) {
	out := runCLI(t, "-sessions", "3", "-seed", "5", "-max-ticks", "20", "-rusher", "speed=90,finesse_moves=85")
	if got := strings.Count(out, "outcome "); got != 3 {
		t.Fatalf("expected 3 outcome lines, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "max=20") {
		t.Fatalf("header does not reflect -max-ticks:\n%s", out)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.HasPrefix(line, "[") {
			t.Fatalf("multi-session line lacks a session prefix: %q", line)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown attribute", []string{"-blocker", "charisma=90"}},
		{"attribute out of range", []string{"-rusher", "speed=120"}},
		{"malformed attribute", []string{"-rusher", "speed"}},
		{"tick rate below range", []string{"-tick-rate", "10"}},
		{"unknown clock", []string{"-clock", "warp"}},
		{"unknown format", []string{"-format", "xml"}},
		{"zero sessions", []string{"-sessions", "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args, io.Discard, io.Discard)
			if err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
		})
	}
}

func TestAttrFlagString(t *testing.T) {
	a := attrFlag{}
	if err := a.Set("speed=90, strength=70"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := a.Set("agility=60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, want := a.String(), "agility=60,speed=90,strength=70"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

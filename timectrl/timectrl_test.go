package timectrl

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(epoch, RealTime)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestAcceleratedAfterFiresImmediately(t *testing.T) {
	tc := NewTimeController(epoch, Accelerated)
	var calls atomic.Int32
	tc.AddListener(func(time.Time) { calls.Add(1) })

	for i := 0; i < 3; i++ {
		select {
		case <-tc.After(100 * time.Millisecond):
		default:
			t.Fatalf("accelerated After did not fire synchronously")
		}
	}

	expected := epoch.Add(300 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if calls.Load() != 3 {
		t.Fatalf("listener calls = %d, want 3", calls.Load())
	}
}

func TestRealTimeAfterWaits(t *testing.T) {
	tc := NewTimeController(epoch, RealTime)
	start := time.Now()

	select {
	case got := <-tc.After(20 * time.Millisecond):
		if !got.Equal(epoch.Add(20 * time.Millisecond)) {
			t.Fatalf("fired with %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("real-time After never fired")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("real-time After fired too early")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":            RealTime,
		"realtime":    RealTime,
		"Accelerated": Accelerated,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("warp"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestManualClockAdvance(t *testing.T) {
	c := NewManualClock(epoch)
	short := c.After(100 * time.Millisecond)
	long := c.After(250 * time.Millisecond)

	if !c.BlockUntil(2, time.Second) {
		t.Fatalf("expected two waiters")
	}

	c.Advance(100 * time.Millisecond)
	select {
	case <-short:
	default:
		t.Fatalf("short waiter not fired")
	}
	select {
	case <-long:
		t.Fatalf("long waiter fired early")
	default:
	}
	if c.Waiters() != 1 {
		t.Fatalf("waiters = %d, want 1", c.Waiters())
	}

	c.Advance(150 * time.Millisecond)
	select {
	case got := <-long:
		if !got.Equal(epoch.Add(250 * time.Millisecond)) {
			t.Fatalf("long fired at %v", got)
		}
	default:
		t.Fatalf("long waiter not fired")
	}
}

func TestManualClockBlockUntilTimesOut(t *testing.T) {
	c := NewManualClock(epoch)
	if c.BlockUntil(1, 10*time.Millisecond) {
		t.Fatalf("BlockUntil reported a waiter that never registered")
	}
}

package session

import (
	"context"
	"sync"
)

// gate blocks the tick loop while a session is paused. The wait has no
// timeout; it ends on Open or on context cancellation.
type gate struct {
	mu   sync.Mutex
	open bool
	// ch is closed while the gate is open.
	ch chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{open: true, ch: ch}
}

// Open releases every waiter. Opening an open gate is a no-op.
func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.ch)
}

// Close makes later waits block. Closing a closed gate is a no-op.
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.ch = make(chan struct{})
}

func (g *gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait returns nil once the gate is open, or ctx.Err() if ctx ends first.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package session

import (
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/blocking-sandbox/model"
)

// Observer receives live events from a session's tick loop. Calls for one
// session are sequential. A panicking observer is recovered and counted;
// it never stops the loop.
type Observer interface {
	OnTick(sessionID string, res model.TickResult)
	OnComplete(sessionID string, final model.SimulationState)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Tick     func(sessionID string, res model.TickResult)
	Complete func(sessionID string, final model.SimulationState)
}

func (f ObserverFuncs) OnTick(id string, res model.TickResult) {
	if f.Tick != nil {
		f.Tick(id, res)
	}
}

func (f ObserverFuncs) OnComplete(id string, final model.SimulationState) {
	if f.Complete != nil {
		f.Complete(id, final)
	}
}

// EventKind tags feed events.
type EventKind int

const (
	EventTick EventKind = iota
	EventComplete
)

func (k EventKind) String() string {
	if k == EventComplete {
		return "complete"
	}
	return "tick"
}

// Event is one item delivered to feed subscribers. Tick is set for
// EventTick, State for EventComplete.
type Event struct {
	Kind      EventKind
	SessionID string
	Tick      model.TickResult
	State     model.SimulationState
}

// ToMap renders the event as a {type, session_id, data} frame.
func (e Event) ToMap() map[string]any {
	var data map[string]any
	if e.Kind == EventComplete {
		data = e.State.ToMap()
	} else {
		data = e.Tick.ToMap()
	}
	return map[string]any{
		"type":       e.Kind.String(),
		"session_id": e.SessionID,
		"data":       data,
	}
}

// Feed fans session events out to any number of subscribers over buffered
// channels. Publishing never blocks: a tick that finds a subscriber's
// buffer full is dropped for that subscriber and counted. A completion
// event evicts the oldest queued event instead, so every subscriber sees
// the end of the run.
type Feed struct {
	mu     sync.Mutex
	buffer int
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewFeed returns a feed whose subscriptions buffer up to buffer events.
func NewFeed(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{buffer: buffer, subs: make(map[uint64]*Subscription)}
}

// Subscription is one consumer of a Feed. C is closed when the
// subscription or the feed is closed.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	feed    *Feed
	id      uint64
	dropped atomic.Uint64
}

// Subscribe registers a new consumer. Subscribing to a closed feed yields
// an already-closed channel.
func (f *Feed) Subscribe() *Subscription {
	ch := make(chan Event, f.buffer)
	sub := &Subscription{C: ch, ch: ch, feed: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return sub
	}
	f.nextID++
	sub.id = f.nextID
	f.subs[sub.id] = sub
	return sub
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	f := s.feed
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s.id]; !ok {
		return
	}
	delete(f.subs, s.id)
	close(s.ch)
}

// Dropped reports how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Subscribers reports the number of attached consumers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// OnTick implements Observer.
func (f *Feed) OnTick(id string, res model.TickResult) {
	f.publish(Event{Kind: EventTick, SessionID: id, Tick: res})
}

// OnComplete implements Observer.
func (f *Feed) OnComplete(id string, final model.SimulationState) {
	f.publish(Event{Kind: EventComplete, SessionID: id, State: final})
}

func (f *Feed) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		if ev.Kind != EventComplete {
			sub.dropped.Add(1)
			continue
		}
		// Make room for the completion event.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close closes every subscription and rejects new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
}

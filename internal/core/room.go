package core

import (
	"sync"
	"sync/atomic"
)

// DefaultRoomCapacity is the per-subscriber backlog used when no capacity is
// configured.
const DefaultRoomCapacity = 512

// Room is the unit of message fan-out: a broadcast channel plus a live-member
// counter. The counter is explicit bookkeeping maintained by sessions through
// Increment/Decrement; it is deliberately not derived from the number of
// subscriptions.
type Room struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool

	members atomic.Int64
}

// Subscription is one receiving end of a room's broadcast channel. Receive
// from C; when the backlog overflowed since the last receive, TakeSkipped
// reports how many lines were dropped.
type Subscription struct {
	ch      chan string
	skipped atomic.Uint64
}

// C returns the channel broadcast lines arrive on. It is closed when the room
// is closed.
func (s *Subscription) C() <-chan string { return s.ch }

// TakeSkipped returns the number of lines dropped for this subscriber since
// the last call, resetting the count to zero.
func (s *Subscription) TakeSkipped() uint64 { return s.skipped.Swap(0) }

// NewRoom creates a room with the given per-subscriber backlog capacity and a
// member counter of zero. Non-positive capacity falls back to
// DefaultRoomCapacity.
func NewRoom(capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &Room{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe attaches a new receiving end to the room. It does not touch the
// member counter. Subscribing to a closed room yields an already-closed
// subscription, which the session observes as "room closed".
func (r *Room) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan string, r.capacity)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(sub.ch)
		return sub
	}
	r.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches a receiving end. The subscription's channel is left
// open; only Close terminates channels.
func (r *Room) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	delete(r.subs, sub)
}

// Broadcast delivers line to every current subscriber. With no subscribers it
// is a no-op. Publishers serialize on the room lock, so every subscriber sees
// lines in one room-wide order. A subscriber whose backlog is full loses its
// oldest pending line and its skip counter grows; it is never blocked on.
func (r *Room) Broadcast(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for sub := range r.subs {
		select {
		case sub.ch <- line:
			continue
		default:
		}
		// Backlog full: drop the oldest entry to make room. The receiver may
		// race us and drain the channel first, in which case the retry send
		// succeeds and nothing is lost.
		select {
		case <-sub.ch:
			sub.skipped.Add(1)
		default:
		}
		select {
		case sub.ch <- line:
		default:
			sub.skipped.Add(1)
		}
	}
}

// Increment adds one to the member counter.
func (r *Room) Increment() { r.members.Add(1) }

// Decrement subtracts one from the member counter. Callers pair every
// Decrement with a prior Increment of their own.
func (r *Room) Decrement() { r.members.Add(-1) }

// Members returns a snapshot of the member counter. It may be stale as soon
// as it is read; it is only used for best-effort room reaping and diagnostics.
func (r *Room) Members() int64 { return r.members.Load() }

// Close closes every subscriber's channel and detaches them. Subsequent
// Broadcast, Subscribe and Unsubscribe calls become no-ops (modulo the closed
// subscription Subscribe hands out). Called by the registry when a room is
// reaped.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		close(sub.ch)
	}
	r.subs = nil
}

package events

import (
	"context"
	"sync"

	"github.com/fenrik/clickseq/internal/models"
)

// Ring keeps the last N events in memory for live display. It is a Sink, so
// it slots into a fanout next to the persistent sinks.
type Ring struct {
	mu     sync.Mutex
	size   int
	events []models.Event
	next   int
	full   bool
}

// NewRing returns a ring buffer sized for the provided event count.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{
		size:   size,
		events: make([]models.Event, size),
	}
}

// Emit stores the event, evicting the oldest once full.
func (r *Ring) Emit(ctx context.Context, event *models.Event) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = *event
	r.next++
	if r.next >= r.size {
		r.next = 0
		r.full = true
	}
	return nil
}

// Close is a no-op.
func (r *Ring) Close() error {
	return nil
}

// Snapshot returns the buffered events in chronological order.
func (r *Ring) Snapshot() []models.Event {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]models.Event, r.next)
		copy(out, r.events[:r.next])
		return out
	}

	out := make([]models.Event, r.size)
	copy(out, r.events[r.next:])
	copy(out[r.size-r.next:], r.events[:r.next])
	return out
}

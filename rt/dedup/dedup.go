package dedup

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kean/fetchkit/rt/cancel"
	"github.com/kean/fetchkit/rt/safego"
)

// Loader performs the underlying load for one key. It runs on its own
// goroutine and should honor token to stop early; the returned error is
// relayed verbatim to every attached handler.
type Loader[K comparable, V any] func(token cancel.Token, key K) (V, error)

// Handler observes the completion of a load.
type Handler[V any] func(value V, err error)

// Deduplicator coalesces concurrent requests per key into one live unit of
// work.
//
// It is safe for concurrent use. Create with New.
type Deduplicator[K comparable, V any] struct {
	load Loader[K, V]

	mu    sync.Mutex
	units map[K]*unit[V]
}

type unit[V any] struct {
	source   *cancel.Source
	handlers map[uuid.UUID]Handler[V]
	retain   int
}

// New creates a Deduplicator around load.
func New[K comparable, V any](load Loader[K, V]) *Deduplicator[K, V] {
	if load == nil {
		panic("dedup: New called with nil loader")
	}
	return &Deduplicator[K, V]{
		load:  load,
		units: make(map[K]*unit[V]),
	}
}

// Load requests the value for key. If a live unit exists the caller joins it;
// otherwise the loader is started once under a fresh shared cancellation
// source. handler is invoked exactly once, unless every attached caller
// cancels first.
func (d *Deduplicator[K, V]) Load(key K, handler Handler[V]) *Handle[K, V] {
	if handler == nil {
		panic("dedup: Load called with nil handler")
	}
	id := uuid.New()

	d.mu.Lock()
	u, ok := d.units[key]
	if ok {
		u.retain++
		u.handlers[id] = handler
		d.mu.Unlock()
		return &Handle[K, V]{d: d, key: key, unit: u, id: id}
	}

	u = &unit[V]{
		source:   cancel.NewSource(),
		handlers: map[uuid.UUID]Handler[V]{id: handler},
		retain:   1,
	}
	d.units[key] = u
	token := u.source.Token()
	d.mu.Unlock()

	safego.Go(context.Background(), func(context.Context) {
		value, err := d.load(token, key)
		d.complete(key, u, value, err)
	}, safego.WithName("dedup-load"))

	return &Handle[K, V]{d: d, key: key, unit: u, id: id}
}

// complete evicts the unit (identity-guarded) and notifies its handlers.
func (d *Deduplicator[K, V]) complete(key K, u *unit[V], value V, err error) {
	d.mu.Lock()
	if d.units[key] != u {
		// Replaced after a last-caller cancellation; nobody is listening.
		d.mu.Unlock()
		return
	}
	delete(d.units, key)
	handlers := u.handlers
	u.handlers = nil
	d.mu.Unlock()

	for _, h := range handlers {
		h(value, err)
	}
}

// Len returns the number of live units.
func (d *Deduplicator[K, V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.units)
}

// Handle is one caller's attachment to a shared unit of work.
type Handle[K comparable, V any] struct {
	d    *Deduplicator[K, V]
	key  K
	unit *unit[V]
	id   uuid.UUID
}

// Cancel detaches this caller: its handler will not be invoked, except that a
// completion already in flight when Cancel is called may still reach it.
// When the last attached caller cancels, the shared cancellation source is
// cancelled, actually stopping the underlying work, and the unit is evicted.
// Idempotent; a no-op after the unit completed.
func (h *Handle[K, V]) Cancel() {
	d := h.d

	d.mu.Lock()
	if d.units[h.key] != h.unit {
		// Unit already completed or was replaced.
		d.mu.Unlock()
		return
	}
	u := h.unit
	if _, attached := u.handlers[h.id]; !attached {
		// This handle already cancelled.
		d.mu.Unlock()
		return
	}
	delete(u.handlers, h.id)
	u.retain--
	if u.retain > 0 {
		d.mu.Unlock()
		return
	}
	delete(d.units, h.key)
	source := u.source
	d.mu.Unlock()

	source.Cancel()
}

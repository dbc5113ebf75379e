package task

import "sync"

// Pool is a keyed task registry guaranteeing at most one live task per key.
//
// Every deduplicating call site must route through the same Pool; building
// tasks beside it defeats deduplication. Each pipeline stage typically owns
// its own Pool so requests that diverge at a later stage still share the
// earlier ones.
//
// It is safe for concurrent use.
type Pool[K comparable, T any] struct {
	mu          sync.Mutex
	deduplicate bool
	tasks       map[K]*Task[T]
}

// NewPool creates a pool. With deduplicate=false every Task call builds an
// independent task and the registry is bypassed entirely.
func NewPool[K comparable, T any](deduplicate bool) *Pool[K, T] {
	return &Pool[K, T]{
		deduplicate: deduplicate,
		tasks:       make(map[K]*Task[T]),
	}
}

// Task returns the live task registered under key, or builds one via create,
// registers it, and arranges for it to be evicted on disposal.
//
// Eviction is identity-guarded: a task's disposal removes the mapping only if
// the mapping still points at that exact task, so a stale disposal never
// evicts a newer task registered after the key was reused.
//
// The returned task may reach a terminal state at any moment; callers must
// tolerate Subscribe returning nil and retry through the pool.
//
// create runs under the pool's lock and must only construct the task; it must
// not call back into the pool.
func (p *Pool[K, T]) Task(key K, create func() *Task[T]) *Task[T] {
	if !p.deduplicate {
		return create()
	}

	p.mu.Lock()
	if t, ok := p.tasks[key]; ok && !t.State().IsTerminal() {
		p.mu.Unlock()
		return t
	}
	t := create()
	p.tasks[key] = t
	p.mu.Unlock()

	t.OnDisposed(func() { p.evict(key, t) })
	return t
}

func (p *Pool[K, T]) evict(key K, t *Task[T]) {
	p.mu.Lock()
	if p.tasks[key] == t {
		delete(p.tasks, key)
	}
	p.mu.Unlock()
}

// Len returns the number of registered tasks. Always 0 when deduplication is
// disabled.
func (p *Pool[K, T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Snapshot returns the currently registered keys, in no particular order.
func (p *Pool[K, T]) Snapshot() []K {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]K, 0, len(p.tasks))
	for k := range p.tasks {
		keys = append(keys, k)
	}
	return keys
}

package task

import (
	"slices"
	"sync"
)

// Task is a shareable handle around one in-flight unit of asynchronous work.
//
// Create with New. Work starts lazily on the first Subscribe. All methods are
// safe for concurrent use.
type Task[T any] struct {
	mu sync.Mutex

	state   State
	started bool
	starter func(*Task[T])

	subs    map[uint64]*subscriber[T]
	nextKey uint64

	priority Priority

	dependency       Dependency
	onCancel         func()
	onPriorityChange func(Priority)

	disposed   bool
	onDisposed func()
}

type subscriber[T any] struct {
	observer Observer[T]
	priority Priority
}

// New creates a task whose work is driven by starter.
//
// starter is invoked at most once, outside the task's lock, when the first
// subscription in the task's lifetime is made. It must arrange for events to
// be sent via Send/SendProgress/Fail and should wire OnCancel (and, for
// chained tasks, SetDependency) so cancellation reaches the underlying work.
func New[T any](starter func(*Task[T])) *Task[T] {
	if starter == nil {
		panic("task: New called with nil starter")
	}
	return &Task[T]{
		starter:  starter,
		subs:     make(map[uint64]*subscriber[T]),
		priority: DefaultPriority,
	}
}

// State returns the task's current lifecycle state.
func (t *Task[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Priority returns the task's effective priority (max over live
// subscriptions).
func (t *Task[T]) Priority() Priority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// Subscribe registers observer with DefaultPriority.
func (t *Task[T]) Subscribe(observer Observer[T]) *Subscription[T] {
	return t.SubscribeWithPriority(DefaultPriority, observer)
}

// SubscribeWithPriority registers observer at the given priority and returns
// its subscription, or nil if the task is already terminal.
//
// The first subscription in the task's lifetime triggers the starter.
func (t *Task[T]) SubscribeWithPriority(priority Priority, observer Observer[T]) *Subscription[T] {
	if observer == nil {
		panic("task: Subscribe called with nil observer")
	}

	t.mu.Lock()
	if t.state.IsTerminal() {
		t.mu.Unlock()
		return nil
	}
	key := t.nextKey
	t.nextKey++
	t.subs[key] = &subscriber[T]{observer: observer, priority: priority}

	first := !t.started
	t.started = true
	starter := t.starter
	t.starter = nil

	propagate, target, dep := t.recomputePriorityLocked()
	aggregate := t.priority
	t.mu.Unlock()

	if propagate {
		notifyPriority(target, dep, aggregate)
	}
	if first {
		starter(t)
	}
	return &Subscription[T]{task: t, key: key}
}

// unsubscribe removes one subscription. Removing the last one while the task
// is still executing cancels the task.
func (t *Task[T]) unsubscribe(key uint64) {
	t.mu.Lock()
	if _, ok := t.subs[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.subs, key)

	if t.state.IsTerminal() {
		t.mu.Unlock()
		return
	}
	if len(t.subs) == 0 {
		t.cancelLocked()
		return
	}
	propagate, target, dep := t.recomputePriorityLocked()
	aggregate := t.priority
	t.mu.Unlock()

	if propagate {
		notifyPriority(target, dep, aggregate)
	}
}

// setPriority updates one subscription's priority and propagates the new
// aggregate to the unit of work and the upstream dependency.
func (t *Task[T]) setPriority(key uint64, priority Priority) {
	t.mu.Lock()
	s, ok := t.subs[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	s.priority = priority
	propagate, target, dep := t.recomputePriorityLocked()
	aggregate := t.priority
	t.mu.Unlock()

	if propagate {
		notifyPriority(target, dep, aggregate)
	}
}

// recomputePriorityLocked recomputes the aggregate priority. It reports
// whether the aggregate changed and, if so, returns the propagation targets.
// Callers must hold t.mu.
func (t *Task[T]) recomputePriorityLocked() (changed bool, target func(Priority), dep Dependency) {
	aggregate := DefaultPriority
	first := true
	for _, s := range t.subs {
		if first || s.priority > aggregate {
			aggregate = s.priority
			first = false
		}
	}
	if aggregate == t.priority {
		return false, nil, nil
	}
	t.priority = aggregate
	return true, t.onPriorityChange, t.dependency
}

func notifyPriority(target func(Priority), dep Dependency, p Priority) {
	if target != nil {
		target(p)
	}
	if dep != nil {
		dep.SetPriority(p)
	}
}

// cancelLocked transitions the task to StateCancelled and releases its work
// and dependency. Callers must hold t.mu; it is released on return.
func (t *Task[T]) cancelLocked() {
	t.state = StateCancelled
	onCancel := t.onCancel
	dep := t.dependency
	t.mu.Unlock()

	if onCancel != nil {
		onCancel()
	}
	if dep != nil {
		dep.Unsubscribe()
	}
	t.dispose()
}

// Send delivers a value to every live subscriber. final marks the terminal
// value: the task transitions to StateCompleted and no further events are
// delivered. A no-op once the task is terminal.
func (t *Task[T]) Send(value T, final bool) {
	t.send(Event[T]{Kind: EventValue, Value: value, Final: final})
}

// SendProgress delivers a progress update to every live subscriber.
// A no-op once the task is terminal.
func (t *Task[T]) SendProgress(p Progress) {
	t.send(Event[T]{Kind: EventProgress, Progress: p})
}

// Fail delivers err to every live subscriber verbatim and transitions the
// task to StateFailed. A no-op once the task is terminal.
func (t *Task[T]) Fail(err error) {
	t.send(Event[T]{Kind: EventError, Err: err})
}

func (t *Task[T]) send(event Event[T]) {
	t.mu.Lock()
	if t.state.IsTerminal() {
		t.mu.Unlock()
		return
	}
	terminal := false
	switch {
	case event.Kind == EventValue && event.Final:
		t.state = StateCompleted
		terminal = true
	case event.Kind == EventError:
		t.state = StateFailed
		terminal = true
	}
	keys := make([]uint64, 0, len(t.subs))
	for k := range t.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys) // registration order; not contractual across subscribers
	t.mu.Unlock()

	for _, k := range keys {
		t.mu.Lock()
		s, ok := t.subs[k]
		if ok && terminal {
			delete(t.subs, k)
		}
		t.mu.Unlock()
		if ok {
			s.observer(event)
		}
	}
	if terminal {
		t.dispose()
	}
}

// OnCancel sets the hook invoked when the task self-cancels (last subscriber
// gone). Intended for the starter, to stop the underlying unit of work.
//
// Late-binding: if the task is already cancelled, f runs synchronously within
// this call.
func (t *Task[T]) OnCancel(f func()) {
	if f == nil {
		return
	}
	t.mu.Lock()
	if t.state == StateCancelled {
		t.mu.Unlock()
		f()
		return
	}
	t.onCancel = f
	t.mu.Unlock()
}

// OnPriorityChange sets the hook invoked with the new aggregate priority
// whenever it changes. Intended for the starter, to reprioritize the
// underlying unit of work.
func (t *Task[T]) OnPriorityChange(f func(Priority)) {
	t.mu.Lock()
	t.onPriorityChange = f
	t.mu.Unlock()
}

// SetDependency attaches the upstream subscription this task holds in a
// chain. Cancellation and priority changes propagate to it.
//
// Late-binding: if the task is already cancelled, dep is unsubscribed
// synchronously within this call.
func (t *Task[T]) SetDependency(dep Dependency) {
	if dep == nil {
		return
	}
	t.mu.Lock()
	if t.state == StateCancelled {
		t.mu.Unlock()
		dep.Unsubscribe()
		return
	}
	t.dependency = dep
	t.mu.Unlock()
}

// OnDisposed sets the one-shot hook fired when the task reaches a terminal
// state. Pools use it to evict the task. If the task is already terminal,
// f runs synchronously within this call.
func (t *Task[T]) OnDisposed(f func()) {
	if f == nil {
		return
	}
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		f()
		return
	}
	t.onDisposed = f
	t.mu.Unlock()
}

func (t *Task[T]) dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	onDisposed := t.onDisposed
	t.onDisposed = nil
	// Subscriptions must not outlive the task.
	clear(t.subs)
	t.mu.Unlock()

	if onDisposed != nil {
		onDisposed()
	}
}

// Subscription is a live observer registration with a task. The zero value
// and nil are inert.
type Subscription[T any] struct {
	task *Task[T]
	key  uint64
}

// Unsubscribe removes the registration. If it was the last one and the task
// is still executing, the task cancels itself and cascades the cancellation
// up its dependency chain. Idempotent; safe after the task is terminal.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || s.task == nil {
		return
	}
	s.task.unsubscribe(s.key)
}

// SetPriority updates this registration's priority. The task recomputes its
// aggregate and propagates it through the chain. Safe after Unsubscribe and
// after the task is terminal (no-op).
func (s *Subscription[T]) SetPriority(p Priority) {
	if s == nil || s.task == nil {
		return
	}
	s.task.setPriority(s.key, p)
}

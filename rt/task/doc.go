// Package task provides a shareable, cancellable handle around one unit of
// asynchronous work, with multiplexed observers, priority aggregation, and
// keyed deduplication pools.
//
// # Design highlights
//
//   - Task: one in-flight unit of work, shared by any number of subscribers.
//   - Lazy start: work begins on the first subscription, never at construction.
//   - Subscription: a live observer registration; removing the last one
//     cancels the task and cascades up its dependency chain.
//   - Priority: each subscription carries a priority; the task's effective
//     priority is the maximum over live subscriptions and is propagated to the
//     unit of work and up the chain.
//   - Pool: a keyed registry guaranteeing at most one live task per key.
//
// # Lifecycle
//
// A task starts in StateExecuting and reaches exactly one terminal state:
//
//	StateCompleted  a final value was sent
//	StateFailed     an error was sent
//	StateCancelled  the last subscriber unsubscribed before completion
//
// Terminal states are sticky. Once terminal, Subscribe returns nil and all
// producer-side sends are no-ops.
//
// # Events
//
// Each subscriber observes, in generation order: zero or more progress events,
// zero or more non-final values (progressive results), then exactly one final
// value or one error. A subscriber never observes events generated after its
// Unsubscribe call, except that a delivery already in flight when Unsubscribe
// is called may still complete. Cross-subscriber ordering is unspecified.
//
// # Producer side
//
// The starter passed to New receives the task and drives it:
//
//	t := task.New(func(t *task.Task[[]byte]) {
//		source := cancel.NewSource()
//		t.OnCancel(source.Cancel)
//		go load(source.Token(), func(data []byte, err error) {
//			if err != nil {
//				t.Fail(err)
//				return
//			}
//			t.Send(data, true)
//		})
//	})
//
// OnCancel, OnPriorityChange, and SetDependency are late-binding: if the task
// was already cancelled when they are called, the cancellation effect is
// applied synchronously (the hook runs, the dependency is unsubscribed). This
// closes the race between a starter wiring itself up and an early unsubscribe.
//
// # Dependency chains
//
// Tasks compose into chains (fetch -> decode -> process) by subscribing to an
// upstream task from within the starter and handing the resulting subscription
// to SetDependency. Cancellation and priority changes propagate through the
// chain synchronously with the call that triggered them.
//
// # Re-entrancy and locking
//
// Every callback (observer, starter, hooks, disposal) is invoked outside the
// task's lock. Callbacks may freely subscribe, unsubscribe, change priority,
// or send events on any task, including the one that invoked them.
package task

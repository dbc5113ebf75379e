// Package cancel provides a cooperative cancellation token/source pair.
//
// cancel is intentionally small and standard-library flavored: a Source owns the
// cancelled flag and a list of observer closures; a Token is a cheap, copyable
// handle that can only observe.
//
// # Exactly-once registration
//
// Register has a race-free exactly-once guarantee: a closure registered
// concurrently with Cancel is either included in the cancel sweep or invoked
// synchronously by Register itself, never both and never neither. Once a source
// is cancelled it is inert forever; registering afterwards invokes the closure
// immediately, within the calling stack frame.
//
// # Re-entrancy
//
// Observers are invoked outside the source lock, so an observer may safely call
// back into the source (for example, check IsCancelling) without deadlocking.
//
// # Shared lock
//
// Sources are usually created per logical operation and are short-lived. When
// many such sources are known to be uncontended, NewSourceWithLock lets them
// share a single mutex instead of allocating one each; every per-source
// guarantee above still holds individually.
//
// # Relation to context.Context
//
// cancel is not a replacement for context cancellation. It exists for code
// that needs late-attached observers with synchronous exactly-once semantics,
// which context.Context does not provide. Bridging is trivial: register a
// closure that cancels a context.
package cancel

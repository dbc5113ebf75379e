package cancel

import "sync"

// Source manages cancellation state and the observers registered against it.
//
// A Source is created per logical operation and cancelled by its owner.
// Cancellation is idempotent and permanent: after the first Cancel the source
// is inert forever.
//
// It is safe for concurrent use.
type Source struct {
	mu        *sync.Mutex
	cancelled bool
	observers []func()
}

// NewSource creates a Source with its own mutex.
func NewSource() *Source {
	return &Source{mu: &sync.Mutex{}}
}

// NewSourceWithLock creates a Source that shares mu with other sources.
//
// This is an optimization for short-lived, uncontended sources (for example,
// one per in-flight request): it avoids one mutex allocation per source. All
// per-source guarantees are identical to NewSource.
//
// mu must not be nil and must not be held by the caller when invoking any
// Source or Token method.
func NewSourceWithLock(mu *sync.Mutex) *Source {
	if mu == nil {
		panic("cancel: NewSourceWithLock called with nil mutex")
	}
	return &Source{mu: mu}
}

// Token returns a token observing s.
func (s *Source) Token() Token {
	return Token{source: s}
}

// IsCancelling reports whether Cancel has been called.
func (s *Source) IsCancelling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Cancel cancels the source and invokes every registered observer exactly
// once. Observers run outside the lock, in registration order (the order is
// not contractual). Subsequent calls are no-ops.
func (s *Source) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	observers := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, f := range observers {
		f()
	}
}

func (s *Source) register(f func()) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		f()
		return
	}
	s.observers = append(s.observers, f)
	s.mu.Unlock()
}

// Token observes a Source. It never owns cancellation state.
//
// The zero Token has no source: it is a permanent no-op that is never
// cancelling and discards registrations. Tokens are cheap to copy.
type Token struct {
	source *Source
}

// IsCancelling reports whether the backing source has been cancelled.
// It is always false for the zero Token.
func (t Token) IsCancelling() bool {
	if t.source == nil {
		return false
	}
	return t.source.IsCancelling()
}

// Register arranges for f to be invoked exactly once when the backing source
// is cancelled. If the source is already cancelled, f is invoked synchronously
// within this call. Register on the zero Token is a no-op.
func (t Token) Register(f func()) {
	if t.source == nil || f == nil {
		return
	}
	t.source.register(f)
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kean/fetchkit/rt/cancel"
	"github.com/kean/fetchkit/rt/safego"
	"github.com/kean/fetchkit/rt/tuning"
)

var (
	rateVar  = tuning.Default().MustFloat64("fetchkit.ratelimit.rate", 45, 0.1, 100_000)
	burstVar = tuning.Default().MustInt64("fetchkit.ratelimit.burst", 15, 1, 100_000)
	drainVar = tuning.Default().MustDuration("fetchkit.ratelimit.drain_interval",
		50*time.Millisecond, time.Millisecond, 10*time.Second)
)

// Limiter applies token-bucket admission control in front of a scheduler.
//
// It is safe for concurrent use. Create with New.
type Limiter struct {
	schedule   func(func())
	drainEvery time.Duration

	mu      sync.Mutex
	bucket  *rate.Limiter
	pending []item
	armed   bool
}

type item struct {
	token cancel.Token
	fn    func()
}

type config struct {
	rate       float64
	burst      int
	drainEvery time.Duration
	schedule   func(func())
}

// Option configures a Limiter at construction time.
type Option func(*config)

// WithRate sets the sustained admission rate in items per second.
func WithRate(perSecond float64) Option {
	return func(c *config) { c.rate = perSecond }
}

// WithBurst sets the bucket capacity (max items admitted back to back).
func WithBurst(n int) Option {
	return func(c *config) { c.burst = n }
}

// WithDrainInterval sets the period of the pending-queue drain timer.
func WithDrainInterval(d time.Duration) Option {
	return func(c *config) { c.drainEvery = d }
}

// WithScheduler sets the underlying scheduler admitted work is handed to.
// The default starts a panic-contained goroutine per item.
func WithScheduler(schedule func(func())) Option {
	return func(c *config) { c.schedule = schedule }
}

// New creates a Limiter. Unset options fall back to the fetchkit.ratelimit.*
// tuning values.
func New(opts ...Option) *Limiter {
	c := config{
		rate:       rateVar.Get(),
		burst:      int(burstVar.Get()),
		drainEvery: drainVar.Get(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.rate <= 0 {
		panic("ratelimit: rate must be > 0")
	}
	if c.burst < 1 {
		panic("ratelimit: burst must be >= 1")
	}
	if c.drainEvery <= 0 {
		panic("ratelimit: drain interval must be > 0")
	}
	if c.schedule == nil {
		c.schedule = func(fn func()) {
			safego.Go(context.Background(), func(context.Context) { fn() },
				safego.WithName("ratelimit"))
		}
	}
	return &Limiter{
		schedule:   c.schedule,
		drainEvery: c.drainEvery,
		bucket:     rate.NewLimiter(rate.Limit(c.rate), c.burst),
	}
}

// Execute runs fn through the limiter under token.
//
// Already-cancelled tokens are dropped without enqueueing or running. While
// the pending queue is empty and the bucket has capacity, fn is handed to the
// scheduler immediately; otherwise it joins the FIFO queue and is admitted by
// a later drain tick, unless its token is cancelled first.
func (l *Limiter) Execute(token cancel.Token, fn func()) {
	if token.IsCancelling() {
		return
	}

	l.mu.Lock()
	if len(l.pending) == 0 && l.bucket.Allow() {
		l.mu.Unlock()
		l.schedule(fn)
		return
	}
	l.pending = append(l.pending, item{token: token, fn: fn})
	l.armLocked()
	l.mu.Unlock()
}

// armLocked arms the drain timer if it is not already armed.
// Callers must hold l.mu.
func (l *Limiter) armLocked() {
	if l.armed {
		return
	}
	l.armed = true
	time.AfterFunc(l.drainEvery, l.drain)
}

func (l *Limiter) drain() {
	var admitted []func()

	l.mu.Lock()
	l.armed = false
	for len(l.pending) > 0 {
		head := l.pending[0]
		if head.token.IsCancelling() {
			// Discard so it cannot block the queue; no bucket token is
			// spent on work that will not run.
			l.pending = l.pending[1:]
			continue
		}
		if !l.bucket.Allow() {
			break
		}
		l.pending = l.pending[1:]
		admitted = append(admitted, head.fn)
	}
	if len(l.pending) > 0 {
		l.armLocked()
	} else {
		l.pending = nil
	}
	l.mu.Unlock()

	for _, fn := range admitted {
		l.schedule(fn)
	}
}

// Stats is a point-in-time view of the limiter's queue.
type Stats struct {
	// Pending is the number of items waiting for admission.
	Pending int
	// Armed reports whether the drain timer is currently armed.
	Armed bool
}

// Stats returns a snapshot of the pending queue.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Pending: len(l.pending), Armed: l.armed}
}

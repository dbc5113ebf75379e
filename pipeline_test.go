package fetchkit

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kean/fetchkit/rt/cancel"
	"github.com/kean/fetchkit/rt/ratelimit"
	"github.com/kean/fetchkit/rt/task"
)

// fixture is a controllable fetch/decode backend.
type fixture struct {
	mu           sync.Mutex
	fetchCalls   int32
	decodeCalls  int32
	fetchGate    chan struct{} // non-nil: fetches block until closed
	fetchErr     error
	sawCancelled atomic.Bool
}

func newFixture() *fixture { return &fixture{} }

func (f *fixture) fetch(token cancel.Token, key string) ([]byte, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	token.Register(func() { f.sawCancelled.Store(true) })
	f.mu.Lock()
	gate := f.fetchGate
	err := f.fetchErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if token.IsCancelling() {
		return nil, errors.New("fetch cancelled")
	}
	return []byte("raw:" + key), nil
}

func (f *fixture) decode(data []byte) (string, error) {
	atomic.AddInt32(&f.decodeCalls, 1)
	return "decoded:" + string(data), nil
}

type upcase struct{}

func (upcase) Identifier() string               { return "upcase" }
func (upcase) Process(v string) (string, error) { return strings.ToUpper(v), nil }

type suffix struct{ s string }

func (p suffix) Identifier() string               { return "suffix:" + p.s }
func (p suffix) Process(v string) (string, error) { return v + p.s, nil }

func collect(t *testing.T) (task.Observer[string], <-chan string, <-chan error) {
	t.Helper()
	values := make(chan string, 4)
	errs := make(chan error, 4)
	return func(e task.Event[string]) {
		switch e.Kind {
		case task.EventValue:
			if e.Final {
				values <- e.Value
			}
		case task.EventError:
			errs <- e.Err
		}
	}, values, errs
}

func recvValue(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for value")
		return ""
	}
}

func TestLoad_FetchDecodeProcess(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := NewPipeline(f.fetch, f.decode)

	obs, values, _ := collect(t)
	p.Load("img1", task.PriorityNormal, []Processor[string]{upcase{}}, obs)

	if got := recvValue(t, values); got != "DECODED:RAW:IMG1" {
		t.Fatalf("value=%q, want DECODED:RAW:IMG1", got)
	}
	if got := atomic.LoadInt32(&f.fetchCalls); got != 1 {
		t.Fatalf("fetchCalls=%d, want 1", got)
	}
	if got := atomic.LoadInt32(&f.decodeCalls); got != 1 {
		t.Fatalf("decodeCalls=%d, want 1", got)
	}
}

func TestLoad_SameKeySharesFetchAndDecode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode)

	obsA, valuesA, _ := collect(t)
	obsB, valuesB, _ := collect(t)

	// Diverge only at the processing stage: fetch and decode are shared.
	p.Load("img1", task.PriorityNormal, []Processor[string]{upcase{}}, obsA)
	p.Load("img1", task.PriorityNormal, []Processor[string]{suffix{s: "!"}}, obsB)

	close(f.fetchGate)

	if got := recvValue(t, valuesA); got != "DECODED:RAW:IMG1" {
		t.Fatalf("A value=%q", got)
	}
	if got := recvValue(t, valuesB); got != "decoded:raw:img1!" {
		t.Fatalf("B value=%q", got)
	}
	if got := atomic.LoadInt32(&f.fetchCalls); got != 1 {
		t.Fatalf("fetchCalls=%d for two requests, want 1", got)
	}
	if got := atomic.LoadInt32(&f.decodeCalls); got != 1 {
		t.Fatalf("decodeCalls=%d for two requests, want 1", got)
	}
}

func TestLoad_SameKeySameProcessorsIdenticalValue(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode)

	obsA, valuesA, _ := collect(t)
	obsB, valuesB, _ := collect(t)
	p.Load("img1", task.PriorityNormal, nil, obsA)
	p.Load("img1", task.PriorityNormal, nil, obsB)

	close(f.fetchGate)

	a, b := recvValue(t, valuesA), recvValue(t, valuesB)
	if a != b || a != "decoded:raw:img1" {
		t.Fatalf("a=%q b=%q, want identical terminal values", a, b)
	}
}

func TestLoad_ErrorReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	errFetch := errors.New("fetch down")
	f := newFixture()
	f.fetchErr = errFetch
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode)

	obsA, _, errsA := collect(t)
	obsB, _, errsB := collect(t)
	p.Load("img1", task.PriorityNormal, nil, obsA)
	p.Load("img1", task.PriorityNormal, []Processor[string]{upcase{}}, obsB)

	close(f.fetchGate)

	for name, ch := range map[string]<-chan error{"A": errsA, "B": errsB} {
		select {
		case err := <-ch:
			if !errors.Is(err, errFetch) {
				t.Fatalf("%s err=%v, want errFetch verbatim", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s never observed the error", name)
		}
	}
}

func TestLoad_LastUnsubscribeCancelsSharedWork(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode)

	obsA, _, _ := collect(t)
	obsB, _, _ := collect(t)
	subA := p.Load("img1", task.PriorityNormal, nil, obsA)
	subB := p.Load("img1", task.PriorityNormal, []Processor[string]{upcase{}}, obsB)

	// Wait for the shared fetch to actually start.
	waitFor(t, func() bool { return atomic.LoadInt32(&f.fetchCalls) == 1 })

	subA.Unsubscribe()
	if f.sawCancelled.Load() {
		t.Fatalf("shared fetch cancelled while another caller is attached")
	}

	subB.Unsubscribe()
	waitFor(t, func() bool { return f.sawCancelled.Load() })

	close(f.fetchGate)
}

func TestLoad_PriorityPropagatesToSharedChain(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode)

	obsA, _, _ := collect(t)
	subA := p.Load("img1", task.PriorityLow, []Processor[string]{upcase{}}, obsA)

	waitFor(t, func() bool { return atomic.LoadInt32(&f.fetchCalls) == 1 })

	ft := p.fetchTask("img1")
	if got := ft.Priority(); got != task.PriorityLow {
		t.Fatalf("fetch priority=%v, want low", got)
	}

	subA.SetPriority(task.PriorityVeryHigh)
	if got := ft.Priority(); got != task.PriorityVeryHigh {
		t.Fatalf("fetch priority=%v after SetPriority, want very-high (inherited through chain)", got)
	}

	subA.Unsubscribe()
	close(f.fetchGate)
}

func TestLoad_DeduplicationDisabled_IndependentChains(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchGate = make(chan struct{})
	p := NewPipeline(f.fetch, f.decode, WithDeduplication(false))

	obsA, valuesA, _ := collect(t)
	obsB, valuesB, _ := collect(t)
	p.Load("img1", task.PriorityNormal, nil, obsA)
	p.Load("img1", task.PriorityNormal, nil, obsB)

	// Stage pools are bypassed, but raw loads still coalesce in the
	// deduplicator: one underlying fetch serves both chains.
	waitFor(t, func() bool { return atomic.LoadInt32(&f.fetchCalls) == 1 })
	close(f.fetchGate)

	if got := recvValue(t, valuesA); got != "decoded:raw:img1" {
		t.Fatalf("A value=%q", got)
	}
	if got := recvValue(t, valuesB); got != "decoded:raw:img1" {
		t.Fatalf("B value=%q", got)
	}
	if got := atomic.LoadInt32(&f.fetchCalls); got != 1 {
		t.Fatalf("fetchCalls=%d, want 1 (dedup'd raw load)", got)
	}
	// Decode ran once per independent chain.
	waitFor(t, func() bool { return atomic.LoadInt32(&f.decodeCalls) == 2 })
}

func TestLoad_PoolsDrainAfterCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := NewPipeline(f.fetch, f.decode)

	obs, values, _ := collect(t)
	p.Load("img1", task.PriorityNormal, []Processor[string]{upcase{}}, obs)
	recvValue(t, values)

	waitFor(t, func() bool {
		return p.fetchPool.Len() == 0 && p.decodePool.Len() == 0 && p.processPool.Len() == 0
	})
}

func TestLoad_RateLimiterGatesFetches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	limiter := ratelimit.New(
		ratelimit.WithRate(50),
		ratelimit.WithBurst(1),
		ratelimit.WithDrainInterval(5*time.Millisecond),
	)
	p := NewPipeline(f.fetch, f.decode, WithRateLimiter(limiter))

	obsA, valuesA, _ := collect(t)
	obsB, valuesB, _ := collect(t)
	p.Load("a", task.PriorityNormal, nil, obsA)
	p.Load("b", task.PriorityNormal, nil, obsB)

	// Both eventually complete; the second is delayed by the bucket, not lost.
	va, vb := recvValue(t, valuesA), recvValue(t, valuesB)
	if va != "decoded:raw:a" || vb != "decoded:raw:b" {
		t.Fatalf("values=%q,%q", va, vb)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within 2s")
}

package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kean/fetchkit/rt/cancel"
)

// gate is a loader fixture that blocks until released.
type gate struct {
	loads   atomic.Int32
	release chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func (g *gate) loader(token cancel.Token, key string) (string, error) {
	g.loads.Add(1)
	<-g.release
	return "data:" + key, nil
}

func TestLoad_CoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()

	g := newGate()
	d := New(g.loader)

	var wg sync.WaitGroup
	wg.Add(2)
	var gotA, gotB string
	d.Load("k", func(v string, err error) { gotA = v; wg.Done() })
	d.Load("k", func(v string, err error) { gotB = v; wg.Done() })

	if got := d.Len(); got != 1 {
		t.Fatalf("Len=%d with two callers, want 1 unit", got)
	}
	close(g.release)
	wg.Wait()

	if got := g.loads.Load(); got != 1 {
		t.Fatalf("loads=%d, want 1", got)
	}
	if gotA != "data:k" || gotB != "data:k" {
		t.Fatalf("gotA=%q gotB=%q, want identical values", gotA, gotB)
	}
	if got := d.Len(); got != 0 {
		t.Fatalf("Len=%d after completion, want 0 (evicted)", got)
	}
}

func TestLoad_DistinctKeysDistinctUnits(t *testing.T) {
	t.Parallel()

	g := newGate()
	d := New(g.loader)

	var wg sync.WaitGroup
	wg.Add(2)
	d.Load("a", func(string, error) { wg.Done() })
	d.Load("b", func(string, error) { wg.Done() })

	waitFor(t, time.Second, func() bool { return g.loads.Load() == 2 })
	close(g.release)
	wg.Wait()
}

func TestLoad_ErrorRelayedVerbatim(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	d := New(func(cancel.Token, string) (string, error) { return "", errBoom })

	done := make(chan error, 1)
	d.Load("k", func(_ string, err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, errBoom) {
			t.Fatalf("err=%v, want errBoom", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler not invoked")
	}
}

func TestCancel_LastCallerStopsSharedWork(t *testing.T) {
	t.Parallel()

	g := newGate()
	var sawCancel atomic.Bool
	started := make(chan struct{})
	d := New(func(token cancel.Token, key string) (string, error) {
		token.Register(func() { sawCancel.Store(true) })
		close(started)
		return g.loader(token, key)
	})

	var invocations atomic.Int32
	handler := func(string, error) { invocations.Add(1) }

	ha := d.Load("k", handler)
	hb := d.Load("k", handler)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("loader did not start")
	}

	// Cancelling N-1 of N callers never stops shared work.
	ha.Cancel()
	if sawCancel.Load() {
		t.Fatalf("shared source cancelled after first caller's cancel")
	}
	if got := d.Len(); got != 1 {
		t.Fatalf("Len=%d after partial cancel, want 1", got)
	}

	// The Nth does.
	hb.Cancel()
	if !sawCancel.Load() {
		t.Fatalf("shared source not cancelled after last caller's cancel")
	}
	if got := d.Len(); got != 0 {
		t.Fatalf("Len=%d after full cancel, want 0 (evicted)", got)
	}

	// The still-blocked loader finishing must notify nobody.
	close(g.release)
	time.Sleep(20 * time.Millisecond)
	if got := invocations.Load(); got != 0 {
		t.Fatalf("handler invocations=%d after full cancel, want 0", got)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	t.Parallel()

	g := newGate()
	d := New(g.loader)

	ha := d.Load("k", func(string, error) {})
	hb := d.Load("k", func(string, error) {})

	// Repeated cancels of the same handle must not over-decrement.
	ha.Cancel()
	ha.Cancel()
	if got := d.Len(); got != 1 {
		t.Fatalf("Len=%d after double-cancel of one handle, want 1", got)
	}
	hb.Cancel()
	if got := d.Len(); got != 0 {
		t.Fatalf("Len=%d, want 0", got)
	}
	close(g.release)
}

func TestCancel_AfterCompletionIsNoop(t *testing.T) {
	t.Parallel()

	// First load for the key completes immediately; the second blocks.
	g := newGate()
	var calls atomic.Int32
	d := New(func(token cancel.Token, key string) (string, error) {
		if calls.Add(1) == 1 {
			return "v1", nil
		}
		<-g.release
		return "v2", nil
	})

	done := make(chan struct{})
	h := d.Load("k", func(string, error) { close(done) })
	<-done

	h.Cancel() // unit already evicted by completion

	// A newer unit under the same key must be unaffected by the stale handle.
	h2 := d.Load("k", func(string, error) {})
	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })

	h.Cancel() // stale handle again
	if got := d.Len(); got != 1 {
		t.Fatalf("Len=%d after stale cancel, want 1 (identity guard)", got)
	}
	h2.Cancel()
	close(g.release)
}

func TestStress_ConcurrentLoadAndCancel(t *testing.T) {
	// Property-ish test: many goroutines load and cancel the same key; no
	// deadlock, and retain counting never cancels work that still has a
	// caller attached at the moment of completion.
	g := newGate()
	d := New(g.loader)

	const n = 64
	var keep *Handle[string, string]
	done := make(chan string, 1)
	keep = d.Load("k", func(v string, err error) { done <- v })

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			h := d.Load("k", func(string, error) {})
			h.Cancel()
		}()
	}
	wg.Wait()

	close(g.release)
	select {
	case v := <-done:
		if v != "data:k" {
			t.Fatalf("value=%q, want data:k", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("surviving caller never completed; shared work was cancelled")
	}
	_ = keep
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

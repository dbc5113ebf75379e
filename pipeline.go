package fetchkit

import (
	"context"
	"strings"

	"github.com/kean/fetchkit/rt/cancel"
	"github.com/kean/fetchkit/rt/dedup"
	"github.com/kean/fetchkit/rt/ratelimit"
	"github.com/kean/fetchkit/rt/safego"
	"github.com/kean/fetchkit/rt/task"
	"github.com/kean/fetchkit/rt/tuning"
)

var dedupVar = tuning.Default().MustBool("fetchkit.pipeline.dedup", true)

// FetchFunc retrieves the raw bytes for a key. It should honor token to stop
// early; the returned error is relayed verbatim to subscribers.
type FetchFunc func(token cancel.Token, key string) ([]byte, error)

// DecodeFunc turns raw bytes into a value.
type DecodeFunc[V any] func(data []byte) (V, error)

// Processor transforms a decoded value. Identifier must be stable and unique
// per logical transformation: it keys deduplication of the processing stage.
type Processor[V any] interface {
	Identifier() string
	Process(V) (V, error)
}

// Pipeline is a fetch -> decode -> process chain with per-stage
// deduplication, cascading cancellation, and rate-limited fetch admission.
//
// It is safe for concurrent use. Create with NewPipeline.
type Pipeline[V any] struct {
	fetch  FetchFunc
	decode DecodeFunc[V]

	limiter *ratelimit.Limiter
	loader  *dedup.Deduplicator[string, []byte]

	fetchPool   *task.Pool[string, []byte]
	decodePool  *task.Pool[string, V]
	processPool *task.Pool[string, V]
}

// NewPipeline creates a pipeline around fetch and decode.
func NewPipeline[V any](fetch FetchFunc, decode DecodeFunc[V], opts ...PipelineOption) *Pipeline[V] {
	if fetch == nil {
		panic("fetchkit: NewPipeline called with nil fetch")
	}
	if decode == nil {
		panic("fetchkit: NewPipeline called with nil decode")
	}
	c := pipelineConfig{deduplicate: dedupVar.Get()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New()
	}
	p := &Pipeline[V]{
		fetch:       fetch,
		decode:      decode,
		limiter:     c.limiter,
		fetchPool:   task.NewPool[string, []byte](c.deduplicate),
		decodePool:  task.NewPool[string, V](c.deduplicate),
		processPool: task.NewPool[string, V](c.deduplicate),
	}
	p.loader = dedup.New(func(token cancel.Token, key string) ([]byte, error) {
		return p.fetch(token, key)
	})
	return p
}

// Load subscribes obs to the value for key, transformed by procs in order.
// Work starts lazily and is shared with every other in-flight request for the
// same stages. Unsubscribing the returned subscription cancels exactly the
// work no remaining caller needs.
func (p *Pipeline[V]) Load(key string, pri task.Priority, procs []Processor[V], obs task.Observer[V]) *task.Subscription[V] {
	for {
		t := p.processTask(key, procs)
		if sub := t.SubscribeWithPriority(pri, obs); sub != nil {
			return sub
		}
		// The task reached a terminal state between pool lookup and
		// subscribe; the pool evicts it, go again.
	}
}

// processTask returns the task producing key's value after procs have been
// applied. Each processor is its own pooled stage so requests sharing a
// processing prefix share those stages too.
func (p *Pipeline[V]) processTask(key string, procs []Processor[V]) *task.Task[V] {
	if len(procs) == 0 {
		return p.decodeTask(key)
	}
	pkey := processKey(key, procs)
	return p.processPool.Task(pkey, func() *task.Task[V] {
		return task.New(func(t *task.Task[V]) {
			last := procs[len(procs)-1]
			upstream := func() *task.Task[V] { return p.processTask(key, procs[:len(procs)-1]) }
			chain(t, upstream, func(v V, deliver func(V, error)) {
				safego.Go(context.Background(), func(context.Context) {
					deliver(last.Process(v))
				}, safego.WithName("process:"+last.Identifier()))
			})
		})
	})
}

func (p *Pipeline[V]) decodeTask(key string) *task.Task[V] {
	return p.decodePool.Task(key, func() *task.Task[V] {
		return task.New(func(t *task.Task[V]) {
			upstream := func() *task.Task[[]byte] { return p.fetchTask(key) }
			chain(t, upstream, func(data []byte, deliver func(V, error)) {
				safego.Go(context.Background(), func(context.Context) {
					deliver(p.decode(data))
				}, safego.WithName("decode"))
			})
		})
	})
}

// fetchTask returns the task loading the raw bytes for key. The load is
// admitted through the rate limiter and coalesced with identical in-flight
// loads by the deduplicator.
func (p *Pipeline[V]) fetchTask(key string) *task.Task[[]byte] {
	return p.fetchPool.Task(key, func() *task.Task[[]byte] {
		return task.New(func(t *task.Task[[]byte]) {
			source := cancel.NewSource()
			t.OnCancel(source.Cancel)

			p.limiter.Execute(source.Token(), func() {
				h := p.loader.Load(key, func(data []byte, err error) {
					if err != nil {
						t.Fail(err)
						return
					}
					t.Send(data, true)
				})
				// Exactly-once: if the task was cancelled while queued or
				// admitted, this detaches immediately.
				source.Token().Register(h.Cancel)
			})
		})
	})
}

// chain wires t to an upstream stage: progress and errors pass through,
// non-final values are ignored (stages transform only settled results), and
// the final value is handed to transform, which must call deliver exactly
// once. The upstream lookup is retried if the task goes terminal between
// pool lookup and subscribe.
func chain[U, V any](t *task.Task[V], upstream func() *task.Task[U], transform func(U, func(V, error))) {
	deliver := func(v V, err error) {
		if err != nil {
			t.Fail(err)
			return
		}
		t.Send(v, true)
	}
	for {
		ut := upstream()
		dep := ut.SubscribeWithPriority(t.Priority(), func(e task.Event[U]) {
			switch e.Kind {
			case task.EventProgress:
				t.SendProgress(e.Progress)
			case task.EventError:
				t.Fail(e.Err)
			case task.EventValue:
				if e.Final {
					transform(e.Value, deliver)
				}
			}
		})
		if dep != nil {
			t.SetDependency(dep)
			// Re-sync in case the aggregate moved between subscribe and attach.
			dep.SetPriority(t.Priority())
			return
		}
	}
}

func processKey[V any](key string, procs []Processor[V]) string {
	var b strings.Builder
	b.WriteString(key)
	for _, proc := range procs {
		b.WriteByte('|')
		b.WriteString(proc.Identifier())
	}
	return b.String()
}

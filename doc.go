// Package fetchkit coordinates overlapping asynchronous load requests:
// cooperative cancellation, deduplication of logically-equivalent work into a
// shared task graph, and rate-limited admission control.
//
// The building blocks live under rt/ and are usable on their own:
//
//   - rt/cancel: cancellation token/source with exactly-once observers.
//   - rt/task: shareable async units with multiplexed subscribers, priority
//     aggregation, dependency chaining, and keyed deduplication pools.
//   - rt/dedup: request-level coalescing over a shared cancellation source.
//   - rt/ratelimit: token-bucket admission control with a FIFO pending queue.
//   - rt/safego: panic-contained background execution.
//   - rt/tuning: runtime-tunable defaults.
//
// The root package assembles them into a Pipeline: a fetch -> decode ->
// process chain where any number of independent callers can request the same
// key concurrently while each distinct unit of underlying work executes at
// most once, work is cancelled exactly when no one still wants it, and bursts
// of demand are smoothed into a sustainable fetch rate.
//
//	pipeline := fetchkit.NewPipeline(fetchFn, decodeFn)
//	sub := pipeline.Load("img1", task.PriorityNormal, nil, func(e task.Event[Image]) {
//		switch e.Kind {
//		case task.EventValue:
//			if e.Final {
//				// done
//			}
//		case task.EventError:
//			// failed
//		}
//	})
//	// ...
//	sub.Unsubscribe() // cancels shared work if this was the last caller
//
// Two requests that diverge only at the processing stage still share the
// fetch and decode tasks; requests for the same key share everything.
package fetchkit

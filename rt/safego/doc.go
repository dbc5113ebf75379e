// Package safego provides helpers for running background work with panic and
// error reporting.
//
// safego does not return errors to its caller. Errors and panics are reported
// via handlers (if configured) or to stderr (by default). This makes it
// suitable for fire-and-forget background work — loaders, schedulers, pipeline
// stages — where a failure must still be noticed.
//
// Go/GoErr start a new goroutine. Run/RunErr execute synchronously. In all
// cases a recovered panic never takes down the process, and a panicking
// handler is itself contained.
//
// By default, context.Canceled and context.DeadlineExceeded are not reported:
// they are routine for work whose subscribers have all walked away. Use
// WithReportContextCancel(true) to report them.
//
// Nil context: if ctx is nil, safego treats it as context.Background().
//
// The exact stderr output format is best-effort diagnostic output and may
// change.
package safego

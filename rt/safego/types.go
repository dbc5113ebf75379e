package safego

import "context"

// ErrorHandler is called when a function returns a non-nil error (subject to
// context-cancel filtering).
type ErrorHandler func(ctx context.Context, info ErrorInfo)

// ErrorInfo describes an error returned from a function.
type ErrorInfo struct {
	Name string
	Err  error
}

// PanicHandler is called when a function panics.
type PanicHandler func(ctx context.Context, info PanicInfo)

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Name  string
	Value any
	Stack []byte
}

type config struct {
	name                string
	onError             ErrorHandler
	onPanic             PanicHandler
	reportContextCancel bool
}

// Option configures a single Go/GoErr/Run/RunErr call.
type Option func(*config)

// WithName sets a human-friendly name for the work, included in reports.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithErrorHandler sets the error handler. If not set, errors are reported to
// stderr. Panics in the handler are contained and reported to stderr.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) { c.onError = h }
}

// WithPanicHandler sets the panic handler. If not set, panics are reported to
// stderr. Panics in the handler are contained and reported to stderr.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) { c.onPanic = h }
}

// WithReportContextCancel controls whether context.Canceled and
// context.DeadlineExceeded are reported. Off by default.
func WithReportContextCancel(report bool) Option {
	return func(c *config) { c.reportContextCancel = report }
}

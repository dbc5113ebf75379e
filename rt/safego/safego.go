package safego

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Go starts fn in a new goroutine, recovering and reporting panics.
func Go(ctx context.Context, fn func(context.Context), opts ...Option) {
	GoErr(ctx, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// GoErr starts fn in a new goroutine. The error returned by fn is not
// returned to the caller; it is reported via WithErrorHandler (or stderr by
// default, subject to context-cancel filtering).
func GoErr(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	go RunErr(ctx, fn, opts...)
}

// Run executes fn synchronously, recovering and reporting panics. Use it
// inside your own goroutine when you control scheduling.
func Run(ctx context.Context, fn func(context.Context), opts ...Option) {
	RunErr(ctx, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// RunErr executes fn synchronously, applying the configured panic/error
// handling. The error returned by fn is reported, not returned.
func RunErr(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	if ctx == nil {
		ctx = context.Background()
	}

	var c config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		info := PanicInfo{
			Name:  c.name,
			Value: p,
			Stack: debug.Stack(),
		}
		if c.onPanic != nil {
			callPanicHandlerNoPanic(ctx, c.onPanic, info)
			return
		}
		reportPanicToStderr(info)
	}()

	err := fn(ctx)
	if err == nil {
		return
	}
	if !c.reportContextCancel && isContextCancel(err) {
		return
	}

	info := ErrorInfo{Name: c.name, Err: err}
	if c.onError != nil {
		callErrorHandlerNoPanic(ctx, c.onError, info)
		return
	}
	reportErrorToStderr(info)
}

func isContextCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func callErrorHandlerNoPanic(ctx context.Context, h ErrorHandler, info ErrorInfo) {
	defer func() {
		if p := recover(); p != nil {
			// A user handler must not take down the program.
			reportPanicToStderr(PanicInfo{
				Name:  info.Name,
				Value: fmt.Sprintf("safego: error handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	h(ctx, info)
}

func callPanicHandlerNoPanic(ctx context.Context, h PanicHandler, info PanicInfo) {
	defer func() {
		if p := recover(); p != nil {
			reportPanicToStderr(PanicInfo{
				Name:  info.Name,
				Value: fmt.Sprintf("safego: panic handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	h(ctx, info)
}

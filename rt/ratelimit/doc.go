// Package ratelimit provides token-bucket admission control for units of
// work executed under a cancellation token.
//
// A Limiter decorates an underlying scheduler: Execute either hands the
// closure straight through (while under burst capacity this adds zero
// latency), or parks it in a FIFO pending queue drained on a fixed short
// period as the bucket refills. Work whose token is already cancelled is
// silently dropped; a cancelled item at the head of the queue is discarded
// rather than allowed to block the items behind it.
//
// Rate limiting never produces an error: it only delays work, or drops work
// nobody wants anymore.
//
// The bucket is golang.org/x/time/rate: tokens accumulate lazily as a pure
// function of elapsed time at a fixed rate, capped at the burst size, and
// admission consumes one token. There is no background refill goroutine; the
// drain timer is armed only while the queue is non-empty.
//
// Defaults (rate 45/s, burst 15, drain every 50ms) absorb short bursts with
// no perceptible delay while protecting the underlying transport from
// sustained overload. They are registered as tuning variables
// (fetchkit.ratelimit.*) and are read at Limiter construction time.
package ratelimit

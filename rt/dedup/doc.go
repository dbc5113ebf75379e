// Package dedup collapses logically-equivalent concurrent requests into a
// single executed unit of work.
//
// A Deduplicator wraps a loader function. The first request for a key starts
// the loader once, under a cancellation source shared by everyone interested
// in that key; requests arriving while the load is in flight simply attach an
// extra completion handler and bump a retain count. When the load finishes,
// every attached handler observes the identical result (value or error,
// relayed verbatim) and the unit is evicted.
//
// Each caller holds its own Handle. Cancelling a handle decrements the retain
// count; the shared work is only stopped — the shared cancellation source
// cancelled and the unit evicted — when the count reaches zero. Cancelling
// N−1 of N attached callers never interrupts the work; the Nth does.
//
// Eviction is identity-guarded: a completion or late cancellation for an
// already-replaced unit never evicts the newer unit registered under the same
// key.
package dedup

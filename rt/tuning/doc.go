// Package tuning provides runtime-tunable parameters for online hot changes.
//
// It is designed to be small, stable and standard-library flavored.
//
// # Design highlights
//
//   - Strong-typed handles: BoolVar / Int64Var / Float64Var / DurationVar.
//   - Read path (Get) is lock-free, allocation-free and non-blocking.
//   - Write path (Set / SetFromString) is thread-safe and validated.
//   - The zero value of Tuning is not usable; create registries with New,
//     or use the process-wide Default registry.
//
// Components register their knobs at init time with defaults and optional
// min/max constraints, keep the returned handle, and read it on their hot
// path. Operators adjust values at runtime via Set or SetFromString and
// inspect them via Snapshot.
package tuning

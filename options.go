package fetchkit

import "github.com/kean/fetchkit/rt/ratelimit"

type pipelineConfig struct {
	deduplicate bool
	limiter     *ratelimit.Limiter
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption func(*pipelineConfig)

// WithDeduplication controls whether the per-stage task pools coalesce
// requests for the same key. Defaults to the fetchkit.pipeline.dedup tuning
// value (true). Disabling it makes every Load build an independent chain;
// raw fetches are still coalesced by the deduplicator.
func WithDeduplication(enabled bool) PipelineOption {
	return func(c *pipelineConfig) { c.deduplicate = enabled }
}

// WithRateLimiter sets the limiter gating fetch admission. Defaults to
// ratelimit.New().
func WithRateLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(c *pipelineConfig) { c.limiter = l }
}

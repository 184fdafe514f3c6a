package commission

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// STATS CACHE - Optional read-through cache at the stats boundary
// =============================================================================

// StatsCache caches computed CommissionStats keyed by (scope hash, period).
// Caching is explicit and boundary-only: StatsAggregator.Summarize reads through
// it, and a successful calculation invalidates the period. Implementations
// live in the cache package (noop, in-memory, redis).
type StatsCache interface {
	Get(ctx context.Context, key string) (*CommissionStats, bool, error)
	Set(ctx context.Context, key string, stats *CommissionStats, ttl time.Duration) error

	// InvalidatePeriod drops every cached entry for the period, across all
	// scope hashes.
	InvalidatePeriod(ctx context.Context, period Period) error
}

// StatsCacheKey builds the cache key for a scope+period combination.
// The period prefix is what InvalidatePeriod matches on.
func StatsCacheKey(period Period, scopeHash string) string {
	return fmt.Sprintf("stats:%s:%s", period, scopeHash)
}

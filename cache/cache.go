// Package cache provides implementations of commission.StatsCache: a noop
// cache for deployments without caching, an in-memory TTL cache, and a
// Redis-backed cache. Keys are commission.StatsCacheKey values; invalidation
// works on the period prefix.
package cache

import (
	"context"
	"time"

	"github.com/fuelgrid/commission-engine/commission"
)

// DefaultTTL is applied when a Set is called with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Noop disables caching entirely: every Get misses, every write succeeds.
type Noop struct{}

func (Noop) Get(_ context.Context, _ string) (*commission.CommissionStats, bool, error) {
	return nil, false, nil
}

func (Noop) Set(_ context.Context, _ string, _ *commission.CommissionStats, _ time.Duration) error {
	return nil
}

func (Noop) InvalidatePeriod(_ context.Context, _ commission.Period) error {
	return nil
}

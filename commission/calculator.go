/*
calculator.go - Commission calculation and batch orchestration

PURPOSE:
  Combines a station's aggregated volume with its resolved rate to produce
  one commission record per station per period, and orchestrates the batch
  over a caller's visible stations.

BATCH SEMANTICS:
  Per-station work is independent: aggregate -> resolve rate -> calculate
  -> upsert. One station's ledger failure is recorded in the failure list
  and does NOT abort the remaining stations. This is a best-effort batch,
  not an all-or-nothing transaction. Callers can distinguish:
    - "nothing to calculate"   empty success (empty scope or no data)
    - "some stations failed"   partial success with a failure list
    - "request was invalid"    a hard InvalidPeriod error

IDEMPOTENCY:
  Recalculating a period with unchanged stock data produces the same
  amounts and exactly one ledger row per key; the ledger's atomic upsert
  carries the invariant under concurrency.
*/
package commission

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// BATCH RESULT
// =============================================================================

// BatchResult is the outcome of one CalculateCommissions call.
type BatchResult struct {
	Period    Period
	Completed []CommissionRecord
	Failed    []StationFailure
	Quality   QualityReport
}

// QualityReport surfaces the non-fatal data repairs made during a batch.
// Nothing here blocks computation; it feeds data-quality dashboards.
type QualityReport struct {
	FallbackRateStations []StationID `json:"fallback_rate_stations,omitempty"`
	HighRateStations     []StationID `json:"high_rate_stations,omitempty"`
	NegativeVolumeDays   int         `json:"negative_volume_days,omitempty"`
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator wires the engine components into the batch operation.
type Calculator struct {
	Scope  AccessScope
	Stocks *StockAggregator
	Rates  *RateResolver
	Ledger Ledger
	Logger *zap.Logger

	// Cache, when set, is invalidated for the period after a batch that
	// completed at least one station.
	Cache StatsCache

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewCalculator(scope AccessScope, stocks *StockAggregator, rates *RateResolver, ledger Ledger, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		Scope:  scope,
		Stocks: stocks,
		Rates:  rates,
		Ledger: ledger,
		Logger: logger,
		Now:    time.Now,
	}
}

func (c *Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CalculateCommissions runs the batch for one period. stationIDs optionally
// narrows the caller's visible set; an empty intersection yields an empty
// success. A malformed or future period is the only hard error besides a
// scope or aggregation failure.
func (c *Calculator) CalculateCommissions(ctx context.Context, caller Identity, periodStr string, stationIDs []StationID) (*BatchResult, error) {
	now := c.now()

	period, err := ParsePeriodNotFuture(periodStr, now)
	if err != nil {
		return nil, err
	}

	visible, err := c.Scope.ResolveStations(ctx, caller)
	if err != nil {
		return nil, err
	}
	targets := IntersectScope(visible, stationIDs)

	result := &BatchResult{Period: period}
	if len(targets) == 0 {
		return result, nil
	}

	aggregates, err := c.Stocks.Aggregate(ctx, targets, period)
	if err != nil {
		return nil, err
	}

	for _, stationID := range targets {
		agg, ok := aggregates[stationID]
		if !ok {
			// No stock data for this station: nothing to calculate,
			// no record, not an error.
			continue
		}

		res := c.Rates.Resolve(ctx, stationID)
		if res.UsedFallback {
			result.Quality.FallbackRateStations = append(result.Quality.FallbackRateStations, stationID)
		}
		if res.UnusuallyHigh {
			result.Quality.HighRateStations = append(result.Quality.HighRateStations, stationID)
		}
		result.Quality.NegativeVolumeDays += agg.NegativeDays

		rec := c.build(stationID, period, agg, res, caller, now)
		stored, err := c.Ledger.Upsert(ctx, rec)
		if err != nil {
			c.Logger.Error("ledger upsert failed",
				zap.String("station_id", string(stationID)),
				zap.String("period", period.String()),
				zap.Error(err))
			result.Failed = append(result.Failed, StationFailure{
				StationID: stationID,
				Reason:    err.Error(),
			})
			continue
		}
		result.Completed = append(result.Completed, stored)
	}

	c.Logger.Info("commission batch finished",
		zap.String("period", period.String()),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failed)))

	if c.Cache != nil && len(result.Completed) > 0 {
		if err := c.Cache.InvalidatePeriod(ctx, period); err != nil {
			c.Logger.Warn("stats cache invalidation failed", zap.Error(err))
		}
	}

	return result, nil
}

// build produces the candidate record for one station. Status is pending;
// the ledger preserves an existing record's status on upsert.
func (c *Calculator) build(stationID StationID, period Period, agg StationAggregate, res RateResolution, caller Identity, now time.Time) CommissionRecord {
	return CommissionRecord{
		ID:               RecordIDFor(stationID, period),
		StationID:        stationID,
		Period:           period,
		TotalVolume:      agg.Volume,
		CommissionRate:   res.Rate,
		CommissionAmount: agg.Volume.Mul(res.Rate),
		Status:           StatusPending,
		CalculatedAt:     now,
		CalculatedBy:     caller.UserID,
	}
}

/*
progressive.go - Day-ordered cumulative commission series

PURPOSE:
  Builds the in-month trend view: one point per calendar date that has at
  least one stock record (sparse, not a fixed-length grid), with running
  cumulative sums from zero at period start and trend deltas versus the
  prior day. Deterministic and side-effect free; identical inputs always
  produce identical output.

RECONCILIATION INVARIANT:
  The final point's cumulative commission equals the commission amount
  CalculateCommissions would store for the same stations and period. Both
  paths resolve rates through the same RateResolver, so they cannot drift.
*/
package commission

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// DAY POINT
// =============================================================================

// Trend direction of daily volume versus the prior day in the series.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// DayPoint is one date's slice of the progressive series. Derived, never
// persisted; regenerated on every request.
type DayPoint struct {
	Date time.Time

	DailyVolume     decimal.Decimal
	DailyCommission decimal.Decimal

	CumulativeVolume     decimal.Decimal
	CumulativeCommission decimal.Decimal

	// Deltas versus the prior point in the series. Zero on the first point.
	VolumeChange     decimal.Decimal
	CommissionChange decimal.Decimal
	Trend            string

	// EffectiveRate is daily commission over daily volume, the blended rate
	// actually earned across the stations that dispensed that day.
	EffectiveRate decimal.Decimal

	// IsToday marks the in-progress day so consumers can distinguish final
	// from partial figures.
	IsToday bool
}

// =============================================================================
// PROGRESSIVE BUILDER
// =============================================================================

type ProgressiveBuilder struct {
	Scope  AccessScope
	Stocks StockRepository
	Rates  *RateResolver
	Logger *zap.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewProgressiveBuilder(scope AccessScope, stocks StockRepository, rates *RateResolver, logger *zap.Logger) *ProgressiveBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressiveBuilder{Scope: scope, Stocks: stocks, Rates: rates, Logger: logger, Now: time.Now}
}

func (b *ProgressiveBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build returns the ascending-by-date series for the caller's visible
// stations in a period, optionally narrowed to specific stations.
func (b *ProgressiveBuilder) Build(ctx context.Context, caller Identity, periodStr string, stationIDs []StationID) ([]DayPoint, error) {
	now := b.now()

	period, err := ParsePeriodNotFuture(periodStr, now)
	if err != nil {
		return nil, err
	}

	visible, err := b.Scope.ResolveStations(ctx, caller)
	if err != nil {
		return nil, err
	}
	targets := IntersectScope(visible, stationIDs)
	if len(targets) == 0 {
		return []DayPoint{}, nil
	}

	records, err := b.Stocks.Query(ctx, targets, period.Start(), period.ClampedEnd(now))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []DayPoint{}, nil
	}

	// One rate resolution per station for the whole series.
	rates := make(map[StationID]decimal.Decimal, len(targets))
	for _, id := range targets {
		rates[id] = b.Rates.Resolve(ctx, id).Rate
	}

	type daily struct {
		volume     decimal.Decimal
		commission decimal.Decimal
	}
	byDate := make(map[string]*daily)
	var dates []string
	for _, rec := range records {
		day := rec.Date.Format("2006-01-02")
		d, ok := byDate[day]
		if !ok {
			d = &daily{}
			byDate[day] = d
			dates = append(dates, day)
		}
		volume := rec.Volume()
		d.volume = d.volume.Add(volume)
		d.commission = d.commission.Add(volume.Mul(rates[rec.StationID]))
	}
	sort.Strings(dates)

	today := now.Format("2006-01-02")
	points := make([]DayPoint, 0, len(dates))
	cumVolume := decimal.Zero
	cumCommission := decimal.Zero

	for i, day := range dates {
		d := byDate[day]
		cumVolume = cumVolume.Add(d.volume)
		cumCommission = cumCommission.Add(d.commission)

		date, _ := time.Parse("2006-01-02", day)
		point := DayPoint{
			Date:                 date,
			DailyVolume:          d.volume,
			DailyCommission:      d.commission,
			CumulativeVolume:     cumVolume,
			CumulativeCommission: cumCommission,
			Trend:                TrendFlat,
			IsToday:              day == today,
		}
		if !d.volume.IsZero() {
			point.EffectiveRate = d.commission.Div(d.volume)
		}
		if i > 0 {
			prev := points[i-1]
			point.VolumeChange = d.volume.Sub(prev.DailyVolume)
			point.CommissionChange = d.commission.Sub(prev.DailyCommission)
			switch {
			case point.VolumeChange.IsPositive():
				point.Trend = TrendUp
			case point.VolumeChange.IsNegative():
				point.Trend = TrendDown
			}
		}
		points = append(points, point)
	}

	return points, nil
}

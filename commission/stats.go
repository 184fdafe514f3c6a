/*
stats.go - Summary statistics over the ledger and raw stock data

PURPOSE:
  Rolls a station set and period up into the back-office dashboard figures:
  totals and paid/pending splits, month progress, month-over-month growth,
  and the extrapolated month-end estimate.

EXTRAPOLATION:
  EstimatedFinalCommission is a straight-line projection:
  total / monthProgress * 100. It is not a forecast model; it is expected
  to be inaccurate early in the month and is labeled an estimate.

FALLBACK PATH:
  When no commission records exist for the period (never calculated), the
  same totals are derived directly from the stock aggregator and rate
  resolver, so stats stay meaningful before the first explicit calculation.
  Both paths share the resolver, so the fallback produces exactly the
  numbers a calculation would store.
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// COMMISSION STATS
// =============================================================================

// CommissionStats is the derived aggregate for a station set and period.
// All monetary figures are period-scoped.
type CommissionStats struct {
	Period string `json:"period"`

	TotalCommission    decimal.Decimal `json:"total_commission"`
	PaidCommission     decimal.Decimal `json:"paid_commission"`
	ApprovedCommission decimal.Decimal `json:"approved_commission"`
	PendingCommission  decimal.Decimal `json:"pending_commission"`
	TotalVolume        decimal.Decimal `json:"total_volume"`

	// AverageCommissionRate is the arithmetic mean of each station's
	// resolved (post-fallback) rate, consistent with the amounts actually
	// used in commission math.
	AverageCommissionRate decimal.Decimal `json:"average_commission_rate"`

	// MonthProgress is the percent of the month elapsed, in [0, 100].
	MonthProgress decimal.Decimal `json:"month_progress"`

	// EstimatedFinalCommission is the straight-line month-end estimate.
	EstimatedFinalCommission decimal.Decimal `json:"estimated_final_commission"`

	// MonthOverMonthGrowth is the percent change versus the previous
	// period's total. Zero when the previous period has no commission.
	MonthOverMonthGrowth decimal.Decimal `json:"month_over_month_growth"`

	StationCount     int `json:"station_count"`
	PaidStations     int `json:"paid_stations"`
	ApprovedStations int `json:"approved_stations"`
	PendingStations  int `json:"pending_stations"`

	// Derived is true when the totals came from the stock fallback path
	// rather than stored commission records.
	Derived bool `json:"derived"`
}

func zeroStats(period Period) *CommissionStats {
	return &CommissionStats{
		Period:                   period.String(),
		TotalCommission:          decimal.Zero,
		PaidCommission:           decimal.Zero,
		ApprovedCommission:       decimal.Zero,
		PendingCommission:        decimal.Zero,
		TotalVolume:              decimal.Zero,
		AverageCommissionRate:    decimal.Zero,
		MonthProgress:            decimal.Zero,
		EstimatedFinalCommission: decimal.Zero,
		MonthOverMonthGrowth:     decimal.Zero,
	}
}

// StatsFilter narrows a stats request. An empty Period means the current
// month; an empty StationID means the caller's whole visible set.
type StatsFilter struct {
	Period    string
	StationID StationID
}

// =============================================================================
// STATS AGGREGATOR
// =============================================================================

type StatsAggregator struct {
	Scope  AccessScope
	Ledger Ledger
	Stocks *StockAggregator
	Rates  *RateResolver
	Logger *zap.Logger

	// Cache, when set, is read through with CacheTTL per entry.
	Cache    StatsCache
	CacheTTL time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewStatsAggregator(scope AccessScope, ledger Ledger, stocks *StockAggregator, rates *RateResolver, logger *zap.Logger) *StatsAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsAggregator{
		Scope:  scope,
		Ledger: ledger,
		Stocks: stocks,
		Rates:  rates,
		Logger: logger,
		Now:    time.Now,
	}
}

func (s *StatsAggregator) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Summarize computes CommissionStats for the caller's visible stations.
// Empty input never fails: zero visible stations yield all-zero stats.
func (s *StatsAggregator) Summarize(ctx context.Context, caller Identity, filter StatsFilter) (*CommissionStats, error) {
	now := s.now()

	periodStr := filter.Period
	if periodStr == "" {
		periodStr = PeriodOf(now).String()
	}
	period, err := ParsePeriodNotFuture(periodStr, now)
	if err != nil {
		return nil, err
	}

	visible, err := s.Scope.ResolveStations(ctx, caller)
	if err != nil {
		return nil, err
	}
	var requested []StationID
	if filter.StationID != "" {
		requested = []StationID{filter.StationID}
	}
	targets := IntersectScope(visible, requested)
	if len(targets) == 0 {
		return zeroStats(period), nil
	}

	cacheKey := StatsCacheKey(period, ScopeHash(targets))
	if s.Cache != nil {
		if cached, ok, err := s.Cache.Get(ctx, cacheKey); err != nil {
			s.Logger.Warn("stats cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	stats, err := s.compute(ctx, targets, period, now)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, cacheKey, stats, s.CacheTTL); err != nil {
			s.Logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *StatsAggregator) compute(ctx context.Context, targets []StationID, period Period, now time.Time) (*CommissionStats, error) {
	stats := zeroStats(period)

	totals, err := s.periodTotals(ctx, targets, period)
	if err != nil {
		return nil, err
	}
	stats.TotalCommission = totals.commission
	stats.PaidCommission = totals.paid
	stats.ApprovedCommission = totals.approved
	stats.PendingCommission = totals.pending
	stats.TotalVolume = totals.volume
	stats.AverageCommissionRate = totals.averageRate
	stats.StationCount = totals.stations
	stats.PaidStations = totals.paidStations
	stats.ApprovedStations = totals.approvedStations
	stats.PendingStations = totals.pendingStations
	stats.Derived = totals.derived

	stats.MonthProgress = period.Progress(now)
	if stats.MonthProgress.IsPositive() {
		stats.EstimatedFinalCommission = stats.TotalCommission.Div(stats.MonthProgress).Mul(oneHundred)
	}

	previous, err := s.periodTotals(ctx, targets, period.Previous())
	if err != nil {
		return nil, err
	}
	if previous.commission.IsPositive() {
		stats.MonthOverMonthGrowth = stats.TotalCommission.Sub(previous.commission).
			Div(previous.commission).Mul(oneHundred)
	}

	return stats, nil
}

type periodTotals struct {
	commission decimal.Decimal
	paid       decimal.Decimal
	approved   decimal.Decimal
	pending    decimal.Decimal
	volume     decimal.Decimal

	averageRate decimal.Decimal

	stations         int
	paidStations     int
	approvedStations int
	pendingStations  int

	derived bool
}

// periodTotals sums one period, preferring stored records and falling back
// to stock-derived figures when the period was never calculated.
func (s *StatsAggregator) periodTotals(ctx context.Context, targets []StationID, period Period) (periodTotals, error) {
	var t periodTotals
	t.commission = decimal.Zero
	t.paid = decimal.Zero
	t.approved = decimal.Zero
	t.pending = decimal.Zero
	t.volume = decimal.Zero
	t.averageRate = decimal.Zero

	records, err := s.Ledger.ListByPeriod(ctx, targets, period)
	if err != nil {
		return t, err
	}

	if len(records) > 0 {
		rateSum := decimal.Zero
		for _, rec := range records {
			t.commission = t.commission.Add(rec.CommissionAmount)
			t.volume = t.volume.Add(rec.TotalVolume)
			rateSum = rateSum.Add(rec.CommissionRate)
			switch rec.Status {
			case StatusPaid:
				t.paid = t.paid.Add(rec.CommissionAmount)
				t.paidStations++
			case StatusApproved:
				t.approved = t.approved.Add(rec.CommissionAmount)
				t.approvedStations++
			default:
				t.pending = t.pending.Add(rec.CommissionAmount)
				t.pendingStations++
			}
		}
		t.stations = len(records)
		t.averageRate = rateSum.Div(decimal.NewFromInt(int64(len(records))))
		return t, nil
	}

	// Fallback: derive the same totals the calculator would have stored.
	aggregates, err := s.Stocks.Aggregate(ctx, targets, period)
	if err != nil {
		return t, err
	}
	if len(aggregates) == 0 {
		return t, nil
	}

	rateSum := decimal.Zero
	for _, stationID := range targets {
		agg, ok := aggregates[stationID]
		if !ok {
			continue
		}
		rate := s.Rates.Resolve(ctx, stationID).Rate
		amount := agg.Volume.Mul(rate)
		t.commission = t.commission.Add(amount)
		t.pending = t.pending.Add(amount)
		t.volume = t.volume.Add(agg.Volume)
		rateSum = rateSum.Add(rate)
		t.stations++
		t.pendingStations++
	}
	if t.stations > 0 {
		t.averageRate = rateSum.Div(decimal.NewFromInt(int64(t.stations)))
	}
	t.derived = true
	return t, nil
}

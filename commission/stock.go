/*
stock.go - Dispensed-volume aggregation over daily stock records

PURPOSE:
  Sums dispensed volume per station across a period's stock records.
  Stations with no records are simply absent from the result map; that is
  "no data, nothing to calculate", not an error. Negative or anomalous
  single-day volumes pass through unclamped and are only counted as a
  data-quality signal.

PARTIAL-MONTH SEMANTICS:
  For the current, in-progress month the query window is clamped to today.
  Past, closed months are queried in full.
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// STOCK REPOSITORY - Read-only source data
// =============================================================================

// StockRepository reads daily stock movement records. The engine never
// writes them.
type StockRepository interface {
	// Query returns all records for the stations in [from, to], ordered by
	// date ascending.
	Query(ctx context.Context, stationIDs []StationID, from, to time.Time) ([]DailyStockRecord, error)
}

// =============================================================================
// STOCK AGGREGATOR
// =============================================================================

// StationAggregate is one station's summed volume for a period.
type StationAggregate struct {
	Volume      decimal.Decimal
	RecordCount int

	// NegativeDays counts records whose daily volume was negative. They are
	// included in Volume regardless; the count feeds data-quality reporting.
	NegativeDays int
}

type StockAggregator struct {
	Repo   StockRepository
	Logger *zap.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewStockAggregator(repo StockRepository, logger *zap.Logger) *StockAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockAggregator{Repo: repo, Logger: logger, Now: time.Now}
}

func (a *StockAggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Aggregate sums dispensed volume per station over the period. Stations
// with zero matching records are absent from the result map.
func (a *StockAggregator) Aggregate(ctx context.Context, stationIDs []StationID, period Period) (map[StationID]StationAggregate, error) {
	if len(stationIDs) == 0 {
		return map[StationID]StationAggregate{}, nil
	}

	records, err := a.Repo.Query(ctx, stationIDs, period.Start(), period.ClampedEnd(a.now()))
	if err != nil {
		return nil, err
	}

	result := make(map[StationID]StationAggregate)
	for _, rec := range records {
		agg := result[rec.StationID]
		volume := rec.Volume()
		agg.Volume = agg.Volume.Add(volume)
		agg.RecordCount++
		if volume.IsNegative() {
			agg.NegativeDays++
			a.Logger.Warn("negative daily volume",
				zap.String("station_id", string(rec.StationID)),
				zap.String("product_id", rec.ProductID),
				zap.String("date", rec.Date.Format("2006-01-02")),
				zap.String("volume", volume.String()))
		}
		result[rec.StationID] = agg
	}
	return result, nil
}

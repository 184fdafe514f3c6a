/*
rate.go - Commission rate validation and repair

PURPOSE:
  Station master data is an untrusted rate source: rates arrive as free
  text and may be absent, non-numeric, zero, negative, or above 1. All
  coercion lives here, in one place, instead of scattered inline checks.

  This is a data-repair function, not a validator that blocks processing.
  It never fails; it always returns a usable rate. Repairs are flagged on
  the result and logged so data-quality dashboards can pick them up.
*/
package commission

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FallbackRate is applied when a station's stored rate is absent or
// unusable. 5% of dispensed volume.
var FallbackRate = decimal.New(5, -2) // 0.05

// RateResolution is the tagged result of repairing a raw rate.
type RateResolution struct {
	Rate decimal.Decimal

	// UsedFallback is true when the stored rate was absent, non-numeric,
	// zero, or negative and FallbackRate was substituted.
	UsedFallback bool

	// UnusuallyHigh is true for rates above 1. They are accepted as-is
	// (rates are not capped) but flagged for observability.
	UnusuallyHigh bool
}

// RateResolver turns raw directory rates into usable ones.
type RateResolver struct {
	Directory StationDirectory
	Logger    *zap.Logger
}

func NewRateResolver(directory StationDirectory, logger *zap.Logger) *RateResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateResolver{Directory: directory, Logger: logger}
}

// ResolveRaw repairs a raw rate string. Pure; safe without a resolver.
func ResolveRaw(raw string) RateResolution {
	if raw == "" {
		return RateResolution{Rate: FallbackRate, UsedFallback: true}
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.LessThanOrEqual(decimal.Zero) {
		return RateResolution{Rate: FallbackRate, UsedFallback: true}
	}
	return RateResolution{Rate: rate, UnusuallyHigh: rate.GreaterThan(decimal.NewFromInt(1))}
}

// Resolve looks up and repairs a station's rate. Directory lookup failures
// degrade to the fallback rate rather than failing the calculation; a
// missing rate must never block commission processing.
func (r *RateResolver) Resolve(ctx context.Context, stationID StationID) RateResolution {
	raw, err := r.Directory.Rate(ctx, stationID)
	if err != nil {
		if !errors.Is(err, ErrStationNotFound) {
			r.Logger.Warn("rate lookup failed, using fallback",
				zap.String("station_id", string(stationID)),
				zap.Error(err))
		}
		return RateResolution{Rate: FallbackRate, UsedFallback: true}
	}

	res := ResolveRaw(raw)
	if res.UsedFallback {
		r.Logger.Info("station rate absent or unusable, using fallback",
			zap.String("station_id", string(stationID)),
			zap.String("raw_rate", raw))
	}
	if res.UnusuallyHigh {
		r.Logger.Warn("station rate above 1.0",
			zap.String("station_id", string(stationID)),
			zap.String("rate", res.Rate.String()))
	}
	return res
}

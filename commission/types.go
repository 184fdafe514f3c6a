/*
Package commission provides the dealer commission calculation engine.

PURPOSE:
  This package turns raw daily fuel-stock movement records into per-station,
  per-period dealer commission figures. It covers rate repair, volume
  aggregation, commission calculation, an idempotent period ledger,
  day-by-day progressive series, and summary statistics.

KEY CONCEPTS IN THIS FILE (types.go):
  - DailyStockRecord: One tank reading for one station+product+date
  - CommissionRecord: The engine's output, one per (station, period)
  - Status: Payment lifecycle (pending -> approved -> paid)
  - StationID: Type-safe station identifier

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for volumes, rates, and money
  2. Idempotency: Recalculation updates a record, never duplicates it
  3. Repair over reject: Bad rates fall back, bad volumes pass through
  4. Read-only inputs: Stock records are never mutated by this engine

SEE ALSO:
  - rate.go: Rate validation and fallback
  - calculator.go: Batch calculation orchestration
  - ledger.go: Persistence interface for commission records
*/
package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StationID string

type RecordID string

// RecordIDFor builds the deterministic ledger record identifier for a
// station+period. Determinism keeps recalculation idempotent at the ID level.
func RecordIDFor(stationID StationID, period Period) RecordID {
	return RecordID(fmt.Sprintf("cmr-%s-%s", stationID, period))
}

// =============================================================================
// STATUS - Payment lifecycle of a commission record
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
)

// CanTransitionTo reports whether a human-driven status transition is legal.
// Recalculation never changes status; only these transitions do.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved
	case StatusApproved:
		return next == StatusPaid
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusPaid
}

// =============================================================================
// DAILY STOCK RECORD - Read-only input from the operational data entry flow
// =============================================================================

// DailyStockRecord is one tank reading for one station+product+date.
// It is recorded by the out-of-scope data-entry workflow and immutable here.
type DailyStockRecord struct {
	StationID     StationID
	ProductID     string
	Date          time.Time
	OpeningStock  decimal.Decimal
	ClosingStock  decimal.Decimal
	ReceivedStock decimal.Decimal

	// Dispensed is the supplied dispensed volume. When the operational flow
	// did not supply it, Volume() derives it from the tank movement.
	Dispensed decimal.NullDecimal
}

// Volume returns the dispensed volume for the day: the supplied figure when
// present, otherwise opening + received - closing. Negative results are
// returned as-is; anomalous readings are a data-quality signal, not an error.
func (r DailyStockRecord) Volume() decimal.Decimal {
	if r.Dispensed.Valid {
		return r.Dispensed.Decimal
	}
	return r.OpeningStock.Add(r.ReceivedStock).Sub(r.ClosingStock)
}

// =============================================================================
// COMMISSION RECORD - The engine's output artifact
// =============================================================================

// CommissionRecord is uniquely identified by (StationID, Period). Exactly
// zero or one record exists per key; recalculation updates the existing
// record's monetary fields and leaves the status fields untouched.
type CommissionRecord struct {
	ID        RecordID
	StationID StationID
	Period    Period

	TotalVolume      decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal

	Status Status

	CalculatedAt time.Time
	CalculatedBy string

	// Set by the approval/payment operations, never by recalculation.
	ApprovedBy string
	ApprovedAt *time.Time
	PaidBy     string
	PaidAt     *time.Time
}

// =============================================================================
// HELPERS
// =============================================================================

// MustDecimal parses a decimal string, returning zero on malformed input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var oneHundred = decimal.NewFromInt(100)

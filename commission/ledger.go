/*
ledger.go - Durable store of commission records

PURPOSE:
  The ledger holds exactly zero or one CommissionRecord per
  (station, period). Recalculation goes through Upsert, which must be
  atomic at the storage layer (insert-or-update under a unique constraint),
  never an application-level read-then-write. Two concurrent
  recalculations of the same key must still leave one row.

STATUS FIELDS:
  Upsert updates the monetary fields only. Status, ApprovedBy/At and
  PaidBy/At belong to humans and change solely through SetStatus;
  recalculation must never silently un-approve or un-pay a record.

IMPLEMENTATIONS:
  - store/sqlite: production store (unique index + ON CONFLICT upsert)
  - commission/store: in-memory store for tests
*/
package commission

import "context"

// Ledger persists commission records with the at-most-one-per-key invariant.
type Ledger interface {
	// Upsert atomically inserts the record or, when the (station, period)
	// key exists, updates TotalVolume, CommissionRate, CommissionAmount,
	// CalculatedAt and CalculatedBy while preserving Status, ApprovedBy/At
	// and PaidBy/At. Returns the stored record.
	Upsert(ctx context.Context, rec CommissionRecord) (CommissionRecord, error)

	// Get returns the record for a key, or ErrRecordNotFound.
	Get(ctx context.Context, stationID StationID, period Period) (CommissionRecord, error)

	// ListByPeriod returns the records for the given stations in a period,
	// ordered by station ID. Stations without a record are absent.
	ListByPeriod(ctx context.Context, stationIDs []StationID, period Period) ([]CommissionRecord, error)

	// SetStatus applies a human status transition (approve, pay) recording
	// the actor. Illegal transitions return a TransitionError; a missing
	// record returns ErrRecordNotFound.
	SetStatus(ctx context.Context, stationID StationID, period Period, next Status, actor string) (CommissionRecord, error)
}

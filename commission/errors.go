/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy mirrors how callers must react:

  1. InvalidPeriod  - bad input, rejected before any computation
  2. EmptyScope     - NOT an error; empty results are a success
  3. Data-quality   - NOT an error; repaired via fallback and logged
  4. Persistence    - per-station, collected into the batch failure list

USAGE:
  if errors.Is(err, commission.ErrInvalidPeriod) {
      // 400 to the caller
  }
*/
package commission

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned for malformed or future period strings.
	// Rejected before any computation begins.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrRecordNotFound is returned when no ledger record exists for a
	// (station, period) key.
	ErrRecordNotFound = errors.New("commission record not found")

	// ErrDuplicateRecord is returned when the storage layer's uniqueness
	// constraint on (station, period) rejects a write. The ledger's atomic
	// upsert should make this unreachable; seeing it indicates a store bug.
	ErrDuplicateRecord = errors.New("duplicate commission record")

	// ErrInvalidTransition is returned for illegal status transitions,
	// e.g. paying a record that was never approved.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStationNotFound is returned when a station is missing from the
	// directory entirely (as opposed to having a missing rate, which the
	// rate resolver repairs).
	ErrStationNotFound = errors.New("station not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidPeriodError reports why a period string was rejected.
type InvalidPeriodError struct {
	Input  string
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q: %s", e.Input, e.Reason)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// TransitionError reports an illegal status transition.
type TransitionError struct {
	StationID StationID
	Period    Period
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s/%s from %s to %s",
		e.StationID, e.Period, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StationFailure records a single station's failure inside a batch. The
// batch itself still succeeds for the sibling stations.
type StationFailure struct {
	StationID StationID `json:"station_id"`
	Reason    string    `json:"reason"`
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrStationNotFound)
}

package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelgrid/commission-engine/commission"
	"github.com/fuelgrid/commission-engine/commission/store"
)

var admin = commission.Identity{UserID: "admin-1", Role: "admin"}

// newCalculator wires a full engine against the given memory store with a
// fixed clock.
func newCalculator(mem *store.Memory, now time.Time) *commission.Calculator {
	stocks := commission.NewStockAggregator(mem, nil)
	stocks.Now = func() time.Time { return now }
	calc := commission.NewCalculator(
		commission.DirectoryScope{Lister: mem},
		stocks,
		commission.NewRateResolver(mem, nil),
		mem,
		nil,
	)
	calc.Now = func() time.Time { return now }
	return calc
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestCalculateCommissions_SingleStation(t *testing.T) {
	// GIVEN: Station st-1 at rate 0.05 with volumes 100/150/200 in June
	// WHEN: Commissions are calculated for 2024-06
	// THEN: One pending record with volume 450 and amount 22.5

	mem := store.NewMemory()
	seedExample(mem)
	calc := newCalculator(mem, day(2024, time.July, 10))

	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	require.Len(t, result.Completed, 1)
	assert.Empty(t, result.Failed)

	rec := result.Completed[0]
	assert.Equal(t, commission.StationID("st-1"), rec.StationID)
	assert.Equal(t, "450", rec.TotalVolume.String())
	assert.Equal(t, "0.05", rec.CommissionRate.String())
	assert.Equal(t, "22.5", rec.CommissionAmount.String())
	assert.Equal(t, commission.StatusPending, rec.Status)
	assert.Equal(t, "admin-1", rec.CalculatedBy)
	assert.Equal(t, commission.RecordIDFor("st-1", mustPeriod(t, "2024-06")), rec.ID)
}

func TestCalculateCommissions_StationWithoutData_Absent(t *testing.T) {
	mem := store.NewMemory()
	seedExample(mem)
	mem.AddStation("st-idle", "0.08")

	calc := newCalculator(mem, day(2024, time.July, 10))
	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	// st-idle has no stock data: no record, no failure
	require.Len(t, result.Completed, 1)
	assert.Equal(t, commission.StationID("st-1"), result.Completed[0].StationID)
	assert.Empty(t, result.Failed)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestCalculateCommissions_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	seedExample(mem)
	calc := newCalculator(mem, day(2024, time.July, 10))

	_, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)
	_, err = calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	// Still exactly one ledger row, with the same amount
	rows, err := mem.ListByPeriod(context.Background(), []commission.StationID{"st-1"}, mustPeriod(t, "2024-06"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "22.5", rows[0].CommissionAmount.String())
}

func TestCalculateCommissions_RecalculationPreservesStatus(t *testing.T) {
	// GIVEN: A calculated record that was approved and then paid
	// WHEN: The period is recalculated with new stock data
	// THEN: Monetary fields update, status and audit fields survive

	mem := store.NewMemory()
	seedExample(mem)
	calc := newCalculator(mem, day(2024, time.July, 10))

	_, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	period := mustPeriod(t, "2024-06")
	_, err = mem.SetStatus(context.Background(), "st-1", period, commission.StatusApproved, "approver-1")
	require.NoError(t, err)
	_, err = mem.SetStatus(context.Background(), "st-1", period, commission.StatusPaid, "finance-1")
	require.NoError(t, err)

	// A late correction arrives for June
	mem.AddStockRecord(stockRecord("st-1", day(2024, time.June, 4), "50"))

	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)
	require.Len(t, result.Completed, 1)

	rec := result.Completed[0]
	assert.Equal(t, "500", rec.TotalVolume.String())
	assert.Equal(t, "25", rec.CommissionAmount.String())
	assert.Equal(t, commission.StatusPaid, rec.Status)
	assert.Equal(t, "finance-1", rec.PaidBy)
	require.NotNil(t, rec.PaidAt)
}

// =============================================================================
// PARTIAL BATCH
// =============================================================================

// failingLedger rejects upserts for one station to exercise the
// partial-batch path.
type failingLedger struct {
	commission.Ledger
	failFor commission.StationID
}

func (f failingLedger) Upsert(ctx context.Context, rec commission.CommissionRecord) (commission.CommissionRecord, error) {
	if rec.StationID == f.failFor {
		return commission.CommissionRecord{}, errors.New("disk full")
	}
	return f.Ledger.Upsert(ctx, rec)
}

func TestCalculateCommissions_PartialFailure(t *testing.T) {
	// GIVEN: Three stations with data, the ledger fails for st-b
	// WHEN: The batch runs
	// THEN: st-a and st-c complete, st-b is reported failed, no error

	mem := store.NewMemory()
	for _, id := range []commission.StationID{"st-a", "st-b", "st-c"} {
		mem.AddStation(id, "0.05")
		mem.AddStockRecord(stockRecord(string(id), day(2024, time.June, 1), "100"))
	}

	calc := newCalculator(mem, day(2024, time.July, 10))
	calc.Ledger = failingLedger{Ledger: mem, failFor: "st-b"}

	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	require.Len(t, result.Completed, 2)
	assert.Equal(t, commission.StationID("st-a"), result.Completed[0].StationID)
	assert.Equal(t, commission.StationID("st-c"), result.Completed[1].StationID)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, commission.StationID("st-b"), result.Failed[0].StationID)
	assert.Contains(t, result.Failed[0].Reason, "disk full")
}

// =============================================================================
// SCOPE AND PERIOD VALIDATION
// =============================================================================

func TestCalculateCommissions_ScopeNarrowing(t *testing.T) {
	mem := store.NewMemory()
	seedExample(mem)
	mem.AddStation("st-2", "0.06")
	mem.AddStockRecord(stockRecord("st-2", day(2024, time.June, 1), "200"))

	calc := newCalculator(mem, day(2024, time.July, 10))

	// Narrowed to st-2 only
	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", []commission.StationID{"st-2"})
	require.NoError(t, err)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, commission.StationID("st-2"), result.Completed[0].StationID)

	// Requesting a station outside the visible set yields an empty success
	result, err = calc.CalculateCommissions(context.Background(), admin, "2024-06", []commission.StationID{"st-unknown"})
	require.NoError(t, err)
	assert.Empty(t, result.Completed)
	assert.Empty(t, result.Failed)
}

func TestCalculateCommissions_EmptyScope(t *testing.T) {
	mem := store.NewMemory()
	calc := newCalculator(mem, day(2024, time.July, 10))

	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Completed)
	assert.Empty(t, result.Failed)
}

func TestCalculateCommissions_InvalidPeriod(t *testing.T) {
	mem := store.NewMemory()
	seedExample(mem)
	calc := newCalculator(mem, day(2024, time.June, 15))

	_, err := calc.CalculateCommissions(context.Background(), admin, "junk", nil)
	assert.ErrorIs(t, err, commission.ErrInvalidPeriod)

	// Future period is rejected the same way
	_, err = calc.CalculateCommissions(context.Background(), admin, "2024-07", nil)
	assert.ErrorIs(t, err, commission.ErrInvalidPeriod)
	assert.True(t, commission.IsClientError(err))
}

// =============================================================================
// DATA QUALITY REPORT
// =============================================================================

func TestCalculateCommissions_QualityReport(t *testing.T) {
	mem := store.NewMemory()
	mem.AddStation("st-missing-rate", "")
	mem.AddStation("st-high-rate", "1.5")
	mem.AddStockRecord(stockRecord("st-missing-rate", day(2024, time.June, 1), "100"))
	mem.AddStockRecord(stockRecord("st-high-rate", day(2024, time.June, 1), "100"))
	mem.AddStockRecord(stockRecord("st-high-rate", day(2024, time.June, 2), "-10"))

	calc := newCalculator(mem, day(2024, time.July, 10))
	result, err := calc.CalculateCommissions(context.Background(), admin, "2024-06", nil)
	require.NoError(t, err)

	assert.Equal(t, []commission.StationID{"st-missing-rate"}, result.Quality.FallbackRateStations)
	assert.Equal(t, []commission.StationID{"st-high-rate"}, result.Quality.HighRateStations)
	assert.Equal(t, 1, result.Quality.NegativeVolumeDays)

	// The high rate is applied, not capped
	for _, rec := range result.Completed {
		if rec.StationID == "st-high-rate" {
			assert.Equal(t, "1.5", rec.CommissionRate.String())
			assert.Equal(t, "135", rec.CommissionAmount.String())
		}
	}
}

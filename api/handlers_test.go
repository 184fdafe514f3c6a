package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelgrid/commission-engine/api"
	"github.com/fuelgrid/commission-engine/commission"
	"github.com/fuelgrid/commission-engine/commission/store"
)

// newTestServer wires a full engine over the memory store with a fixed
// clock and returns the configured router.
func newTestServer(mem *store.Memory, now time.Time) http.Handler {
	clock := func() time.Time { return now }
	scope := commission.DirectoryScope{Lister: mem}
	rates := commission.NewRateResolver(mem, nil)

	stocks := commission.NewStockAggregator(mem, nil)
	stocks.Now = clock

	calc := commission.NewCalculator(scope, stocks, rates, mem, nil)
	calc.Now = clock

	prog := commission.NewProgressiveBuilder(scope, mem, rates, nil)
	prog.Now = clock

	stats := commission.NewStatsAggregator(scope, mem, stocks, rates, nil)
	stats.Now = clock

	return api.NewRouter(api.NewHandler(calc, prog, stats, mem, scope, nil))
}

func seedJune(mem *store.Memory) {
	mem.AddStation("st-1", "0.05")
	for d, volume := range map[int]string{1: "100", 2: "150", 3: "200"} {
		mem.AddStockRecord(commission.DailyStockRecord{
			StationID: "st-1",
			ProductID: "diesel",
			Date:      time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC),
			Dispensed: decimal.NullDecimal{Decimal: commission.MustDecimal(volume), Valid: true},
		})
	}
}

func doRequest(t *testing.T, server http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "admin-1")
	req.Header.Set("X-User-Role", "admin")

	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(into))
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestAPI_Calculate(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	w := doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "2024-06"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.CalculateResponseDTO
	decodeJSON(t, w, &resp)

	assert.Equal(t, "2024-06", resp.Period)
	require.Len(t, resp.Completed, 1)
	assert.Equal(t, "st-1", resp.Completed[0].StationID)
	assert.Equal(t, "450", resp.Completed[0].TotalVolume)
	assert.Equal(t, "22.5", resp.Completed[0].CommissionAmount)
	assert.Equal(t, "pending", resp.Completed[0].Status)
	assert.Equal(t, "admin-1", resp.Completed[0].CalculatedBy)
	assert.NotNil(t, resp.Failed)
	assert.Empty(t, resp.Failed)
}

func TestAPI_Calculate_InvalidPeriod(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC))

	w := doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "junk"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Future period
	w = doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "2024-12"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp api.ErrorResponse
	decodeJSON(t, w, &resp)
	assert.NotEmpty(t, resp.Error)
}

// =============================================================================
// READS
// =============================================================================

func TestAPI_ListCommissions(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	// Empty before any calculation
	w := doRequest(t, server, http.MethodGet, "/api/commissions?period=2024-06", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []api.CommissionRecordDTO
	decodeJSON(t, w, &records)
	assert.Empty(t, records)

	doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "2024-06"})

	w = doRequest(t, server, http.MethodGet, "/api/commissions?period=2024-06", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "22.5", records[0].CommissionAmount)
}

func TestAPI_Progressive(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	w := doRequest(t, server, http.MethodGet, "/api/commissions/progressive?period=2024-06", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var points []api.DayPointDTO
	decodeJSON(t, w, &points)
	require.Len(t, points, 3)
	assert.Equal(t, "2024-06-01", points[0].Date)
	assert.Equal(t, "450", points[2].CumulativeVolume)
	assert.Equal(t, "22.5", points[2].CumulativeCommission)
	assert.Equal(t, "up", points[1].Trend)
}

func TestAPI_Stats(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC))

	w := doRequest(t, server, http.MethodGet, "/api/commissions/stats?period=2024-06", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats commission.CommissionStats
	decodeJSON(t, w, &stats)
	assert.Equal(t, "2024-06", stats.Period)
	assert.Equal(t, "22.5", stats.TotalCommission.String())
	assert.Equal(t, "50", stats.MonthProgress.String())
	assert.Equal(t, "45", stats.EstimatedFinalCommission.String())
	assert.True(t, stats.Derived)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestAPI_ApproveAndPayFlow(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "2024-06"})

	w := doRequest(t, server, http.MethodPost, "/api/commissions/st-1/2024-06/approve",
		api.StatusRequest{Actor: "approver-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var rec api.CommissionRecordDTO
	decodeJSON(t, w, &rec)
	assert.Equal(t, "approved", rec.Status)
	assert.Equal(t, "approver-1", rec.ApprovedBy)
	require.NotNil(t, rec.ApprovedAt)

	// Actor defaults to the caller identity when the body omits it
	w = doRequest(t, server, http.MethodPost, "/api/commissions/st-1/2024-06/pay",
		api.StatusRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &rec)
	assert.Equal(t, "paid", rec.Status)
	assert.Equal(t, "admin-1", rec.PaidBy)
}

func TestAPI_PayPendingRejected(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	doRequest(t, server, http.MethodPost, "/api/commissions/calculate",
		api.CalculateRequest{Period: "2024-06"})

	w := doRequest(t, server, http.MethodPost, "/api/commissions/st-1/2024-06/pay",
		api.StatusRequest{Actor: "finance-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_TransitionNotFound(t *testing.T) {
	mem := store.NewMemory()
	seedJune(mem)
	server := newTestServer(mem, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))

	// Station outside the caller's scope reads as not found
	w := doRequest(t, server, http.MethodPost, "/api/commissions/st-unknown/2024-06/approve",
		api.StatusRequest{Actor: "approver-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Known station, never calculated
	w = doRequest(t, server, http.MethodPost, "/api/commissions/st-1/2024-05/approve",
		api.StatusRequest{Actor: "approver-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the domain logic.

ENDPOINTS:
  POST /api/commissions/calculate                       Run a batch calculation
  GET  /api/commissions?period=&station_id=             List ledger records
  GET  /api/commissions/progressive?period=&station_id= Day-by-day series
  GET  /api/commissions/stats?period=&station_id=       Summary statistics
  POST /api/commissions/{stationID}/{period}/approve    Approve a record
  POST /api/commissions/{stationID}/{period}/pay        Mark a record paid

CALLER IDENTITY:
  Authentication lives upstream. The gateway injects X-User-ID and
  X-User-Role headers; this layer forwards them as the caller identity to
  the engine's AccessScope and never interprets roles itself.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period, illegal status transition
  - 404: Record not found
  - 500: Internal errors
  A batch with per-station failures is a 200: partial success is a result,
  not an error.
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuelgrid/commission-engine/commission"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Calculator  *commission.Calculator
	Progressive *commission.ProgressiveBuilder
	Stats       *commission.StatsAggregator
	Ledger      commission.Ledger
	Scope       commission.AccessScope
	Logger      *zap.Logger
}

func NewHandler(calc *commission.Calculator, prog *commission.ProgressiveBuilder, stats *commission.StatsAggregator, ledger commission.Ledger, scope commission.AccessScope, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Calculator:  calc,
		Progressive: prog,
		Stats:       stats,
		Ledger:      ledger,
		Scope:       scope,
		Logger:      logger,
	}
}

func callerIdentity(r *http.Request) commission.Identity {
	return commission.Identity{
		UserID: r.Header.Get("X-User-ID"),
		Role:   r.Header.Get("X-User-Role"),
	}
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate runs the batch for one period.
// POST /api/commissions/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Calculator.CalculateCommissions(r.Context(), callerIdentity(r), req.Period, toStationIDs(req.StationIDs))
	if err != nil {
		writeEngineError(w, "Calculation failed", err)
		return
	}

	resp := CalculateResponseDTO{
		Period:    result.Period.String(),
		Completed: toRecordDTOs(result.Completed),
		Failed:    result.Failed,
		Quality:   result.Quality,
	}
	if resp.Failed == nil {
		resp.Failed = []commission.StationFailure{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// READS
// =============================================================================

// ListCommissions returns the ledger records for a period within the
// caller's scope.
// GET /api/commissions?period=YYYY-MM&station_id=
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period, err := commission.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeEngineError(w, "Invalid period", err)
		return
	}

	targets, err := h.scopedStations(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve scope", err)
		return
	}

	records, err := h.Ledger.ListByPeriod(ctx, targets, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetProgressive returns the day-by-day cumulative series.
// GET /api/commissions/progressive?period=YYYY-MM&station_id=
func (h *Handler) GetProgressive(w http.ResponseWriter, r *http.Request) {
	var stationIDs []commission.StationID
	if id := r.URL.Query().Get("station_id"); id != "" {
		stationIDs = []commission.StationID{commission.StationID(id)}
	}

	points, err := h.Progressive.Build(r.Context(), callerIdentity(r), r.URL.Query().Get("period"), stationIDs)
	if err != nil {
		writeEngineError(w, "Failed to build progressive series", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayPointDTOs(points))
}

// GetStats returns summary statistics.
// GET /api/commissions/stats?period=YYYY-MM&station_id=
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter := commission.StatsFilter{
		Period:    r.URL.Query().Get("period"),
		StationID: commission.StationID(r.URL.Query().Get("station_id")),
	}

	stats, err := h.Stats.Summarize(r.Context(), callerIdentity(r), filter)
	if err != nil {
		writeEngineError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// Approve transitions a pending record to approved.
// POST /api/commissions/{stationID}/{period}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, commission.StatusApproved)
}

// Pay transitions an approved record to paid.
// POST /api/commissions/{stationID}/{period}/pay
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, commission.StatusPaid)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, next commission.Status) {
	ctx := r.Context()
	stationID := commission.StationID(chi.URLParam(r, "stationID"))

	period, err := commission.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		writeEngineError(w, "Invalid period", err)
		return
	}

	visible, err := h.scopedStations(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve scope", err)
		return
	}
	if len(commission.IntersectScope(visible, []commission.StationID{stationID})) == 0 {
		writeError(w, http.StatusNotFound, "Commission record not found", nil)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = callerIdentity(r).UserID
	}

	rec, err := h.Ledger.SetStatus(ctx, stationID, period, next, actor)
	if err != nil {
		writeEngineError(w, "Status transition failed", err)
		return
	}

	h.Logger.Info("commission status changed",
		zap.String("station_id", string(stationID)),
		zap.String("period", period.String()),
		zap.String("status", string(next)),
		zap.String("actor", actor))

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) scopedStations(r *http.Request) ([]commission.StationID, error) {
	visible, err := h.Scope.ResolveStations(r.Context(), callerIdentity(r))
	if err != nil {
		return nil, err
	}
	var requested []commission.StationID
	if id := r.URL.Query().Get("station_id"); id != "" {
		requested = []commission.StationID{commission.StationID(id)}
	}
	return commission.IntersectScope(visible, requested), nil
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case commission.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case commission.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

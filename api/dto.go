/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Monetary
  figures serialize as strings to preserve decimal precision end to end.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"time"

	"github.com/fuelgrid/commission-engine/commission"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CalculateRequest triggers a batch calculation.
type CalculateRequest struct {
	Period     string   `json:"period"`
	StationIDs []string `json:"station_ids,omitempty"`
}

// CalculateResponseDTO is the partial-success batch outcome.
type CalculateResponseDTO struct {
	Period    string                      `json:"period"`
	Completed []CommissionRecordDTO       `json:"completed"`
	Failed    []commission.StationFailure `json:"failed"`
	Quality   commission.QualityReport    `json:"quality"`
}

// CommissionRecordDTO represents one ledger record.
type CommissionRecordDTO struct {
	ID               string  `json:"id"`
	StationID        string  `json:"station_id"`
	Period           string  `json:"period"`
	TotalVolume      string  `json:"total_volume"`
	CommissionRate   string  `json:"commission_rate"`
	CommissionAmount string  `json:"commission_amount"`
	Status           string  `json:"status"`
	CalculatedAt     string  `json:"calculated_at"`
	CalculatedBy     string  `json:"calculated_by"`
	ApprovedBy       string  `json:"approved_by,omitempty"`
	ApprovedAt       *string `json:"approved_at,omitempty"`
	PaidBy           string  `json:"paid_by,omitempty"`
	PaidAt           *string `json:"paid_at,omitempty"`
}

// DayPointDTO is one date in the progressive series.
type DayPointDTO struct {
	Date                 string `json:"date"`
	DailyVolume          string `json:"daily_volume"`
	DailyCommission      string `json:"daily_commission"`
	CumulativeVolume     string `json:"cumulative_volume"`
	CumulativeCommission string `json:"cumulative_commission"`
	VolumeChange         string `json:"volume_change"`
	CommissionChange     string `json:"commission_change"`
	Trend                string `json:"trend"`
	EffectiveRate        string `json:"effective_rate"`
	IsToday              bool   `json:"is_today"`
}

// StatusRequest carries the actor for approve/pay transitions.
type StatusRequest struct {
	Actor string `json:"actor"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(rec commission.CommissionRecord) CommissionRecordDTO {
	return CommissionRecordDTO{
		ID:               string(rec.ID),
		StationID:        string(rec.StationID),
		Period:           rec.Period.String(),
		TotalVolume:      rec.TotalVolume.String(),
		CommissionRate:   rec.CommissionRate.String(),
		CommissionAmount: rec.CommissionAmount.String(),
		Status:           string(rec.Status),
		CalculatedAt:     rec.CalculatedAt.Format(time.RFC3339),
		CalculatedBy:     rec.CalculatedBy,
		ApprovedBy:       rec.ApprovedBy,
		ApprovedAt:       formatNullTime(rec.ApprovedAt),
		PaidBy:           rec.PaidBy,
		PaidAt:           formatNullTime(rec.PaidAt),
	}
}

func toRecordDTOs(recs []commission.CommissionRecord) []CommissionRecordDTO {
	dtos := make([]CommissionRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecordDTO(rec)
	}
	return dtos
}

func toDayPointDTO(p commission.DayPoint) DayPointDTO {
	return DayPointDTO{
		Date:                 p.Date.Format("2006-01-02"),
		DailyVolume:          p.DailyVolume.String(),
		DailyCommission:      p.DailyCommission.String(),
		CumulativeVolume:     p.CumulativeVolume.String(),
		CumulativeCommission: p.CumulativeCommission.String(),
		VolumeChange:         p.VolumeChange.String(),
		CommissionChange:     p.CommissionChange.String(),
		Trend:                p.Trend,
		EffectiveRate:        p.EffectiveRate.String(),
		IsToday:              p.IsToday,
	}
}

func toDayPointDTOs(points []commission.DayPoint) []DayPointDTO {
	dtos := make([]DayPointDTO, len(points))
	for i, p := range points {
		dtos[i] = toDayPointDTO(p)
	}
	return dtos
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toStationIDs(ids []string) []commission.StationID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]commission.StationID, len(ids))
	for i, id := range ids {
		out[i] = commission.StationID(id)
	}
	return out
}

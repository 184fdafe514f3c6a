// Package store provides in-memory implementations of the commission
// engine's storage interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fuelgrid/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - Ledger + StockRepository + StationDirectory
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	stations map[commission.StationID]string // raw rate text
	order    []commission.StationID
	stock    []commission.DailyStockRecord
	records  map[ledgerKey]commission.CommissionRecord
}

type ledgerKey struct {
	StationID commission.StationID
	Period    string
}

func NewMemory() *Memory {
	return &Memory{
		stations: make(map[commission.StationID]string),
		records:  make(map[ledgerKey]commission.CommissionRecord),
	}
}

// AddStation registers a station with its raw rate text. An empty rate
// models master data with the rate missing.
func (m *Memory) AddStation(id commission.StationID, rawRate string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[id]; !ok {
		m.order = append(m.order, id)
	}
	m.stations[id] = rawRate
}

// AddStockRecord appends a daily stock record.
func (m *Memory) AddStockRecord(rec commission.DailyStockRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock = append(m.stock, rec)
}

// =============================================================================
// STATION DIRECTORY
// =============================================================================

func (m *Memory) Rate(_ context.Context, stationID commission.StationID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.stations[stationID]
	if !ok {
		return "", commission.ErrStationNotFound
	}
	return raw, nil
}

func (m *Memory) ListStations(_ context.Context) ([]commission.StationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]commission.StationID, len(m.order))
	copy(out, m.order)
	return out, nil
}

// =============================================================================
// STOCK REPOSITORY
// =============================================================================

func (m *Memory) Query(_ context.Context, stationIDs []commission.StationID, from, to time.Time) ([]commission.DailyStockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[commission.StationID]bool, len(stationIDs))
	for _, id := range stationIDs {
		want[id] = true
	}

	var out []commission.DailyStockRecord
	for _, rec := range m.stock {
		if !want[rec.StationID] {
			continue
		}
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// Upsert mirrors the SQL store's ON CONFLICT semantics under one lock:
// monetary fields update, status fields survive.
func (m *Memory) Upsert(_ context.Context, rec commission.CommissionRecord) (commission.CommissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ledgerKey{StationID: rec.StationID, Period: rec.Period.String()}
	if existing, ok := m.records[k]; ok {
		existing.TotalVolume = rec.TotalVolume
		existing.CommissionRate = rec.CommissionRate
		existing.CommissionAmount = rec.CommissionAmount
		existing.CalculatedAt = rec.CalculatedAt
		existing.CalculatedBy = rec.CalculatedBy
		m.records[k] = existing
		return existing, nil
	}

	rec.Status = commission.StatusPending
	m.records[k] = rec
	return rec, nil
}

func (m *Memory) Get(_ context.Context, stationID commission.StationID, period commission.Period) (commission.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[ledgerKey{StationID: stationID, Period: period.String()}]
	if !ok {
		return commission.CommissionRecord{}, commission.ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) ListByPeriod(_ context.Context, stationIDs []commission.StationID, period commission.Period) ([]commission.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []commission.CommissionRecord
	for _, id := range stationIDs {
		if rec, ok := m.records[ledgerKey{StationID: id, Period: period.String()}]; ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func (m *Memory) SetStatus(_ context.Context, stationID commission.StationID, period commission.Period, next commission.Status, actor string) (commission.CommissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ledgerKey{StationID: stationID, Period: period.String()}
	rec, ok := m.records[k]
	if !ok {
		return commission.CommissionRecord{}, commission.ErrRecordNotFound
	}
	if !rec.Status.CanTransitionTo(next) {
		return commission.CommissionRecord{}, &commission.TransitionError{
			StationID: stationID,
			Period:    period,
			From:      rec.Status,
			To:        next,
		}
	}

	now := time.Now().UTC()
	rec.Status = next
	switch next {
	case commission.StatusApproved:
		rec.ApprovedBy = actor
		rec.ApprovedAt = &now
	case commission.StatusPaid:
		rec.PaidBy = actor
		rec.PaidAt = &now
	}
	m.records[k] = rec
	return rec, nil
}

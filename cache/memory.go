package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fuelgrid/commission-engine/commission"
)

// Memory is a process-local TTL cache. Entries are checked for expiry on
// read; InvalidatePeriod drops every key carrying the period prefix.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	stats     commission.CommissionStats
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (*commission.CommissionStats, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}

	stats := entry.stats
	return &stats, true, nil
}

func (m *Memory) Set(_ context.Context, key string, stats *commission.CommissionStats, ttl time.Duration) error {
	if stats == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{stats: *stats, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) InvalidatePeriod(_ context.Context, period commission.Period) error {
	prefix := commission.StatsCacheKey(period, "")

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

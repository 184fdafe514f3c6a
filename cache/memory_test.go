package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelgrid/commission-engine/commission"
)

func statsFor(period string) *commission.CommissionStats {
	return &commission.CommissionStats{Period: period, StationCount: 3}
}

func period(t *testing.T, s string) commission.Period {
	t.Helper()
	p, err := commission.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := commission.StatsCacheKey(period(t, "2024-06"), "abc123")

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, key, statsFor("2024-06"), time.Minute))

	got, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-06", got.Period)
	assert.Equal(t, 3, got.StationCount)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := commission.StatsCacheKey(period(t, "2024-06"), "abc123")

	require.NoError(t, c.Set(ctx, key, statsFor("2024-06"), time.Minute))

	first, _, err := c.Get(ctx, key)
	require.NoError(t, err)
	first.StationCount = 99

	second, _, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, second.StationCount)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := commission.StatsCacheKey(period(t, "2024-06"), "abc123")

	require.NoError(t, c.Set(ctx, key, statsFor("2024-06"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_InvalidatePeriod(t *testing.T) {
	// Invalidation drops every scope variant of the period and nothing else.

	c := NewMemory()
	ctx := context.Background()

	june := period(t, "2024-06")
	may := period(t, "2024-05")
	keys := []string{
		commission.StatsCacheKey(june, "scope-a"),
		commission.StatsCacheKey(june, "scope-b"),
	}
	for _, key := range keys {
		require.NoError(t, c.Set(ctx, key, statsFor("2024-06"), time.Minute))
	}
	mayKey := commission.StatsCacheKey(may, "scope-a")
	require.NoError(t, c.Set(ctx, mayKey, statsFor("2024-05"), time.Minute))

	require.NoError(t, c.InvalidatePeriod(ctx, june))

	for _, key := range keys {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, ok, err := c.Get(ctx, mayKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

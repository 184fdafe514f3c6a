package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fuelgrid/commission-engine/commission"
)

// Redis is a shared stats cache for multi-instance deployments. Values are
// JSON-encoded CommissionStats; expiry is delegated to Redis TTLs.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Get(ctx context.Context, key string) (*commission.CommissionStats, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats commission.CommissionStats
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, stats *commission.CommissionStats, ttl time.Duration) error {
	if stats == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// InvalidatePeriod scans for the period's keys and deletes them. Key volume
// per period is small (one entry per distinct scope), so SCAN is cheap.
func (c *Redis) InvalidatePeriod(ctx context.Context, period commission.Period) error {
	pattern := commission.StatsCacheKey(period, "*")

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

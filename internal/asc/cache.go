// Package asc coordinates the companion (ASC) appointment that must be
// booked ahead of the primary one: a short-lived cache of observed companion
// availability plus the lookup policy that binds a companion slot to a
// tentative primary slot.
package asc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aigrvch/visabot/pkg/logging"
)

// Cache persists the last observed companion availability, keyed by date.
// It is a hint only: entries may be stale and are always re-validated
// against fresh data after a miss, but persisting them lets a restart skip
// the initial warm-up probing.
type Cache struct {
	rdb    *redis.Client
	key    string
	logger *logging.Logger
}

// NewCache creates a cache stored under one redis hash per facility pair,
// so switching facilities never reads another pair's hints.
func NewCache(rdb *redis.Client, facilityID, ascFacilityID string, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		rdb:    rdb,
		key:    fmt.Sprintf("asc:slots:%s:%s", facilityID, ascFacilityID),
		logger: logger,
	}
}

// Get returns the cached date -> times map. A missing key yields an empty map.
func (c *Cache) Get(ctx context.Context) (map[string][]string, error) {
	raw, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("asc: cache read: %w", err)
	}
	out := make(map[string][]string, len(raw))
	for date, encoded := range raw {
		var times []string
		if err := json.Unmarshal([]byte(encoded), &times); err != nil {
			c.logger.Warn("asc: dropping corrupt cache entry", "date", date, "error", err)
			continue
		}
		out[date] = times
	}
	return out, nil
}

// Replace swaps the cached map wholesale for the given one.
func (c *Cache) Replace(ctx context.Context, slots map[string][]string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, c.key)
	if len(slots) > 0 {
		fields := make(map[string]interface{}, len(slots))
		for date, times := range slots {
			encoded, err := json.Marshal(times)
			if err != nil {
				return fmt.Errorf("asc: encode cache entry: %w", err)
			}
			fields[date] = encoded
		}
		pipe.HSet(ctx, c.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("asc: cache write: %w", err)
	}
	return nil
}

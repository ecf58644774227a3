package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/upstreampay/payrouter/internal/domain"
)

// HealthCache implements domain.HealthCache using one Redis string per
// bank at key "bankhealth:{code}". Entries expire on their own TTL, so
// a bank that stops reporting reverts to healthy instead of pinning a
// stale degraded status.
type HealthCache struct {
	rdb *redis.Client
}

// NewHealthCache creates a HealthCache backed by the given Client.
func NewHealthCache(c *Client) *HealthCache {
	return &HealthCache{rdb: c.Underlying()}
}

const healthKeyPrefix = "bankhealth:"

func healthKey(bankCode string) string {
	return healthKeyPrefix + bankCode
}

// Get returns the cached health for one bank, or domain.ErrNotFound
// when nothing is cached (callers treat that as healthy).
func (hc *HealthCache) Get(ctx context.Context, bankCode string) (domain.HealthStatus, error) {
	val, err := hc.rdb.Get(ctx, healthKey(bankCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get bank health %s: %w", bankCode, err)
	}
	return domain.HealthStatus(val), nil
}

// GetAll scans every cached bank-health entry and returns the code to
// status map. An empty map is a valid result (cold cache).
func (hc *HealthCache) GetAll(ctx context.Context) (map[string]domain.HealthStatus, error) {
	health := make(map[string]domain.HealthStatus)

	var cursor uint64
	for {
		keys, next, err := hc.rdb.Scan(ctx, cursor, healthKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan bank health keys: %w", err)
		}

		if len(keys) > 0 {
			vals, err := hc.rdb.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("redis: mget bank health: %w", err)
			}
			for i, key := range keys {
				if vals[i] == nil {
					continue // expired between SCAN and MGET
				}
				code := strings.TrimPrefix(key, healthKeyPrefix)
				if s, ok := vals[i].(string); ok {
					health[code] = domain.HealthStatus(s)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return health, nil
}

// Set stores the health for one bank with the given TTL.
func (hc *HealthCache) Set(ctx context.Context, bankCode string, status domain.HealthStatus, ttl time.Duration) error {
	if err := hc.rdb.Set(ctx, healthKey(bankCode), string(status), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set bank health %s: %w", bankCode, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HealthCache = (*HealthCache)(nil)

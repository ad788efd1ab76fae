package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores raw source payloads so repeated calibrations of the same
// window do not hit the remote APIs again.
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string, ttl time.Duration) *Cache {
	if client == nil {
		client = Disabled()
	}
	if ttl <= 0 {
		ttl = TTLDaily
	}
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		// Key not found is not an error
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// undecodable entries are evicted
		if delErr := c.Delete(ctx, key); delErr != nil {
			return false, fmt.Errorf("cache unmarshal failed: %w (evict: %v)", err, delErr)
		}
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with the configured TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, c.ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Predefined TTLs
const (
	TTLDaily  = 24 * time.Hour
	TTLWeekly = 7 * 24 * time.Hour
)

// SeriesKey identifies one raw indicator download
func SeriesKey(source, country, indicator string, fromYear, toYear int) string {
	return fmt.Sprintf("series:%s:%s:%s:%d-%d", source, country, indicator, fromYear, toYear)
}

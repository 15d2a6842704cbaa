package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ikayroni/weather-api/internal/models"
)

// Cache is the read-through gateway for weather snapshots. Get returns
// (data, true, nil) on a hit and (zero, false, nil) on a miss; backend
// failures come back as errors and the caller decides whether to degrade.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherQuery, bool, error)
	Set(ctx context.Context, key string, value models.WeatherQuery, ttl time.Duration) error
}

// Key builds the normalized cache key for a city/country pair: lower-cased,
// trimmed, joined with ':'. The country segment is omitted when empty, so
// "São Paulo","BR" and " são paulo ","br" map to the same entry.
func Key(city, country string) string {
	c := strings.ToLower(strings.TrimSpace(city))
	co := strings.ToLower(strings.TrimSpace(country))
	if co == "" {
		return c
	}
	return c + ":" + co
}

// InMemoryCache implements Cache with a map guarded by a mutex. Used for
// dev/test deployments and as the default backend. Expired entries are
// removed on access; there is no background sweeper.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.WeatherQuery
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves a cached snapshot for the key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherQuery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.WeatherQuery{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.WeatherQuery{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores a snapshot with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherQuery, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

package ratelimit

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedCounter implements Counter on memcached's atomic increment.
// Shares the connection pool with the weather cache gateway.
type MemcachedCounter struct {
	client *memcache.Client
}

// NewMemcachedCounter wraps an existing memcached client.
func NewMemcachedCounter(client *memcache.Client) *MemcachedCounter {
	return &MemcachedCounter{client: client}
}

// Incr atomically increments key, initializing it at 1 with the given TTL on
// first use. Add is used for creation so two racing first increments cannot
// both observe 1: the loser of the Add race falls through to Increment.
func (c *MemcachedCounter) Incr(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	n, err := c.client.Increment(key, 1)
	if err == nil {
		return n, nil
	}
	if err != memcache.ErrCacheMiss {
		return 0, err
	}

	expSec := int32(ttl.Seconds())
	if expSec <= 0 {
		expSec = 3600
	}
	addErr := c.client.Add(&memcache.Item{
		Key:        key,
		Value:      []byte("1"),
		Expiration: expSec,
	})
	if addErr == nil {
		return 1, nil
	}
	if addErr == memcache.ErrNotStored {
		return c.client.Increment(key, 1)
	}
	return 0, addErr
}

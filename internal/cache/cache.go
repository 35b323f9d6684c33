// Package cache wraps the Redis client used as a short-lived key-value tier
// in front of the persistent stores. The wrapper tracks connectivity so that
// callers can branch into a cache-less path instead of issuing operations
// that are doomed to fail while Redis is down.
package cache

import (
	"context"
	"time"
)

// Client is the key-value surface the data layer consumes.
type Client interface {
	// Get returns the value for key. found is false when the key is absent
	// or expired; err is non-nil only for transport failures.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetWithTTL stores value under key with the given expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// FlushAll removes every cached entry.
	FlushAll(ctx context.Context) error

	// Size returns the approximate number of cached entries.
	Size(ctx context.Context) (int64, error)

	// Available reports the current connectivity state. The flag can go
	// stale between a read and a subsequent operation; every operation must
	// tolerate that.
	Available() bool

	Close() error
}

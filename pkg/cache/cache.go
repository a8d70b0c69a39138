// Package cache provides keyed memoization for directive executions and for
// individual operation results. Entries are addressed by string key, carry a
// TTL, and round-trip through msgpack, so any storage medium honoring
// get/set/invalidate semantics and TTL expiry can back the contract.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL applies when a write does not specify an entry lifetime.
const DefaultTTL = 10 * time.Minute

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache is closed")

// Cache is the storage contract. Implementations serialize reads and
// writes to a given key, so concurrent executions observe consistent
// entries. A write always overwrites an expired or absent entry.
type Cache interface {
	// Get decodes the entry under key into dest and reports whether a
	// live entry was found. Expired entries count as absent.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key with the given lifetime. A ttl <= 0
	// means DefaultTTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate removes the entry under key, if any.
	Invalidate(ctx context.Context, key string) error

	// Purge removes all expired entries and returns how many were evicted.
	Purge(ctx context.Context) (int64, error)

	// Close releases the store's resources.
	Close() error
}

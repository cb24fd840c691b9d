package cache

import "time"

// Cache is a TTL key-value cache. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns (value, true) on a hit.
	Get(key string) (interface{}, bool)

	// Set stores value for ttl. It may drop the write under admission
	// pressure and reports whether the item was accepted.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)

	Clear()

	Close()
}

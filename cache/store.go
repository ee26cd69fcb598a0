package cache

import (
	"context"
	"time"
)

// Store is the key-value protocol the entity cache is layered on. Keys are
// plain strings without whitespace. A ttl of zero means the store default.
type Store interface {
	Enabled() bool
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Remove(ctx context.Context, key string) error
}

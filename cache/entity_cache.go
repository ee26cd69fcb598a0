package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/internal/metrics"
)

// Timestamps is the invalidation pair of one entity class, in epoch
// milliseconds. Global is part of every key of the class, Collection only
// of query keys.
type Timestamps struct {
	Global     int64 `msgpack:"g"`
	Collection int64 `msgpack:"c"`
}

// PrefixRemover is implemented by stores able to drop a key range.
type PrefixRemover interface {
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

// Option configures an EntityCache.
type Option func(*EntityCache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *EntityCache) { c.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *EntityCache) { c.metrics = m }
}

// WithTTL sets the lifetime of entity and query entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *EntityCache) { c.ttl = ttl }
}

// WithTimestampTTL sets the lifetime of timestamp pairs.
func WithTimestampTTL(ttl time.Duration) Option {
	return func(c *EntityCache) { c.timestampTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(c *EntityCache) { c.now = now }
}

// EntityCache derives keys from per class timestamp pairs and passes values
// through to a Store. It holds no entries itself.
type EntityCache struct {
	store        Store
	ttl          time.Duration
	timestampTTL time.Duration
	now          func() time.Time
	logger       *zap.Logger
	metrics      *metrics.Collector
}

// NewEntityCache returns a cache over store.
func NewEntityCache(store Store, opts ...Option) *EntityCache {
	c := &EntityCache{
		store:        store,
		timestampTTL: 24 * time.Hour,
		now:          time.Now,
		logger:       zap.L().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the store described by cfg and a cache over it.
func NewFromConfig(cfg Config, opts ...Option) (*EntityCache, error) {
	c := NewEntityCache(nil, append([]Option{WithTTL(cfg.TTL), WithTimestampTTL(cfg.TimestampTTL)}, opts...)...)
	store, err := NewStore(cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.store = store
	return c, nil
}

// Enabled reports whether the underlying store accepts calls.
func (c *EntityCache) Enabled() bool {
	return c != nil && c.store != nil && c.store.Enabled()
}

// TTL is the lifetime used for entity and query entries.
func (c *EntityCache) TTL() time.Duration { return c.ttl }

// Set stores value under key. It fails with a cache disabled error when the
// store is not enabled.
func (c *EntityCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.Enabled() {
		return dberrors.CacheDisabled("set")
	}
	return c.store.Set(ctx, key, value, ttl)
}

// Get returns the value under key and whether it was present.
func (c *EntityCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, dberrors.CacheDisabled("get")
	}
	return c.store.Get(ctx, key)
}

// Remove deletes key.
func (c *EntityCache) Remove(ctx context.Context, key string) error {
	if !c.Enabled() {
		return dberrors.CacheDisabled("remove")
	}
	return c.store.Remove(ctx, key)
}

// Timestamps returns the pair of class, creating it with both values set to
// the current time when absent.
func (c *EntityCache) Timestamps(ctx context.Context, class string) (Timestamps, error) {
	key := TimestampsKey(class)
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return Timestamps{}, err
	}
	if ok {
		var ts Timestamps
		if err := msgpack.Unmarshal(data, &ts); err == nil {
			return ts, nil
		}
		c.logger.Warn("discarding unreadable timestamps", zap.String("class", class))
	}

	now := c.now().UnixMilli()
	ts := Timestamps{Global: now, Collection: now}
	return ts, c.putTimestamps(ctx, class, ts)
}

// RefreshGlobalTimestamp invalidates every cached entry of class.
//
// The pair is read, changed and written back without any atomicity, so a
// concurrent refresh of the same class may be lost.
func (c *EntityCache) RefreshGlobalTimestamp(ctx context.Context, class string) error {
	ts, err := c.Timestamps(ctx, class)
	if err != nil {
		return err
	}
	ts.Global = c.next(ts.Global)
	c.metrics.Refresh(class, "global")
	return c.putTimestamps(ctx, class, ts)
}

// RefreshCollectionTimestamp invalidates the cached queries of class and
// leaves single entity entries reachable. Same race as
// RefreshGlobalTimestamp.
func (c *EntityCache) RefreshCollectionTimestamp(ctx context.Context, class string) error {
	ts, err := c.Timestamps(ctx, class)
	if err != nil {
		return err
	}
	ts.Collection = c.next(ts.Collection)
	c.metrics.Refresh(class, "collection")
	return c.putTimestamps(ctx, class, ts)
}

// Purge drops the stored entries of class when the store supports prefix
// removal, then refreshes the global timestamp. It returns the number of
// entries removed.
func (c *EntityCache) Purge(ctx context.Context, class string) (int, error) {
	if !c.Enabled() {
		return 0, dberrors.CacheDisabled("purge")
	}
	n := 0
	if pr, ok := c.store.(PrefixRemover); ok {
		var err error
		if n, err = pr.RemovePrefix(ctx, class+KeySeparator); err != nil {
			return n, err
		}
	}
	return n, c.RefreshGlobalTimestamp(ctx, class)
}

// EntityKey returns the current key of one entity.
func (c *EntityCache) EntityKey(ctx context.Context, class string, id any) (string, error) {
	ts, err := c.Timestamps(ctx, class)
	if err != nil {
		return "", err
	}
	return EntityKey(class, id, ts), nil
}

// ListKey returns the current key of a query result.
func (c *EntityCache) ListKey(ctx context.Context, class, method, params string) (string, error) {
	ts, err := c.Timestamps(ctx, class)
	if err != nil {
		return "", err
	}
	return ListKey(class, method, params, ts), nil
}

// next keeps bumps monotonic when called twice in the same millisecond.
func (c *EntityCache) next(prev int64) int64 {
	return max(c.now().UnixMilli(), prev+1)
}

func (c *EntityCache) putTimestamps(ctx context.Context, class string, ts Timestamps) error {
	data, err := msgpack.Marshal(ts)
	if err != nil {
		return err
	}
	return c.Set(ctx, TimestampsKey(class), data, c.timestampTTL)
}

// Put encodes value with msgpack and stores it with the cache TTL.
func Put[T any](ctx context.Context, c *EntityCache, key string, value T) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, c.ttl)
}

// Lookup fetches and decodes key. An undecodable entry counts as a miss.
func Lookup[T any](ctx context.Context, c *EntityCache, key string) (T, bool, error) {
	var out T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		c.logger.Warn("discarding undecodable entry", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false, nil
	}
	return out, true, nil
}

// GetOrLoad returns the decoded value under key or calls load and stores
// its result. With the cache disabled load is called directly. Store
// failures are logged and never fail the call; load failures are returned
// and nothing is stored.
func GetOrLoad[T any](ctx context.Context, c *EntityCache, class, key string, load func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return load(ctx)
	}

	v, ok, err := Lookup[T](ctx, c, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		c.metrics.CacheResult(class, "hit")
		return v, nil
	}
	c.metrics.CacheResult(class, "miss")

	v, err = load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := Put(ctx, c, key, v); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

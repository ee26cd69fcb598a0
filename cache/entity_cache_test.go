package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/internal/cacheinfra"
	"github.com/goliatone/go-dal/internal/metrics"
)

type memStore struct {
	enabled bool
	data    map[string][]byte
	ttls    map[string]time.Duration
	sets    int
	gets    int
	failGet error
}

func newMemStore() *memStore {
	return &memStore{enabled: true, data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Enabled() bool { return m.enabled }

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.sets++
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.gets++
	if m.failGet != nil {
		return nil, false, m.failGet
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestCache(store Store, opts ...Option) (*EntityCache, *fixedClock) {
	clock := &fixedClock{now: time.UnixMilli(1_000_000)}
	opts = append([]Option{WithClock(clock.Now), WithTTL(time.Minute)}, opts...)
	return NewEntityCache(store, opts...), clock
}

func TestTimestampsCreatedLazilyAndEqual(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCache(store, WithTimestampTTL(time.Hour))
	ctx := context.Background()

	ts, err := c.Timestamps(ctx, "User")
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	if ts.Global != 1_000_000 || ts.Collection != ts.Global {
		t.Errorf("new pair = %+v", ts)
	}
	if store.ttls["User:timestamps"] != time.Hour {
		t.Errorf("timestamp ttl = %v", store.ttls["User:timestamps"])
	}

	again, _ := c.Timestamps(ctx, "User")
	if again != ts || store.sets != 1 {
		t.Errorf("pair recreated: %+v, sets = %d", again, store.sets)
	}
}

func TestRefreshGlobalChangesAllKeys(t *testing.T) {
	c, clock := newTestCache(newMemStore())
	ctx := context.Background()

	entity, _ := c.EntityKey(ctx, "User", 1)
	list, _ := c.ListKey(ctx, "User", "list", "a=1")

	clock.now = clock.now.Add(time.Second)
	if err := c.RefreshGlobalTimestamp(ctx, "User"); err != nil {
		t.Fatalf("RefreshGlobalTimestamp: %v", err)
	}

	entity2, _ := c.EntityKey(ctx, "User", 1)
	list2, _ := c.ListKey(ctx, "User", "list", "a=1")
	if entity2 == entity {
		t.Error("entity key unchanged after global refresh")
	}
	if list2 == list {
		t.Error("list key unchanged after global refresh")
	}
}

func TestRefreshCollectionChangesOnlyListKeys(t *testing.T) {
	c, clock := newTestCache(newMemStore())
	ctx := context.Background()

	entity, _ := c.EntityKey(ctx, "User", 1)
	list, _ := c.ListKey(ctx, "User", "list", "a=1")

	clock.now = clock.now.Add(time.Second)
	if err := c.RefreshCollectionTimestamp(ctx, "User"); err != nil {
		t.Fatalf("RefreshCollectionTimestamp: %v", err)
	}

	entity2, _ := c.EntityKey(ctx, "User", 1)
	list2, _ := c.ListKey(ctx, "User", "list", "a=1")
	if entity2 != entity {
		t.Errorf("entity key changed: %q -> %q", entity, entity2)
	}
	if list2 == list {
		t.Error("list key unchanged after collection refresh")
	}
}

func TestRefreshIsMonotonicWithinAMillisecond(t *testing.T) {
	c, _ := newTestCache(newMemStore())
	ctx := context.Background()

	before, _ := c.Timestamps(ctx, "User")
	_ = c.RefreshCollectionTimestamp(ctx, "User")
	_ = c.RefreshCollectionTimestamp(ctx, "User")
	after, _ := c.Timestamps(ctx, "User")

	if after.Collection != before.Collection+2 {
		t.Errorf("collection = %d, want %d", after.Collection, before.Collection+2)
	}
	if after.Global != before.Global {
		t.Error("collection refresh moved the global timestamp")
	}
}

func TestRefreshDoesNotTouchOtherClasses(t *testing.T) {
	c, clock := newTestCache(newMemStore())
	ctx := context.Background()

	other, _ := c.EntityKey(ctx, "Bonus", 1)
	clock.now = clock.now.Add(time.Second)
	_ = c.RefreshGlobalTimestamp(ctx, "User")

	if again, _ := c.EntityKey(ctx, "Bonus", 1); again != other {
		t.Error("refresh leaked into another class")
	}
}

func TestDisabledCacheRejectsCalls(t *testing.T) {
	store := newMemStore()
	store.enabled = false
	c, _ := newTestCache(store)
	ctx := context.Background()

	if c.Enabled() {
		t.Fatal("cache reports enabled")
	}
	if err := c.Set(ctx, "k", nil, 0); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Set error = %v", err)
	}
	if _, _, err := c.Get(ctx, "k"); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Get error = %v", err)
	}
	if err := c.Remove(ctx, "k"); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Remove error = %v", err)
	}
	if _, err := c.EntityKey(ctx, "User", 1); !dberrors.IsCacheDisabled(err) {
		t.Errorf("EntityKey error = %v", err)
	}
	if store.sets+store.gets != 0 {
		t.Error("disabled store was called")
	}

	var nilCache *EntityCache
	if nilCache.Enabled() {
		t.Error("nil cache reports enabled")
	}
}

func TestGetOrLoad(t *testing.T) {
	type user struct {
		ID   int64
		Name string
	}
	m := metrics.NewCollector("test")
	c, _ := newTestCache(newMemStore(), WithMetrics(m))
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (user, error) {
		calls++
		return user{ID: 1, Name: "ana"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrLoad(ctx, c, "User", "User:1:1", load)
		if err != nil || got.Name != "ana" {
			t.Fatalf("GetOrLoad = %+v, %v", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
	if hits := testutil.ToFloat64(m.CacheRequests.WithLabelValues("User", "hit")); hits != 2 {
		t.Errorf("hits = %v", hits)
	}
}

func TestGetOrLoadErrorsAreNotCached(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCache(store)
	boom := errors.New("boom")

	_, err := GetOrLoad(context.Background(), c, "User", "k", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, ok := store.data["k"]; ok {
		t.Error("failed load was cached")
	}
}

func TestGetOrLoadSurvivesStoreFailures(t *testing.T) {
	store := newMemStore()
	store.failGet = errors.New("down")
	c, _ := newTestCache(store)

	got, err := GetOrLoad(context.Background(), c, "User", "k", func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || got != "fresh" {
		t.Fatalf("GetOrLoad = %q, %v", got, err)
	}
}

func TestGetOrLoadBypassesDisabledCache(t *testing.T) {
	c, _ := newTestCache(cacheinfra.NewDisabledStore())

	got, err := GetOrLoad(context.Background(), c, "User", "k", func(context.Context) (int, error) {
		return 5, nil
	})
	if err != nil || got != 5 {
		t.Fatalf("GetOrLoad = %d, %v", got, err)
	}
}

func TestLookupTreatsUndecodableAsMiss(t *testing.T) {
	store := newMemStore()
	store.data["k"] = []byte{0xc1}
	c, _ := newTestCache(store)

	if _, ok, err := Lookup[int](context.Background(), c, "k"); ok || err != nil {
		t.Errorf("Lookup = %v, %v", ok, err)
	}
}

func TestPurgeRemovesClassEntries(t *testing.T) {
	store, err := cacheinfra.NewSturdycStore(cacheinfra.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewSturdycStore: %v", err)
	}
	c, _ := newTestCache(store)
	ctx := context.Background()

	key, _ := c.EntityKey(ctx, "User", 1)
	_ = Put(ctx, c, key, "ana")
	before, _ := c.Timestamps(ctx, "User")

	n, err := c.Purge(ctx, "User")
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d entries, want entity and timestamps", n)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Error("entity entry survived purge")
	}
	if after, _ := c.Timestamps(ctx, "User"); after.Global <= before.Global {
		t.Errorf("global timestamp not advanced: %d -> %d", before.Global, after.Global)
	}
}

func TestNewFromConfig(t *testing.T) {
	disabled := DefaultConfig()
	disabled.Enabled = false
	c, err := NewFromConfig(disabled)
	if err != nil || c.Enabled() {
		t.Fatalf("disabled config = %v, %v", c.Enabled(), err)
	}

	c, err = NewFromConfig(DefaultConfig())
	if err != nil || !c.Enabled() {
		t.Fatalf("memory config = %v, %v", c.Enabled(), err)
	}
	if c.TTL() != 5*time.Minute {
		t.Errorf("ttl = %v", c.TTL())
	}
}

func TestMemoryStoreKeepsTimestampsForTimestampTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	cfg.TimestampTTL = 24 * time.Hour

	store, err := NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	mem, ok := store.(*cacheinfra.SturdycStore)
	if !ok {
		t.Fatalf("store = %T, want sturdyc", store)
	}
	if mem.TTL() != 24*time.Hour {
		t.Errorf("client TTL = %v, want the timestamp TTL", mem.TTL())
	}

	cfg.TTL = 48 * time.Hour
	store, _ = NewStore(cfg, nil)
	if got := store.(*cacheinfra.SturdycStore).TTL(); got != 48*time.Hour {
		t.Errorf("client TTL = %v, want the entry TTL", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"disabled ignores fields", func(c *Config) { c.Enabled = false; c.Backend = "" }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "disk" }, "Backend"},
		{"timestamp ttl", func(c *Config) { c.TimestampTTL = 0 }, "TimestampTTL"},
		{"memory capacity", func(c *Config) { c.Memory.Capacity = 0 }, "Capacity"},
		{"redis addr", func(c *Config) { c.Backend = BackendRedis; c.Redis.Addr = "" }, "Addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("error = %v, want field %s", err, tt.field)
			}
		})
	}
}

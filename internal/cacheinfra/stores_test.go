package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/goliatone/go-dal/dberrors"
)

func newSturdyc(t *testing.T) *SturdycStore {
	t.Helper()
	s, err := NewSturdycStore(DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewSturdycStore: %v", err)
	}
	return s
}

func newRedis(t *testing.T, cfg RedisConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.Addr = mr.Addr()
	s, err := NewRedisStore(cfg)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestNewSturdycStoreRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultMemoryConfig()
	cfg.Capacity = 0
	if _, err := NewSturdycStore(cfg); err == nil {
		t.Fatal("expected config error")
	}
}

func TestSturdycStoreRoundTrip(t *testing.T) {
	s := newSturdyc(t)
	ctx := context.Background()

	value := []byte("payload")
	if err := s.Set(ctx, "User:1:10", value, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'

	got, ok, err := s.Get(ctx, "User:1:10")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, stored value must be copied", got)
	}

	if err := s.Remove(ctx, "User:1:10"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "User:1:10"); ok {
		t.Error("entry still present after Remove")
	}
}

func TestSturdycStoreEntryTTL(t *testing.T) {
	s := newSturdyc(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "short", []byte("a"), time.Second)
	_ = s.Set(ctx, "long", []byte("b"), 0)

	now = now.Add(2 * time.Second)

	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Error("short entry should have expired")
	}
	if _, ok, _ := s.Get(ctx, "long"); !ok {
		t.Error("default TTL entry expired early")
	}
}

func TestSturdycStoreLongClientTTLKeepsShortEntries(t *testing.T) {
	cfg := DefaultMemoryConfig()
	cfg.TTL = 24 * time.Hour
	s, err := NewSturdycStore(cfg)
	if err != nil {
		t.Fatalf("NewSturdycStore: %v", err)
	}
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "User:1:10", []byte("entity"), time.Minute)
	_ = s.Set(ctx, "User:timestamps", []byte("pair"), 24*time.Hour)

	now = now.Add(2 * time.Hour)

	if _, ok, _ := s.Get(ctx, "User:1:10"); ok {
		t.Error("entity entry outlived its own TTL")
	}
	if _, ok, _ := s.Get(ctx, "User:timestamps"); !ok {
		t.Error("timestamp entry capped below its TTL")
	}
}

func TestSturdycStoreRemovePrefix(t *testing.T) {
	s := newSturdyc(t)
	ctx := context.Background()
	for _, key := range []string{"User:1:1", "User:timestamps", "UserBonus:1:1"} {
		_ = s.Set(ctx, key, []byte("v"), 0)
	}

	n, err := s.RemovePrefix(ctx, "User:")
	if err != nil || n != 2 {
		t.Fatalf("RemovePrefix = %d, %v", n, err)
	}
	if _, ok, _ := s.Get(ctx, "UserBonus:1:1"); !ok {
		t.Error("prefix removal crossed class boundary")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s, mr := newRedis(t, DefaultRedisConfig())
	ctx := context.Background()

	if err := s.Set(ctx, "User:1:10", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("dal:User:1:10") {
		t.Fatal("key not stored under prefix")
	}
	if ttl := mr.TTL("dal:User:1:10"); ttl != time.Minute {
		t.Errorf("ttl = %v", ttl)
	}

	got, ok, err := s.Get(ctx, "User:1:10")
	if err != nil || !ok || string(got) != "payload" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("missing key = %v, %v", ok, err)
	}

	if err := s.Remove(ctx, "User:1:10"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if mr.Exists("dal:User:1:10") {
		t.Error("key still present after Remove")
	}
}

func TestRedisStoreDefaultTTLAndExpiry(t *testing.T) {
	s, mr := newRedis(t, DefaultRedisConfig())
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 0)
	if ttl := mr.TTL("dal:k"); ttl != 5*time.Minute {
		t.Errorf("default ttl = %v", ttl)
	}

	mr.FastForward(6 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedisStoreRemovePrefix(t *testing.T) {
	s, mr := newRedis(t, DefaultRedisConfig())
	ctx := context.Background()
	for _, key := range []string{"User:1:1", "User:2:1", "UserBonus:1:1"} {
		_ = s.Set(ctx, key, []byte("v"), 0)
	}

	n, err := s.RemovePrefix(ctx, "User:")
	if err != nil || n != 2 {
		t.Fatalf("RemovePrefix = %d, %v", n, err)
	}
	if !mr.Exists("dal:UserBonus:1:1") {
		t.Error("prefix removal crossed class boundary")
	}
}

func TestRedisStoreBreakerOpens(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Breaker.FailureThreshold = 2
	cfg.Breaker.Timeout = time.Hour
	s, mr := newRedis(t, cfg)
	ctx := context.Background()

	mr.SetError("LOADING")
	for i := 0; i < 2; i++ {
		if _, _, err := s.Get(ctx, "k"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if s.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", s.State())
	}

	mr.SetError("")
	_, _, err := s.Get(ctx, "k")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open state error, got %v", err)
	}
}

func TestNewRedisStoreWithClientValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	cfg := DefaultRedisConfig()
	cfg.TTL = 0
	if _, err := NewRedisStoreWithClient(client, cfg); err == nil {
		t.Error("expected config error for zero TTL")
	}
}

func TestDisabledStore(t *testing.T) {
	s := NewDisabledStore()
	ctx := context.Background()

	if s.Enabled() {
		t.Fatal("disabled store reports enabled")
	}
	if err := s.Set(ctx, "k", nil, 0); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Set error = %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Get error = %v", err)
	}
	if err := s.Remove(ctx, "k"); !dberrors.IsCacheDisabled(err) {
		t.Errorf("Remove error = %v", err)
	}
}

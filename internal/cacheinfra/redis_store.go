package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

// RedisStore keeps cache entries in Redis. Every call goes through a
// circuit breaker so an unreachable server fails fast instead of stalling
// each repository read.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewRedisStore connects to cfg.Addr.
func NewRedisStore(cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg, opts...)
}

// NewRedisStoreWithClient wraps an existing client. Only the key prefix, TTL
// and breaker settings of cfg are used.
func NewRedisStoreWithClient(client redis.UniversalClient, cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	if cfg.TTL <= 0 {
		return nil, &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if cfg.Breaker.FailureThreshold == 0 {
		return nil, &ConfigError{Field: "Breaker.FailureThreshold", Message: "must be greater than 0"}
	}

	s := &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: zap.L().Named("cache.redis"),
	}
	for _, opt := range opts {
		opt(s)
	}

	threshold := cfg.Breaker.FailureThreshold
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s, nil
}

func (s *RedisStore) Enabled() bool { return true }

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.client.Set(ctx, s.prefix+key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		data, err := s.client.Get(ctx, s.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if res == nil {
		return nil, false, nil
	}
	return res.([]byte), true, nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.client.Del(ctx, s.prefix+key).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// RemovePrefix deletes every key starting with prefix using SCAN.
func (s *RedisStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		n := 0
		iter := s.client.Scan(ctx, 0, s.prefix+prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return n, err
			}
			n++
		}
		return n, iter.Err()
	})
	n, _ := res.(int)
	if err != nil {
		return n, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return n, nil
}

// State reports the breaker state.
func (s *RedisStore) State() gobreaker.State { return s.breaker.State() }

func (s *RedisStore) Close() error { return s.client.Close() }

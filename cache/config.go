package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/internal/cacheinfra"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ConfigError represents a configuration validation error.
type ConfigError = cacheinfra.ConfigError

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"`

	// TTL is the lifetime of cached entities and query results.
	TTL time.Duration `yaml:"ttl"`

	// TimestampTTL is the lifetime of the per class timestamp pairs. A
	// lapsed pair is recreated at the current time, which orphans every
	// entry cached under the old one, so it should outlive TTL.
	TimestampTTL time.Duration `yaml:"timestamp_ttl"`

	Memory MemoryConfig `yaml:"memory"`
	Redis  RedisConfig  `yaml:"redis"`
}

// MemoryConfig mirrors the sturdyc sizing options.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// RedisConfig holds the Redis connection and breaker options.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// DefaultConfig returns an enabled in-process cache.
func DefaultConfig() Config {
	mem := cacheinfra.DefaultMemoryConfig()
	rds := cacheinfra.DefaultRedisConfig()
	return Config{
		Enabled:      true,
		Backend:      BackendMemory,
		TTL:          mem.TTL,
		TimestampTTL: 24 * time.Hour,
		Memory: MemoryConfig{
			Capacity:           mem.Capacity,
			NumShards:          mem.NumShards,
			EvictionPercentage: mem.EvictionPercentage,
			EvictionInterval:   mem.EvictionInterval,
		},
		Redis: RedisConfig{
			Addr:   rds.Addr,
			Prefix: rds.Prefix,
			Breaker: BreakerConfig{
				MaxRequests:      rds.Breaker.MaxRequests,
				Interval:         rds.Breaker.Interval,
				Timeout:          rds.Breaker.Timeout,
				FailureThreshold: rds.Breaker.FailureThreshold,
			},
		},
	}
}

// Validate checks whether the configuration values are valid. A disabled
// cache is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TimestampTTL <= 0 {
		return &ConfigError{Field: "TimestampTTL", Message: "must be greater than 0"}
	}
	switch c.Backend {
	case BackendMemory:
		return c.memoryConfig().Validate()
	case BackendRedis:
		return c.redisConfig().Validate()
	default:
		return &ConfigError{Field: "Backend", Message: "must be memory or redis"}
	}
}

// NewStore builds the store selected by the configuration.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return cacheinfra.NewDisabledStore(), nil
	}
	if cfg.Backend == BackendRedis {
		if logger == nil {
			logger = zap.L()
		}
		return cacheinfra.NewRedisStore(cfg.redisConfig(), cacheinfra.WithRedisLogger(logger.Named("redis")))
	}
	return cacheinfra.NewSturdycStore(cfg.memoryConfig())
}

// memoryConfig sizes the sturdyc client for the longest lived entries, the
// timestamp pairs. Entities and results carry their shorter TTL per entry.
func (c Config) memoryConfig() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		Capacity:           c.Memory.Capacity,
		NumShards:          c.Memory.NumShards,
		TTL:                max(c.TTL, c.TimestampTTL),
		EvictionPercentage: c.Memory.EvictionPercentage,
		EvictionInterval:   c.Memory.EvictionInterval,
	}
}

func (c Config) redisConfig() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
		TTL:      c.TTL,
		Breaker: cacheinfra.BreakerConfig{
			MaxRequests:      c.Redis.Breaker.MaxRequests,
			Interval:         c.Redis.Breaker.Interval,
			Timeout:          c.Redis.Breaker.Timeout,
			FailureThreshold: c.Redis.Breaker.FailureThreshold,
		},
	}
}

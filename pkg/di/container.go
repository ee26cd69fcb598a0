// Package di wires the data access components from one configuration.
package di

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-dal/batch"
	"github.com/goliatone/go-dal/cache"
	"github.com/goliatone/go-dal/datasource"
	"github.com/goliatone/go-dal/internal/metrics"
	"github.com/goliatone/go-dal/lock"
	"github.com/goliatone/go-dal/mapper"
	"github.com/goliatone/go-dal/repositorycache"
	"github.com/goliatone/go-dal/txn"
)

// Config groups the configuration of every component the container builds.
type Config struct {
	DataSource *datasource.Config `yaml:"datasource"`
	Cache      cache.Config       `yaml:"cache"`
	Lock       lock.Config        `yaml:"lock"`
	// LockDir holds the batch job lock files.
	LockDir string `yaml:"lock_dir"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns a configuration without data sources.
func DefaultConfig() Config {
	return Config{
		DataSource: datasource.DefaultConfig(),
		Cache:      cache.DefaultConfig(),
		Lock:       lock.DefaultConfig(),
		LockDir:    filepath.Join(os.TempDir(), "dal-locks"),
		Namespace:  "dal",
	}
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the root logger. Each component gets a named child.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// Container owns the singleton components of the data access layer and
// builds repositories over them.
type Container struct {
	config   Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	provider *datasource.Provider
	pool     *txn.Pool
	tx       *txn.Manager
	cache    *cache.EntityCache
	locks    *lock.Manager
	runner   *batch.Runner
}

// NewContainer validates config and wires the components in dependency
// order: provider, pool, transaction manager, cache, locks, batch runner.
// The provider is closed again if a later component fails.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if config.DataSource == nil {
		config.DataSource = datasource.DefaultConfig()
	}
	if config.Namespace == "" {
		config.Namespace = "dal"
	}
	if err := config.Lock.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: config}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	c.metrics = metrics.NewCollector(config.Namespace)

	provider, err := datasource.NewProvider(config.DataSource,
		datasource.WithLogger(c.logger.Named("datasource")),
		datasource.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	c.provider = provider

	c.pool = txn.NewPool(provider,
		txn.WithPoolLogger(c.logger.Named("pool")),
		txn.WithPoolMetrics(c.metrics),
	)
	c.tx = txn.NewManager(provider, c.pool,
		txn.WithLogger(c.logger.Named("txn")),
		txn.WithMetrics(c.metrics),
	)

	c.cache, err = cache.NewFromConfig(config.Cache,
		cache.WithLogger(c.logger.Named("cache")),
		cache.WithMetrics(c.metrics),
	)
	if err != nil {
		provider.Close()
		return nil, err
	}

	c.locks = lock.NewManager(config.Lock,
		lock.WithLogger(c.logger.Named("lock")),
		lock.WithMetrics(c.metrics),
	)
	c.runner = batch.NewRunner(config.LockDir, c.pool,
		batch.WithLogger(c.logger.Named("batch")),
		batch.WithLocks(c.locks),
	)
	return c, nil
}

// NewContainerFromFile loads the data source configuration from path and
// uses the defaults for everything else.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	ds, err := datasource.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.DataSource = ds
	return NewContainer(cfg, opts...)
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config { return c.config }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) Provider() *datasource.Provider { return c.provider }

func (c *Container) Pool() *txn.Pool { return c.pool }

func (c *Container) Transactions() *txn.Manager { return c.tx }

func (c *Container) Cache() *cache.EntityCache { return c.cache }

func (c *Container) Locks() *lock.Manager { return c.locks }

func (c *Container) Runner() *batch.Runner { return c.runner }

// Registry exposes the metrics of every component for scraping.
func (c *Container) Registry() *prometheus.Registry { return c.metrics.Registry() }

// Close releases pooled connections and closes every database handle.
func (c *Container) Close() error {
	c.pool.ReleaseAll()
	return c.provider.Close()
}

// NewRepository builds a cached repository on schema over the container's
// transaction manager and cache.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function.
func NewRepository[E any](c *Container, schema string, m *mapper.Mapper[E], opts ...repositorycache.Option) *repositorycache.Repository[E] {
	base := []repositorycache.Option{
		repositorycache.WithCache(c.cache),
		repositorycache.WithLogger(c.logger.Named("repository").With(zap.String("entity", m.Name()))),
	}
	return repositorycache.New(schema, m, c.tx, append(base, opts...)...)
}

package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"

	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/internal/metrics"
)

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithSleep replaces the wait between connection attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Provider) { p.sleep = sleep }
}

// WithOpener replaces how an endpoint's *bun.DB is created.
func WithOpener(open func(DataSource) (*bun.DB, error)) Option {
	return func(p *Provider) { p.open = open }
}

// Stats counts connections handed out and closed by a Provider.
type Stats struct {
	Opened int64
	Closed int64
}

// Provider resolves a logical schema to an endpoint and opens connections on it.
// Endpoint pools (*bun.DB) are created on first use and shared.
type Provider struct {
	cfg     *Config
	logger  *zap.Logger
	metrics *metrics.Collector
	sleep   func(context.Context, time.Duration) error
	open    func(DataSource) (*bun.DB, error)

	mu  sync.Mutex
	dbs map[string]*bun.DB

	opened atomic.Int64
	closed atomic.Int64
}

// NewProvider validates cfg and returns a provider. No connection is opened yet.
func NewProvider(cfg *Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, dberrors.Configuration("data source config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		cfg:    cfg,
		logger: zap.L().Named("datasource"),
		sleep:  sleepContext,
		open:   OpenDB,
		dbs:    make(map[string]*bun.DB),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Resolve picks the endpoint serving schema. Writes go to the single write
// endpoint. Reads pick uniformly among read endpoints, or use the explicit
// read alias when the schema has none.
func (p *Provider) Resolve(schemaName string, readOnly bool) (DataSource, error) {
	var writer *DataSource
	var readers []DataSource
	for i, ds := range p.cfg.DataSources {
		if ds.Schema != schemaName {
			continue
		}
		if ds.ReadOnly {
			readers = append(readers, ds)
		} else {
			writer = &p.cfg.DataSources[i]
		}
	}

	if !readOnly {
		if writer == nil {
			return DataSource{}, dberrors.Configuration("no write endpoint for schema %q", schemaName)
		}
		return *writer, nil
	}

	if len(readers) > 0 {
		return readers[rand.IntN(len(readers))], nil
	}
	if alias, ok := p.cfg.ReadAliases[schemaName]; ok {
		for _, ds := range p.cfg.DataSources {
			if ds.Name == alias {
				return ds, nil
			}
		}
	}
	return DataSource{}, dberrors.Configuration("no read endpoint for schema %q", schemaName)
}

// Conn opens a connection for schema with the requested auto-commit mode,
// regardless of the endpoint's configured default. Opening is retried
// Retry.Attempts times with a fixed Retry.Delay; exhaustion returns a
// critical connection error that must not be retried by callers.
func (p *Provider) Conn(ctx context.Context, schemaName string, readOnly, autoCommit bool) (*Conn, error) {
	ds, err := p.Resolve(schemaName, readOnly)
	if err != nil {
		return nil, err
	}
	db, err := p.db(ds)
	if err != nil {
		return nil, dberrors.Connection(schemaName, ds.Name, 0, err)
	}

	attempts := p.cfg.Retry.Attempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := connect(ctx, db)
		if err == nil {
			p.metrics.Connect(schemaName, "ok")
			p.opened.Add(1)
			return &Conn{
				conn:       conn,
				schema:     schemaName,
				endpoint:   ds.Name,
				readOnly:   ds.ReadOnly,
				autoCommit: autoCommit,
				onClose:    func() { p.closed.Add(1) },
				logger:     p.logger,
				metrics:    p.metrics,
			}, nil
		}
		lastErr = err
		p.metrics.Connect(schemaName, "failed")

		if attempt == attempts {
			break
		}
		p.logger.Warn("connection attempt failed, retrying",
			zap.String("schema", schemaName),
			zap.String("endpoint", ds.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", p.cfg.Retry.Delay),
			zap.Error(err),
		)
		if err := p.sleep(ctx, p.cfg.Retry.Delay); err != nil {
			lastErr = err
			break
		}
	}

	p.logger.Error("cannot open connection",
		zap.String("severity", "CRITICAL"),
		zap.String("schema", schemaName),
		zap.String("endpoint", ds.Name),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, dberrors.Connection(schemaName, ds.Name, attempts, lastErr)
}

func connect(ctx context.Context, db *bun.DB) (bun.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return bun.Conn{}, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return bun.Conn{}, err
	}
	return conn, nil
}

func (p *Provider) db(ds DataSource) (*bun.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.dbs[ds.Name]; ok {
		return db, nil
	}
	db, err := p.open(ds)
	if err != nil {
		return nil, err
	}
	p.dbs[ds.Name] = db
	return db, nil
}

// Stats returns connection counters.
func (p *Provider) Stats() Stats {
	return Stats{Opened: p.opened.Load(), Closed: p.closed.Load()}
}

// Close closes every endpoint pool.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, db := range p.dbs {
		if err := db.Close(); err != nil {
			p.logger.Warn("close endpoint failed", zap.String("endpoint", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(p.dbs, name)
	}
	return firstErr
}

// OpenDB creates the lazy *bun.DB for an endpoint with the dialect matching its driver.
func OpenDB(ds DataSource) (*bun.DB, error) {
	var dialect schema.Dialect
	switch ds.Driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, dberrors.Configuration("unsupported driver %q", ds.Driver)
	}

	dsn, err := ds.DSN()
	if err != nil {
		return nil, err
	}
	sqldb, err := sql.Open(ds.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ds.Name, err)
	}
	if ds.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(ds.MaxOpenConns)
	}
	return bun.NewDB(sqldb, dialect), nil
}

// DSN returns the driver data source name with credentials applied.
func (d DataSource) DSN() (string, error) {
	if d.Driver != DriverPostgres || d.User == "" {
		return d.URL, nil
	}
	if !strings.Contains(d.URL, "://") {
		// key=value form
		dsn := d.URL + " user=" + d.User
		if d.Password != "" {
			dsn += " password=" + d.Password
		}
		return dsn, nil
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", dberrors.Configuration("data source %s: invalid url: %v", d.Name, err)
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package txn

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/datasource"
	"github.com/goliatone/go-dal/internal/metrics"
)

// Opener opens connections; *datasource.Provider implements it.
type Opener interface {
	Conn(ctx context.Context, schema string, readOnly, autoCommit bool) (*datasource.Conn, error)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

func WithPoolMetrics(m *metrics.Collector) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// Pool keeps at most one auto-commit connection per (schema, mode) for
// strictly sequential batch execution. Only the enabled flag is safe for
// concurrent use; the connection map is not guarded and must be used from a
// single goroutine at a time.
type Pool struct {
	opener  Opener
	enabled atomic.Bool
	conns   map[string]*datasource.Conn
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewPool(opener Opener, opts ...PoolOption) *Pool {
	p := &Pool{
		opener: opener,
		conns:  make(map[string]*datasource.Conn),
		logger: zap.L().Named("txn.pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Enable()       { p.enabled.Store(true) }
func (p *Pool) Disable()      { p.enabled.Store(false) }
func (p *Pool) Enabled() bool { return p.enabled.Load() }

// Len returns the number of pooled connections.
func (p *Pool) Len() int { return len(p.conns) }

// Conn returns the pooled connection for (schema, readOnly), opening a new
// one when none is cached or the cached one reports itself closed.
func (p *Pool) Conn(ctx context.Context, schema string, readOnly bool) (*datasource.Conn, error) {
	key := poolKey(schema, readOnly)
	if conn, ok := p.conns[key]; ok && !conn.IsClosed() {
		return conn, nil
	}
	conn, err := p.opener.Conn(ctx, schema, readOnly, true)
	if err != nil {
		return nil, err
	}
	p.conns[key] = conn
	p.metrics.Pooled(len(p.conns))
	return conn, nil
}

// ReleaseAll closes and forgets every pooled connection. Close failures are
// logged and do not stop the release.
func (p *Pool) ReleaseAll() {
	for key, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("close pooled connection failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		delete(p.conns, key)
	}
	p.metrics.Pooled(0)
}

func poolKey(schema string, readOnly bool) string {
	if readOnly {
		return schema + "|r"
	}
	return schema + "|w"
}

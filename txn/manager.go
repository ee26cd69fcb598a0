package txn

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/datasource"
	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/internal/metrics"
)

// Work runs statements on a connection it does not own.
type Work func(ctx context.Context, conn *datasource.Conn) error

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager scopes connection and transaction lifetimes around units of work.
type Manager struct {
	opener  Opener
	pool    *Pool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewManager returns a manager. pool may be nil when batch mode is never used.
func NewManager(opener Opener, pool *Pool, opts ...Option) *Manager {
	m := &Manager{
		opener: opener,
		pool:   pool,
		logger: zap.L().Named("txn"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pool returns the single thread pool, possibly nil.
func (m *Manager) Pool() *Pool { return m.pool }

// WithConnection runs work on a connection for schema.
//
// An ambient connection is reused as is and stays open. Otherwise, with the
// pool enabled, a pooled connection is borrowed and only the statements
// opened by work are released. Otherwise a fresh auto-commit connection is
// opened and always closed.
func (m *Manager) WithConnection(ctx context.Context, schema string, readOnly bool, ambient *datasource.Conn, work Work) error {
	if ambient != nil {
		return work(ctx, ambient)
	}

	if m.pool != nil && m.pool.Enabled() {
		conn, err := m.pool.Conn(ctx, schema, readOnly)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.ReleaseStatements(); err != nil {
				m.logger.Warn("release pooled statements failed", zap.String("schema", schema), zap.Error(err))
			}
		}()
		return work(ctx, conn)
	}

	conn, err := m.opener.Conn(ctx, schema, readOnly, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			m.logger.Warn("close connection failed", zap.String("schema", schema), zap.Error(err))
		}
	}()
	return work(ctx, conn)
}

// TxOption configures WithTransaction.
type TxOption func(*txOptions)

type txOptions struct {
	autoCommit bool
}

// NoAutoCommit leaves committing to work. Anything work did not commit is
// rolled back when the connection closes.
func NoAutoCommit() TxOption {
	return func(o *txOptions) { o.autoCommit = false }
}

// WithTransaction runs work on a new, non auto-commit connection. Ambient
// connections are never reused: transactions do not nest. On success the
// transaction is committed; on failure it is rolled back and a transaction
// error wrapping the cause is returned. If the rollback fails too, both
// errors are kept in the chain. The connection is closed in every case.
func (m *Manager) WithTransaction(ctx context.Context, schema string, work Work, opts ...TxOption) error {
	o := txOptions{autoCommit: true}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := m.opener.Conn(ctx, schema, false, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			m.logger.Warn("close transaction connection failed", zap.String("schema", schema), zap.Error(err))
		}
	}()

	err = work(ctx, conn)
	if err == nil && o.autoCommit {
		err = conn.Commit(ctx)
	}
	if err == nil {
		return nil
	}

	rbErr := conn.Rollback()
	if rbErr != nil {
		m.logger.Error("rollback failed",
			zap.String("schema", schema),
			zap.NamedError("cause", err),
			zap.Error(rbErr),
		)
	}
	return dberrors.Transaction(schema, err, rbErr)
}

// InConnection is WithConnection for work producing a value.
func InConnection[T any](ctx context.Context, m *Manager, schema string, readOnly bool, ambient *datasource.Conn, work func(context.Context, *datasource.Conn) (T, error)) (T, error) {
	var out T
	err := m.WithConnection(ctx, schema, readOnly, ambient, func(ctx context.Context, conn *datasource.Conn) error {
		var err error
		out, err = work(ctx, conn)
		return err
	})
	return out, err
}

// InTransaction is WithTransaction for work producing a value. The zero
// value is returned when the transaction fails.
func InTransaction[T any](ctx context.Context, m *Manager, schema string, work func(context.Context, *datasource.Conn) (T, error), opts ...TxOption) (T, error) {
	var out T
	err := m.WithTransaction(ctx, schema, func(ctx context.Context, conn *datasource.Conn) error {
		var err error
		out, err = work(ctx, conn)
		return err
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

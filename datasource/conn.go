package datasource

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-dal/internal/metrics"
)

// Conn is one physical connection handed out by a Provider.
//
// With auto-commit off every statement runs inside a transaction that is
// started lazily and ends with Commit or Rollback; the next statement starts
// a new one. Statement arguments go through bun's formatter, so a single
// schema.NamedArgAppender (such as *criteria.Params) resolves ?name
// placeholders.
//
// A Conn is not safe for concurrent use.
type Conn struct {
	conn       bun.Conn
	tx         *bun.Tx
	schema     string
	endpoint   string
	readOnly   bool
	autoCommit bool
	closed     bool
	stmts      []*sql.Stmt
	hooks      []func(context.Context)
	onClose    func()
	logger     *zap.Logger
	metrics    *metrics.Collector
}

func (c *Conn) Schema() string   { return c.schema }
func (c *Conn) Endpoint() string { return c.endpoint }
func (c *Conn) ReadOnly() bool   { return c.readOnly }
func (c *Conn) AutoCommit() bool { return c.autoCommit }

// InTransaction reports whether statements on c are part of an explicit
// transaction, i.e. auto-commit is off.
func (c *Conn) InTransaction() bool { return !c.autoCommit }

// IsClosed reports whether c was closed or the driver connection is gone.
func (c *Conn) IsClosed() bool {
	if c.closed {
		return true
	}
	err := c.conn.Raw(func(any) error { return nil })
	return errors.Is(err, sql.ErrConnDone)
}

func (c *Conn) executor(ctx context.Context) (bun.IConn, error) {
	if c.closed {
		return nil, sql.ErrConnDone
	}
	if c.autoCommit {
		return c.conn, nil
	}
	if c.tx == nil {
		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		c.tx = &tx
	}
	return c.tx, nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	db, err := c.executor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	c.metrics.Statement(c.schema, "exec", err, time.Since(start))
	return res, err
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	db, err := c.executor(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	c.metrics.Statement(c.schema, "query", err, time.Since(start))
	return rows, err
}

// QueryRow runs a single row query. The error only reports a failure to
// start the transaction; query errors surface through Row.Scan.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	start := time.Now()
	db, err := c.executor(ctx)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, query, args...)
	c.metrics.Statement(c.schema, "query", row.Err(), time.Since(start))
	return row, nil
}

// Prepare creates a statement in driver syntax (no bun formatting). It stays
// open until ReleaseStatements or Close.
func (c *Conn) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if _, err := c.executor(ctx); err != nil {
		return nil, err
	}
	var (
		stmt *sql.Stmt
		err  error
	)
	if c.tx != nil {
		stmt, err = c.tx.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.PrepareContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	c.stmts = append(c.stmts, stmt)
	return stmt, nil
}

// OpenStatements returns the number of tracked prepared statements.
func (c *Conn) OpenStatements() int { return len(c.stmts) }

// ReleaseStatements closes every statement opened through Prepare and keeps
// the connection open.
func (c *Conn) ReleaseStatements() error {
	var errs []error
	for _, stmt := range c.stmts {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.stmts = nil
	return errors.Join(errs...)
}

// OnCommit registers fn to run after the current transaction commits. On an
// auto-commit connection fn runs immediately. Rollback discards pending hooks.
func (c *Conn) OnCommit(ctx context.Context, fn func(context.Context)) {
	if c.autoCommit {
		fn(ctx)
		return
	}
	c.hooks = append(c.hooks, fn)
}

// Commit ends the current transaction, then runs the commit hooks.
func (c *Conn) Commit(ctx context.Context) error {
	if c.closed {
		return sql.ErrConnDone
	}
	if c.tx != nil {
		err := c.tx.Commit()
		c.tx = nil
		if err != nil {
			c.hooks = nil
			c.metrics.Transaction(c.schema, "commit_failed")
			return err
		}
		c.metrics.Transaction(c.schema, "commit")
	}
	hooks := c.hooks
	c.hooks = nil
	for _, fn := range hooks {
		fn(ctx)
	}
	return nil
}

// Rollback aborts the current transaction and discards the commit hooks.
func (c *Conn) Rollback() error {
	if c.closed {
		return sql.ErrConnDone
	}
	c.hooks = nil
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	c.metrics.Transaction(c.schema, "rollback")
	return err
}

// Close rolls back an unfinished transaction, releases statements and
// returns the connection. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	var errs []error
	if err := c.ReleaseStatements(); err != nil {
		errs = append(errs, err)
	}
	if c.tx != nil {
		if err := c.Rollback(); err != nil {
			c.logger.Warn("rollback on close failed",
				zap.String("schema", c.schema),
				zap.String("endpoint", c.endpoint),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	c.hooks = nil
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	c.closed = true
	if c.onClose != nil {
		c.onClose()
	}
	return errors.Join(errs...)
}

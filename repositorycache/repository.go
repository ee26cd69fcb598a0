package repositorycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/cache"
	"github.com/goliatone/go-dal/criteria"
	"github.com/goliatone/go-dal/datasource"
	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/mapper"
	"github.com/goliatone/go-dal/txn"
)

const (
	methodList   = "list"
	methodPage   = "page"
	methodNative = "native"
)

// Repository loads, stores and queries entities of type E in one schema,
// caching reads in an EntityCache keyed by the entity class name.
//
// Every method has a Tx variant taking an ambient connection. A nil
// connection means the repository opens and closes its own. Reads on an
// ambient connection with auto-commit off bypass the cache so that
// uncommitted rows are never cached; cache maintenance for writes on such a
// connection runs only once it commits.
type Repository[E any] struct {
	schema            string
	mapper            *mapper.Mapper[E]
	tx                *txn.Manager
	cache             *cache.EntityCache
	logger            *zap.Logger
	now               func() time.Time
	refreshCollection bool
}

// New returns a repository for the entities described by m.
func New[E any](schema string, m *mapper.Mapper[E], tx *txn.Manager, opts ...Option) *Repository[E] {
	s := settings{
		now:               time.Now,
		refreshCollection: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.L().Named("repository").With(zap.String("entity", m.Name()))
	}
	return &Repository[E]{
		schema:            schema,
		mapper:            m,
		tx:                tx,
		cache:             s.cache,
		logger:            s.logger,
		now:               s.now,
		refreshCollection: s.refreshCollection,
	}
}

// Name is the entity class name used as cache namespace.
func (r *Repository[E]) Name() string { return r.mapper.Name() }

func (r *Repository[E]) Schema() string { return r.schema }

func (r *Repository[E]) Mapper() *mapper.Mapper[E] { return r.mapper }

// Load returns the live entity with id, or a not found error.
func (r *Repository[E]) Load(ctx context.Context, id int64, opts ...ReadOption) (E, error) {
	return r.LoadTx(ctx, nil, id, opts...)
}

func (r *Repository[E]) LoadTx(ctx context.Context, conn *datasource.Conn, id int64, opts ...ReadOption) (E, error) {
	load := func(ctx context.Context) (E, error) {
		return txn.InConnection(ctx, r.tx, r.schema, true, conn, func(ctx context.Context, c *datasource.Conn) (E, error) {
			return r.selectByID(ctx, c, id)
		})
	}

	if !r.cacheable(conn, opts) {
		return load(ctx)
	}
	key, err := r.cache.EntityKey(ctx, r.Name(), id)
	if err != nil {
		r.logger.Warn("entity key unavailable, reading database", zap.Int64("id", id), zap.Error(err))
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, r.cache, r.Name(), key, load)
}

// Save inserts a new entity or updates an existing one, filling in the
// generated id and timestamps. The saved entity is written through to its
// cache key and cached lists are invalidated.
func (r *Repository[E]) Save(ctx context.Context, e *E) error {
	return r.SaveTx(ctx, nil, e)
}

func (r *Repository[E]) SaveTx(ctx context.Context, conn *datasource.Conn, e *E) error {
	return r.tx.WithConnection(ctx, r.schema, false, conn, func(ctx context.Context, c *datasource.Conn) error {
		if err := r.mapper.ApplyDefaults(e); err != nil {
			return fmt.Errorf("save %s: %w", r.Name(), err)
		}
		model := r.mapper.Model(e)
		if model.IsNew() {
			if err := r.insert(ctx, c, e, model); err != nil {
				return err
			}
		} else if err := r.update(ctx, c, e, model); err != nil {
			return err
		}

		saved := *e
		id := model.ID
		c.OnCommit(ctx, func(ctx context.Context) {
			r.afterSave(ctx, id, saved)
		})
		return nil
	})
}

// Remove expires the entity with id, or deletes its row with Physically.
func (r *Repository[E]) Remove(ctx context.Context, id int64, opts ...RemoveOption) error {
	return r.RemoveTx(ctx, nil, id, opts...)
}

func (r *Repository[E]) RemoveTx(ctx context.Context, conn *datasource.Conn, id int64, opts ...RemoveOption) error {
	var o removeOptions
	for _, opt := range opts {
		opt(&o)
	}

	return r.tx.WithConnection(ctx, r.schema, false, conn, func(ctx context.Context, c *datasource.Conn) error {
		stmt, params := r.mapper.Expire(), r.mapper.ExpireParams(id)
		if o.physical {
			stmt, params = r.mapper.Delete(), r.mapper.IDParams(id)
		}
		res, err := c.Exec(ctx, mapper.Compile(stmt), params)
		if err != nil {
			return fmt.Errorf("remove %s %d: %w", r.Name(), id, err)
		}
		if err := r.affected(res, id); err != nil {
			return err
		}
		c.OnCommit(ctx, func(ctx context.Context) {
			r.afterRemove(ctx, id)
		})
		return nil
	})
}

// List returns the live entities matching c. A bounded window fetches one
// extra row to tell whether more rows follow; Total is not populated.
func (r *Repository[E]) List(ctx context.Context, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	return r.ListTx(ctx, nil, c, opts...)
}

func (r *Repository[E]) ListTx(ctx context.Context, conn *datasource.Conn, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	if err := c.Err(); err != nil {
		return criteria.Results[E]{}, err
	}
	lookahead := !c.IsUnlimited()
	load := func(ctx context.Context) (criteria.Results[E], error) {
		rows, err := r.query(ctx, conn, r.mapper.List(c, lookahead), r.mapper.ListParams(c))
		if err != nil {
			return criteria.Results[E]{}, err
		}
		return criteria.NewListResults(c.GetOffset(), c.GetLimit(), rows), nil
	}
	return r.cachedList(ctx, conn, methodList, cache.CriteriaParams(c), opts, load)
}

// Page returns the live entities matching c together with the total count
// of matching rows. An unlimited window skips the count query and reports
// the number of rows read.
func (r *Repository[E]) Page(ctx context.Context, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	return r.PageTx(ctx, nil, c, opts...)
}

func (r *Repository[E]) PageTx(ctx context.Context, conn *datasource.Conn, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	if err := c.Err(); err != nil {
		return criteria.Results[E]{}, err
	}
	load := func(ctx context.Context) (criteria.Results[E], error) {
		return txn.InConnection(ctx, r.tx, r.schema, true, conn, func(ctx context.Context, db *datasource.Conn) (criteria.Results[E], error) {
			params := r.mapper.ListParams(c)
			rows, err := r.scanAll(ctx, db, r.mapper.List(c, false), params)
			if err != nil {
				return criteria.Results[E]{}, err
			}
			total := c.GetOffset() + len(rows)
			if !c.IsUnlimited() {
				if total, err = r.count(ctx, db, c, params); err != nil {
					return criteria.Results[E]{}, err
				}
			}
			return criteria.NewPageResults(c.GetOffset(), c.GetLimit(), total, rows), nil
		})
	}
	return r.cachedList(ctx, conn, methodPage, cache.CriteriaParams(c), opts, load)
}

// ListNative runs a hand written statement returning the mapper's columns
// in canonical order. Placeholders use the {name} form and are resolved
// from c's params. The window of c must be unlimited: native statements are
// never paged automatically.
func (r *Repository[E]) ListNative(ctx context.Context, stmt string, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	return r.ListNativeTx(ctx, nil, stmt, c, opts...)
}

func (r *Repository[E]) ListNativeTx(ctx context.Context, conn *datasource.Conn, stmt string, c *criteria.Criteria, opts ...ReadOption) (criteria.Results[E], error) {
	if err := c.Err(); err != nil {
		return criteria.Results[E]{}, err
	}
	if !c.IsUnlimited() || c.GetOffset() > 0 {
		return criteria.Results[E]{}, dberrors.Validation("native statements cannot be paged, use an unlimited criteria")
	}
	load := func(ctx context.Context) (criteria.Results[E], error) {
		rows, err := r.query(ctx, conn, stmt, c.Params())
		if err != nil {
			return criteria.Results[E]{}, err
		}
		return criteria.NewListResults(0, criteria.Unlimited, rows), nil
	}
	params := cache.SerializeParams(append([]criteria.Pair{{Name: "stmt", Value: stmt}}, c.KeyParams()...))
	return r.cachedList(ctx, conn, methodNative, params, opts, load)
}

// WithTransaction runs work in a new transaction on the repository schema.
// Pass the connection to the Tx methods to take part in it.
func (r *Repository[E]) WithTransaction(ctx context.Context, work txn.Work, opts ...txn.TxOption) error {
	return r.tx.WithTransaction(ctx, r.schema, work, opts...)
}

// ClearCache invalidates every cached entry of the entity. It is a no-op
// when caching is off.
func (r *Repository[E]) ClearCache(ctx context.Context) error {
	if !r.cache.Enabled() {
		return nil
	}
	n, err := r.cache.Purge(ctx, r.Name())
	r.logger.Debug("cache cleared", zap.Int("removed", n), zap.Error(err))
	return err
}

// ClearCollectionCache invalidates the cached lists and pages of the entity.
func (r *Repository[E]) ClearCollectionCache(ctx context.Context) error {
	if !r.cache.Enabled() {
		return nil
	}
	return r.cache.RefreshCollectionTimestamp(ctx, r.Name())
}

func (r *Repository[E]) cacheable(conn *datasource.Conn, opts []ReadOption) bool {
	if !r.cache.Enabled() || !readOpts(opts).useCache {
		return false
	}
	return conn == nil || !conn.InTransaction()
}

func (r *Repository[E]) cachedList(ctx context.Context, conn *datasource.Conn, method, params string, opts []ReadOption, load func(context.Context) (criteria.Results[E], error)) (criteria.Results[E], error) {
	if !r.cacheable(conn, opts) {
		return load(ctx)
	}
	key, err := r.cache.ListKey(ctx, r.Name(), method, params)
	if err != nil {
		r.logger.Warn("list key unavailable, reading database", zap.String("method", method), zap.Error(err))
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, r.cache, r.Name(), key, load)
}

func (r *Repository[E]) selectByID(ctx context.Context, c *datasource.Conn, id int64) (E, error) {
	var zero E
	row, err := c.QueryRow(ctx, mapper.Compile(r.mapper.SelectByID()), r.mapper.IDParams(id))
	if err != nil {
		return zero, fmt.Errorf("load %s %d: %w", r.Name(), id, err)
	}
	e, err := r.mapper.Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, dberrors.NotFound(r.Name(), id)
	}
	if err != nil {
		return zero, fmt.Errorf("load %s %d: %w", r.Name(), id, err)
	}
	return e, nil
}

func (r *Repository[E]) insert(ctx context.Context, c *datasource.Conn, e *E, model *mapper.Model) error {
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.now().UTC()
	}
	model.UpdatedAt = nil

	row, err := c.QueryRow(ctx, mapper.Compile(r.mapper.Insert()), r.mapper.InsertParams(e))
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.Name(), err)
	}
	if err := row.Scan(&model.ID); err != nil {
		return fmt.Errorf("insert %s: %w", r.Name(), err)
	}
	return nil
}

func (r *Repository[E]) update(ctx context.Context, c *datasource.Conn, e *E, model *mapper.Model) error {
	params := r.mapper.UpdateParams(e)
	res, err := c.Exec(ctx, mapper.Compile(r.mapper.Update()), params)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", r.Name(), model.ID, err)
	}
	if err := r.affected(res, model.ID); err != nil {
		return err
	}
	if v, ok := params.Get(mapper.ColumnUpdatedAt); ok {
		model.UpdatedAt, _ = v.(*time.Time)
	}
	return nil
}

func (r *Repository[E]) affected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dberrors.NotFound(r.Name(), id)
	}
	return nil
}

func (r *Repository[E]) query(ctx context.Context, conn *datasource.Conn, stmt string, params *criteria.Params) ([]E, error) {
	return txn.InConnection(ctx, r.tx, r.schema, true, conn, func(ctx context.Context, c *datasource.Conn) ([]E, error) {
		return r.scanAll(ctx, c, stmt, params)
	})
}

func (r *Repository[E]) scanAll(ctx context.Context, c *datasource.Conn, stmt string, params *criteria.Params) ([]E, error) {
	rows, err := c.Query(ctx, mapper.Compile(stmt), params)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.Name(), err)
	}
	defer rows.Close()

	var out []E
	for rows.Next() {
		e, err := r.mapper.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.Name(), err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.Name(), err)
	}
	return out, nil
}

func (r *Repository[E]) count(ctx context.Context, c *datasource.Conn, crit *criteria.Criteria, params *criteria.Params) (int, error) {
	row, err := c.QueryRow(ctx, mapper.Compile(r.mapper.Count(crit)), params)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.Name(), err)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.Name(), err)
	}
	return n, nil
}

// afterSave writes the saved entity through to its key. Cache failures are
// logged: the database write already succeeded.
func (r *Repository[E]) afterSave(ctx context.Context, id int64, saved E) {
	if !r.cache.Enabled() {
		return
	}
	key, err := r.cache.EntityKey(ctx, r.Name(), id)
	if err == nil {
		if r.mapper.Model(&saved).Expired {
			err = r.cache.Remove(ctx, key)
		} else {
			err = cache.Put(ctx, r.cache, key, saved)
		}
	}
	if err != nil {
		r.logger.Warn("cache write-through failed", zap.Int64("id", id), zap.Error(err))
	}
	r.afterWrite(ctx)
}

func (r *Repository[E]) afterRemove(ctx context.Context, id int64) {
	if !r.cache.Enabled() {
		return
	}
	key, err := r.cache.EntityKey(ctx, r.Name(), id)
	if err == nil {
		err = r.cache.Remove(ctx, key)
	}
	if err != nil {
		r.logger.Warn("cache eviction failed", zap.Int64("id", id), zap.Error(err))
	}
	r.afterWrite(ctx)
}

func (r *Repository[E]) afterWrite(ctx context.Context) {
	if !r.refreshCollection {
		return
	}
	if err := r.cache.RefreshCollectionTimestamp(ctx, r.Name()); err != nil {
		r.logger.Warn("collection refresh failed", zap.Error(err))
	}
}

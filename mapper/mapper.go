package mapper

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-dal/criteria"
	"github.com/goliatone/go-dal/dberrors"
	"github.com/uptrace/bun/dialect"
)

// expiredFilter names the soft-delete parameter of list and count statements
// so it never collides with a criteria alias derived from the expired column.
const expiredFilter = "expired_filter"

var placeholder = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// Compile rewrites {name} placeholders into bun named arguments (?name).
func Compile(stmt string) string {
	return placeholder.ReplaceAllString(stmt, "?$1")
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Option configures a Mapper.
type Option func(*options)

type options struct {
	table   string
	name    string
	now     func() time.Time
	dialect dialect.Name
}

// WithTable overrides the table name derived from the entity type.
func WithTable(table string) Option {
	return func(o *options) { o.table = table }
}

// WithName overrides the entity class name used as cache namespace.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDialect selects dialect specific syntax. Default is SQLite.
func WithDialect(d dialect.Name) Option {
	return func(o *options) { o.dialect = d }
}

// WithClock sets the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Mapper owns the column table of one entity type and the statements
// generated from it. Statements are built on first use and memoized.
type Mapper[E any] struct {
	name    string
	table   string
	model   func(*E) *Model
	columns []Column[E]
	now     func() time.Time
	dialect dialect.Name

	selectOnce sync.Once
	selectStmt string
	insertOnce sync.Once
	insertStmt string
	updateOnce sync.Once
	updateStmt string
	expireOnce sync.Once
	expireStmt string
	deleteOnce sync.Once
	deleteStmt string
	columnList string
	columnOnce sync.Once
}

// New builds the mapper for E. The Model columns come first, followed by
// columns in registration order; that order is the canonical column order.
func New[E any](model func(*E) *Model, columns []Column[E], opts ...Option) (*Mapper[E], error) {
	o := options{now: time.Now, dialect: dialect.SQLite}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = reflect.TypeOf((*E)(nil)).Elem().Name()
	}
	if o.table == "" {
		o.table = toSnake(o.name)
	}
	if model == nil {
		return nil, dberrors.Configuration("mapper %s: model accessor is required", o.name)
	}
	if o.name == "" || o.table == "" {
		return nil, dberrors.Configuration("mapper: entity name and table are required")
	}

	all := append(ModelColumns(model), columns...)
	seen := make(map[string]bool, len(all))
	for _, c := range all {
		if !validName(c.Name) {
			return nil, dberrors.Configuration("mapper %s: invalid column name %q", o.name, c.Name)
		}
		if seen[c.Name] {
			return nil, dberrors.Configuration("mapper %s: duplicate column %q", o.name, c.Name)
		}
		if c.Get == nil || c.Dest == nil {
			return nil, dberrors.Configuration("mapper %s: column %q has no accessor", o.name, c.Name)
		}
		if c.HasDefault && c.Set != nil {
			var e E
			if err := c.Set(&e, c.Default); err != nil {
				return nil, dberrors.Configuration("mapper %s: default of %q: %v", o.name, c.Name, err)
			}
		}
		seen[c.Name] = true
	}

	return &Mapper[E]{
		name:    o.name,
		table:   o.table,
		model:   model,
		columns: all,
		now:     o.now,
		dialect: o.dialect,
	}, nil
}

// MustNew is New for package level declarations.
func MustNew[E any](model func(*E) *Model, columns []Column[E], opts ...Option) *Mapper[E] {
	m, err := New(model, columns, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Name is the entity class name.
func (m *Mapper[E]) Name() string { return m.name }

// Table is the backing table.
func (m *Mapper[E]) Table() string { return m.table }

// Model returns the base record of e.
func (m *Mapper[E]) Model(e *E) *Model { return m.model(e) }

// Columns returns the column names in canonical order.
func (m *Mapper[E]) Columns() []string {
	names := make([]string, len(m.columns))
	for i, c := range m.columns {
		names[i] = c.Name
	}
	return names
}

func (m *Mapper[E]) columnsSQL() string {
	m.columnOnce.Do(func() {
		m.columnList = strings.Join(m.Columns(), ", ")
	})
	return m.columnList
}

// SelectByID loads one live row: params id and expired.
func (m *Mapper[E]) SelectByID() string {
	m.selectOnce.Do(func() {
		m.selectStmt = fmt.Sprintf("select %s from %s where %s = {%s} and %s = {%s}",
			m.columnsSQL(), m.table, ColumnID, ColumnID, ColumnExpired, ColumnExpired)
	})
	return m.selectStmt
}

// Insert sets every non-identity column and returns the generated id.
func (m *Mapper[E]) Insert() string {
	m.insertOnce.Do(func() {
		var cols, vals []string
		for _, c := range m.columns[1:] {
			cols = append(cols, c.Name)
			vals = append(vals, "{"+c.Name+"}")
		}
		m.insertStmt = fmt.Sprintf("insert into %s (%s) values (%s) returning %s",
			m.table, strings.Join(cols, ", "), strings.Join(vals, ", "), ColumnID)
	})
	return m.insertStmt
}

// Update sets every non-identity column of the row identified by id.
func (m *Mapper[E]) Update() string {
	m.updateOnce.Do(func() {
		var sets []string
		for _, c := range m.columns[1:] {
			sets = append(sets, c.Name+" = {"+c.Name+"}")
		}
		m.updateStmt = fmt.Sprintf("update %s set %s where %s = {%s}",
			m.table, strings.Join(sets, ", "), ColumnID, ColumnID)
	})
	return m.updateStmt
}

// Expire flips only the soft-delete flag.
func (m *Mapper[E]) Expire() string {
	m.expireOnce.Do(func() {
		m.expireStmt = fmt.Sprintf("update %s set %s = {%s} where %s = {%s}",
			m.table, ColumnExpired, ColumnExpired, ColumnID, ColumnID)
	})
	return m.expireStmt
}

// Delete removes the row physically.
func (m *Mapper[E]) Delete() string {
	m.deleteOnce.Do(func() {
		m.deleteStmt = fmt.Sprintf("delete from %s where %s = {%s}", m.table, ColumnID, ColumnID)
	})
	return m.deleteStmt
}

// Count counts live rows matching c. Window and sort are ignored.
func (m *Mapper[E]) Count(c *criteria.Criteria) string {
	return fmt.Sprintf("select count(*) from %s%s", m.table, m.where(c))
}

// List selects live rows matching c in c's order and window. With lookahead set
// and a bounded limit one extra row is requested to detect a next page.
func (m *Mapper[E]) List(c *criteria.Criteria, lookahead bool) string {
	var b strings.Builder
	b.WriteString("select ")
	b.WriteString(m.columnsSQL())
	b.WriteString(" from ")
	b.WriteString(m.table)
	b.WriteString(m.where(c))
	if order := c.OrderClause(); order != "" {
		b.WriteString(" order by ")
		b.WriteString(order)
	}
	b.WriteString(m.Window(c, lookahead))
	return b.String()
}

// Window renders the limit/offset suffix of c, empty for an unlimited window
// without offset.
func (m *Mapper[E]) Window(c *criteria.Criteria, lookahead bool) string {
	var b strings.Builder
	if !c.IsUnlimited() {
		limit := c.GetLimit()
		if lookahead {
			limit++
		}
		b.WriteString(" limit ")
		b.WriteString(strconv.Itoa(limit))
	} else if c.GetOffset() > 0 && m.dialect == dialect.SQLite {
		// sqlite rejects offset without limit
		b.WriteString(" limit -1")
	}
	if c.GetOffset() > 0 {
		b.WriteString(" offset ")
		b.WriteString(strconv.Itoa(c.GetOffset()))
	}
	return b.String()
}

func (m *Mapper[E]) where(c *criteria.Criteria) string {
	clause := fmt.Sprintf(" where %s = {%s}", ColumnExpired, expiredFilter)
	if c.HasTerms() {
		clause += " and (" + c.Where() + ")"
	}
	return clause
}

// ListParams returns c's params plus the soft-delete filter.
func (m *Mapper[E]) ListParams(c *criteria.Criteria) *criteria.Params {
	return c.Params().Clone().Set(expiredFilter, false)
}

// IDParams binds id for the select/expire/delete statements.
func (m *Mapper[E]) IDParams(id int64) *criteria.Params {
	return criteria.NewParams().Set(ColumnID, id).Set(ColumnExpired, false)
}

// ExpireParams binds id and a set soft-delete flag.
func (m *Mapper[E]) ExpireParams(id int64) *criteria.Params {
	return criteria.NewParams().Set(ColumnID, id).Set(ColumnExpired, true)
}

// InsertParams binds every non-identity column of e. updated_at is always NULL.
func (m *Mapper[E]) InsertParams(e *E) *criteria.Params {
	return m.bind(e, nil)
}

// UpdateParams binds every column of e. updated_at is always the current time.
func (m *Mapper[E]) UpdateParams(e *E) *criteria.Params {
	now := m.now()
	p := m.bind(e, &now)
	p.Set(ColumnID, m.model(e).ID)
	return p
}

// ApplyDefaults stores the registered default in every absent field of e,
// so the entity matches the row its params produce.
func (m *Mapper[E]) ApplyDefaults(e *E) error {
	for _, c := range m.columns {
		if !c.HasDefault || c.Set == nil || !absent(c.Get(e)) {
			continue
		}
		if err := c.Set(e, c.Default); err != nil {
			return fmt.Errorf("default of %s: %w", c.Name, err)
		}
	}
	return nil
}

func (m *Mapper[E]) bind(e *E, updatedAt *time.Time) *criteria.Params {
	p := criteria.NewParams()
	for _, c := range m.columns[1:] {
		if c.Name == ColumnUpdatedAt {
			p.Set(c.Name, updatedAt)
			continue
		}
		v := c.Get(e)
		if c.HasDefault && absent(v) {
			v = c.Default
		}
		p.Set(c.Name, v)
	}
	return p
}

// Scan reads one row in canonical column order into a new entity.
func (m *Mapper[E]) Scan(row Scanner) (E, error) {
	var e E
	dest := make([]any, len(m.columns))
	for i, c := range m.columns {
		dest[i] = c.Dest(&e)
	}
	if err := row.Scan(dest...); err != nil {
		var zero E
		return zero, err
	}
	return e, nil
}

func validName(name string) bool {
	if name == "" || !(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

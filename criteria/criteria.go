package criteria

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-dal/dberrors"
)

// Unlimited disables the lookahead row of List and the count query of Page.
const Unlimited = math.MaxInt32

// DefaultLimit is the window size of a new Criteria.
const DefaultLimit = 50

// Operator is a comparison supported by Term.
type Operator string

const (
	Equal            Operator = "="
	NotEqual         Operator = "<>"
	GreaterThan      Operator = ">"
	GreaterEqualThan Operator = ">="
	LessThan         Operator = "<"
	LessEqualThan    Operator = "<="
	Like             Operator = "like"
	Between          Operator = "between"
	In               Operator = "in"
)

// Valid reports whether op is one of the declared operators.
func (op Operator) Valid() bool {
	switch op {
	case Equal, NotEqual, GreaterThan, GreaterEqualThan, LessThan, LessEqualThan, Like, Between, In:
		return true
	}
	return false
}

// Connector joins a term to the previous one.
type Connector string

const (
	And Connector = "and"
	Or  Connector = "or"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Term is one predicate of the flat where chain.
type Term struct {
	Connector Connector
	Operator  Operator
	Column    string
	Aliases   []string
	Literal   string
}

// Order is a single sort key.
type Order struct {
	Column    string
	Direction Direction
}

// Criteria is an ordered predicate chain, a sort list, a window and the
// parameters the predicates reference by alias.
//
// Builder methods never fail; the first misuse is recorded and returned by Err.
type Criteria struct {
	offset int
	limit  int
	terms  []Term
	orders []Order
	params *Params
	err    error
}

// New returns an empty criteria with offset 0 and DefaultLimit.
func New() *Criteria {
	return &Criteria{limit: DefaultLimit, params: NewParams()}
}

// All returns an empty criteria with an unlimited window.
func All() *Criteria {
	return New().Unlimited()
}

// Offset sets the number of rows skipped. Negative values record an error.
func (c *Criteria) Offset(offset int) *Criteria {
	if offset < 0 {
		c.fail(dberrors.Validation("offset must not be negative, got %d", offset))
		return c
	}
	c.offset = offset
	return c
}

// Limit sets the page size. It must be positive; use Unlimited to lift it.
func (c *Criteria) Limit(limit int) *Criteria {
	if limit <= 0 {
		c.fail(dberrors.Validation("limit must be positive, got %d", limit))
		return c
	}
	c.limit = limit
	return c
}

// Unlimited removes the row limit.
func (c *Criteria) Unlimited() *Criteria {
	c.limit = Unlimited
	return c
}

// GetOffset and GetLimit return the paging window.
func (c *Criteria) GetOffset() int { return c.offset }
func (c *Criteria) GetLimit() int  { return c.limit }

// IsUnlimited reports whether the limit is the Unlimited sentinel.
func (c *Criteria) IsUnlimited() bool { return c.limit == Unlimited }

// AndEqual appends column = value joined with "and". Each And* method has an
// Or* twin that joins with "or"; the first term of a chain drops its
// connector either way.
func (c *Criteria) AndEqual(column string, value any) *Criteria {
	return c.add(And, Equal, column, value)
}

// OrEqual appends column = value joined with "or".
func (c *Criteria) OrEqual(column string, value any) *Criteria {
	return c.add(Or, Equal, column, value)
}

// AndNotEqual appends column <> value.
func (c *Criteria) AndNotEqual(column string, value any) *Criteria {
	return c.add(And, NotEqual, column, value)
}

func (c *Criteria) OrNotEqual(column string, value any) *Criteria {
	return c.add(Or, NotEqual, column, value)
}

// AndLike stores value wrapped as %value%.
func (c *Criteria) AndLike(column string, value any) *Criteria {
	return c.add(And, Like, column, value)
}

// OrLike is AndLike joined with "or".
func (c *Criteria) OrLike(column string, value any) *Criteria {
	return c.add(Or, Like, column, value)
}

// AndGreaterThan appends column > value. The GreaterEqual, LessThan and
// LessEqual families follow the same shape.
func (c *Criteria) AndGreaterThan(column string, value any) *Criteria {
	return c.add(And, GreaterThan, column, value)
}

func (c *Criteria) OrGreaterThan(column string, value any) *Criteria {
	return c.add(Or, GreaterThan, column, value)
}

func (c *Criteria) AndGreaterEqualThan(column string, value any) *Criteria {
	return c.add(And, GreaterEqualThan, column, value)
}

func (c *Criteria) OrGreaterEqualThan(column string, value any) *Criteria {
	return c.add(Or, GreaterEqualThan, column, value)
}

func (c *Criteria) AndLessThan(column string, value any) *Criteria {
	return c.add(And, LessThan, column, value)
}

func (c *Criteria) OrLessThan(column string, value any) *Criteria {
	return c.add(Or, LessThan, column, value)
}

func (c *Criteria) AndLessEqualThan(column string, value any) *Criteria {
	return c.add(And, LessEqualThan, column, value)
}

func (c *Criteria) OrLessEqualThan(column string, value any) *Criteria {
	return c.add(Or, LessEqualThan, column, value)
}

// AndBetween binds two parameters, <alias>_from and <alias>_to.
func (c *Criteria) AndBetween(column string, from, to any) *Criteria {
	return c.add(And, Between, column, from, to)
}

// OrBetween is AndBetween joined with "or".
func (c *Criteria) OrBetween(column string, from, to any) *Criteria {
	return c.add(Or, Between, column, from, to)
}

// AndIn renders values inline as a literal list. They are not bound and do
// not take part in KeyParams, so never pass unchecked input here.
func (c *Criteria) AndIn(column string, values ...any) *Criteria {
	return c.add(And, In, column, values...)
}

// OrIn is AndIn joined with "or". The same literal rendering applies.
func (c *Criteria) OrIn(column string, values ...any) *Criteria {
	return c.add(Or, In, column, values...)
}

// AndTerm adds a term with an operator chosen at runtime.
func (c *Criteria) AndTerm(op Operator, column string, values ...any) *Criteria {
	return c.add(And, op, column, values...)
}

// OrTerm is AndTerm joined with "or".
func (c *Criteria) OrTerm(op Operator, column string, values ...any) *Criteria {
	return c.add(Or, op, column, values...)
}

// OrderBy appends a sort key. Keys render in insertion order.
func (c *Criteria) OrderBy(column string, dir Direction) *Criteria {
	if !validColumn(column) {
		c.fail(dberrors.Validation("invalid order column %q", column))
		return c
	}
	if dir != Asc && dir != Desc {
		c.fail(dberrors.Validation("invalid sort direction %q", dir))
		return c
	}
	c.orders = append(c.orders, Order{Column: column, Direction: dir})
	return c
}

// Param binds a named parameter not produced by a term, e.g. for native statements.
func (c *Criteria) Param(name string, value any) *Criteria {
	if !validAlias(name) {
		c.fail(dberrors.Validation("invalid parameter name %q", name))
		return c
	}
	c.params.Set(name, value)
	return c
}

// Err returns the first misuse recorded by a builder method.
func (c *Criteria) Err() error { return c.err }

// Terms returns a copy of the predicate chain.
func (c *Criteria) Terms() []Term { return append([]Term(nil), c.terms...) }

// HasTerms reports whether the where chain is non-empty.
func (c *Criteria) HasTerms() bool { return len(c.terms) > 0 }

// Params returns the parameter store. Callers must not mutate it.
func (c *Criteria) Params() *Params { return c.params }

// KeyParams returns the bound parameters in declaration order.
func (c *Criteria) KeyParams() []Pair { return c.params.Pairs() }

// Where renders the predicate chain with {alias} placeholders. The first
// term never carries its connector and no grouping is introduced.
func (c *Criteria) Where() string {
	var b strings.Builder
	for i, t := range c.terms {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(string(t.Connector))
			b.WriteByte(' ')
		}
		b.WriteString(t.Column)
		b.WriteByte(' ')
		b.WriteString(string(t.Operator))
		b.WriteByte(' ')
		switch t.Operator {
		case Between:
			b.WriteString("{" + t.Aliases[0] + "} and {" + t.Aliases[1] + "}")
		case In:
			b.WriteString("(" + t.Literal + ")")
		default:
			b.WriteString("{" + t.Aliases[0] + "}")
		}
	}
	return b.String()
}

// OrderClause renders sort keys comma-joined, without the ORDER BY keyword.
func (c *Criteria) OrderClause() string {
	parts := make([]string, len(c.orders))
	for i, o := range c.orders {
		parts[i] = o.Column + " " + string(o.Direction)
	}
	return strings.Join(parts, ", ")
}

// Clone returns an independent copy.
func (c *Criteria) Clone() *Criteria {
	return &Criteria{
		offset: c.offset,
		limit:  c.limit,
		terms:  c.Terms(),
		orders: append([]Order(nil), c.orders...),
		params: c.params.Clone(),
		err:    c.err,
	}
}

func (c *Criteria) add(conn Connector, op Operator, column string, values ...any) *Criteria {
	if !op.Valid() {
		c.fail(dberrors.Validation("unsupported operator %q", op))
		return c
	}
	if !validColumn(column) {
		c.fail(dberrors.Validation("invalid column %q", column))
		return c
	}

	t := Term{Connector: conn, Operator: op, Column: column}
	switch op {
	case Between:
		if len(values) != 2 {
			c.fail(dberrors.Validation("between on %s needs 2 values, got %d", column, len(values)))
			return c
		}
		from, to := c.alias(column+"_from"), c.alias(column+"_to")
		c.params.Set(from, values[0])
		c.params.Set(to, values[1])
		t.Aliases = []string{from, to}
	case In:
		if len(values) == 0 {
			c.fail(dberrors.Validation("in on %s needs at least one value", column))
			return c
		}
		t.Literal = inLiteral(values)
	default:
		if len(values) != 1 {
			c.fail(dberrors.Validation("%s on %s needs 1 value, got %d", op, column, len(values)))
			return c
		}
		v := values[0]
		if op == Like {
			v = fmt.Sprintf("%%%v%%", v)
		}
		name := c.alias(column)
		c.params.Set(name, v)
		t.Aliases = []string{name}
	}
	c.terms = append(c.terms, t)
	return c
}

func (c *Criteria) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// alias derives a placeholder name from a column, unique within c.
func (c *Criteria) alias(column string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(column) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	base := strings.Trim(b.String(), "_")
	if base == "" || base[0] < 'a' || base[0] > 'z' {
		base = "p_" + base
	}
	name := base
	for n := 2; c.params.Has(name); n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	return name
}

func validColumn(col string) bool {
	if col == "" {
		return false
	}
	for _, r := range col {
		if !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func validAlias(name string) bool {
	if name == "" || !(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		return false
	}
	return validColumn(name) && !strings.Contains(name, ".")
}

// inLiteral serializes values into a comma-joined SQL list. Strings are
// single-quoted; '?' is escaped so bun's formatter leaves it alone.
func inLiteral(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = literal(v)
	}
	return strings.Join(parts, ", ")
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return quote(x.UTC().Format(time.RFC3339Nano))
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	s = strings.ReplaceAll(s, "?", `\?`)
	return "'" + s + "'"
}

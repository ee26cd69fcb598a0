package criteria

import (
	"reflect"
	"strings"
	"testing"

	"github.com/goliatone/go-dal/dberrors"
)

func TestWhereRendersFlatChain(t *testing.T) {
	c := New().AndEqual("x", 1).OrLike("y", "a")

	if got, want := c.Where(), "x = {x} or y like {y}"; got != want {
		t.Fatalf("Where() = %q, want %q", got, want)
	}

	if v, _ := c.Params().Get("y"); v != "%a%" {
		t.Errorf("like value = %v, want %%a%%", v)
	}
	if v, _ := c.Params().Get("x"); v != 1 {
		t.Errorf("x value = %v, want 1", v)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWhereOperators(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Criteria) *Criteria
		want  string
	}{
		{"not equal", func(c *Criteria) *Criteria { return c.AndNotEqual("a", 1) }, "a <> {a}"},
		{"greater", func(c *Criteria) *Criteria { return c.AndGreaterThan("a", 1) }, "a > {a}"},
		{"greater equal", func(c *Criteria) *Criteria { return c.OrGreaterEqualThan("a", 1) }, "a >= {a}"},
		{"less", func(c *Criteria) *Criteria { return c.AndLessThan("a", 1) }, "a < {a}"},
		{"less equal", func(c *Criteria) *Criteria { return c.OrLessEqualThan("a", 1) }, "a <= {a}"},
		{"between", func(c *Criteria) *Criteria { return c.AndBetween("age", 18, 30) }, "age between {age_from} and {age_to}"},
		{"in numbers", func(c *Criteria) *Criteria { return c.AndIn("id", 1, 2, 3) }, "id in (1, 2, 3)"},
		{"in strings", func(c *Criteria) *Criteria { return c.AndIn("name", "o'neil", "b") }, "name in ('o''neil', 'b')"},
		{"chain", func(c *Criteria) *Criteria {
			return c.AndEqual("a", 1).AndEqual("b", 2).OrNotEqual("c", 3)
		}, "a = {a} and b = {b} or c <> {c}"},
		{"repeated column", func(c *Criteria) *Criteria {
			return c.AndGreaterThan("a", 1).AndLessThan("a", 9)
		}, "a > {a} and a < {a_2}"},
		{"qualified column", func(c *Criteria) *Criteria { return c.AndEqual("u.email", "x") }, "u.email = {u_email}"},
		{"runtime operator", func(c *Criteria) *Criteria { return c.OrTerm(LessThan, "a", 1) }, "a < {a}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.build(New())
			if err := c.Err(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := c.Where(); got != tt.want {
				t.Errorf("Where() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBetweenBindsTwoParams(t *testing.T) {
	c := New().AndBetween("age", 18, 30)

	got := c.KeyParams()
	want := []Pair{{"age_from", 18}, {"age_to", 30}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KeyParams() = %v, want %v", got, want)
	}
}

func TestInIsNotBound(t *testing.T) {
	c := New().AndEqual("a", 1).AndIn("b", 1, 2)

	if c.Params().Len() != 1 {
		t.Errorf("expected only one bound parameter, got %d", c.Params().Len())
	}
}

func TestKeyParamsKeepDeclarationOrder(t *testing.T) {
	c := New().AndEqual("zeta", 1).AndEqual("alpha", 2).Param("mid", 3)

	var names []string
	for _, p := range c.KeyParams() {
		names = append(names, p.Name)
	}
	if want := []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestOrderClauseKeepsInsertionOrder(t *testing.T) {
	c := New().OrderBy("created_at", Desc).OrderBy("id", Asc)

	if got, want := c.OrderClause(), "created_at desc, id asc"; got != want {
		t.Errorf("OrderClause() = %q, want %q", got, want)
	}
}

func TestBuilderMisuseIsValidationError(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Criteria) *Criteria
	}{
		{"unsupported operator", func(c *Criteria) *Criteria { return c.AndTerm(Operator("~"), "a", 1) }},
		{"bad column", func(c *Criteria) *Criteria { return c.AndEqual("a; drop table x", 1) }},
		{"between arity", func(c *Criteria) *Criteria { return c.AndTerm(Between, "a", 1) }},
		{"empty in", func(c *Criteria) *Criteria { return c.AndIn("a") }},
		{"bad direction", func(c *Criteria) *Criteria { return c.OrderBy("a", Direction("up")) }},
		{"negative offset", func(c *Criteria) *Criteria { return c.Offset(-1) }},
		{"zero limit", func(c *Criteria) *Criteria { return c.Limit(0) }},
		{"bad param name", func(c *Criteria) *Criteria { return c.Param("1x", 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(New()).Err()
			if !dberrors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFirstErrorWins(t *testing.T) {
	c := New().AndTerm(Operator("~"), "a", 1).Limit(0)
	if c.Err() == nil {
		t.Fatal("expected error")
	}
	if got := c.Err().Error(); !strings.Contains(got, "unsupported operator") {
		t.Errorf("expected first error to be kept, got %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := New().AndEqual("a", 1)
	clone := c.Clone().AndEqual("b", 2)

	if c.Where() != "a = {a}" {
		t.Errorf("original modified: %q", c.Where())
	}
	if clone.Where() != "a = {a} and b = {b}" {
		t.Errorf("clone = %q", clone.Where())
	}
}

func TestWindowDefaults(t *testing.T) {
	c := New()
	if c.GetOffset() != 0 || c.GetLimit() != DefaultLimit {
		t.Errorf("defaults = %d/%d", c.GetOffset(), c.GetLimit())
	}
	if !All().IsUnlimited() {
		t.Error("All() must be unlimited")
	}
}

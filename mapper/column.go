package mapper

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
)

// Column maps one table column to one entity field through static accessors.
type Column[E any] struct {
	Name       string
	Field      string
	Default    any
	HasDefault bool

	// Get returns the field value for binding.
	Get func(*E) any
	// Dest returns a scan destination pointing at the field.
	Dest func(*E) any
	// Set stores a value in the field, converting it to the field type.
	// Optional; columns without it keep defaults out of the entity.
	Set func(*E, any) error
}

// Col declares a column backed by the field ptr points at.
func Col[E, V any](name, field string, ptr func(*E) *V) Column[E] {
	return Column[E]{
		Name:  name,
		Field: field,
		Get:   func(e *E) any { return *ptr(e) },
		Dest:  func(e *E) any { return ptr(e) },
		Set:   func(e *E, v any) error { return assign(ptr(e), v) },
	}
}

// WithDefault registers the value bound when the field is absent.
func (c Column[E]) WithDefault(v any) Column[E] {
	c.Default = v
	c.HasDefault = true
	return c
}

// absent reports whether v is an unset optional: nil, a nil pointer, or a
// driver.Valuer (sql.NullString and friends) that yields NULL.
func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		return err == nil && dv == nil
	}
	return false
}

// assign stores v in the variable dst points at. Besides plain assignment
// it fills pointer fields with a fresh copy of v and lets sql.Scanner
// fields (sql.NullString and friends) convert v themselves.
func assign(dst, v any) error {
	if s, ok := dst.(sql.Scanner); ok {
		return s.Scan(v)
	}
	dv := reflect.ValueOf(dst).Elem()
	if v == nil {
		dv.SetZero()
		return nil
	}
	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(dv.Type()):
		dv.Set(sv)
	case dv.Kind() == reflect.Ptr && sv.Type().AssignableTo(dv.Type().Elem()):
		p := reflect.New(dv.Type().Elem())
		p.Elem().Set(sv)
		dv.Set(p)
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dv.Type())
	}
	return nil
}

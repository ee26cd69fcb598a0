package cache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-dal/criteria"
)

// KeySeparator delimits cache key segments.
const KeySeparator = ":"

const timestampsSuffix = "timestamps"

// EntityKey builds the single entity key Class:id:global.
func EntityKey(class string, id any, ts Timestamps) string {
	return strings.Join([]string{class, stripSpace(fmt.Sprint(id)), strconv.FormatInt(ts.Global, 10)}, KeySeparator)
}

// ListKey builds the query key Class:method:params:global:collection.
func ListKey(class, method, params string, ts Timestamps) string {
	return strings.Join([]string{
		class,
		method,
		params,
		strconv.FormatInt(ts.Global, 10),
		strconv.FormatInt(ts.Collection, 10),
	}, KeySeparator)
}

// TimestampsKey is where the timestamp pair of class is stored.
func TimestampsKey(class string) string {
	return class + KeySeparator + timestampsSuffix
}

// SerializeParams joins name=value pairs in the given order with commas.
// Values are normalized with NormalizeValue and all whitespace is dropped.
func SerializeParams(pairs []criteria.Pair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.Name + "=" + NormalizeValue(p.Value)
	}
	return stripSpace(strings.Join(parts, ","))
}

// CriteriaParams serializes the window, the rendered predicate shape and the
// bound parameters of c. The shape is hashed so that criteria binding the
// same values under different operators, or inlining different In lists,
// never share a key.
func CriteriaParams(c *criteria.Criteria) string {
	pairs := []criteria.Pair{
		{Name: "offset", Value: c.GetOffset()},
		{Name: "limit", Value: c.GetLimit()},
	}
	if shape := c.Where() + "|" + c.OrderClause(); shape != "|" {
		pairs = append(pairs, criteria.Pair{Name: "q", Value: shape})
	}
	return SerializeParams(append(pairs, c.KeyParams()...))
}

// NormalizeValue maps a parameter value to its key form. Times become epoch
// milliseconds, numbers are kept as is and everything else is replaced by
// the xxhash of its printed value. Distinct values may share a hash.
func NormalizeValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return strconv.FormatInt(t.UnixMilli(), 10)
	case *time.Time:
		if t == nil {
			return hashValue(nil)
		}
		return strconv.FormatInt(t.UnixMilli(), 10)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Ptr:
		if !rv.IsNil() {
			return NormalizeValue(rv.Elem().Interface())
		}
	}
	return hashValue(v)
}

func hashValue(v any) string {
	return "x" + strconv.FormatUint(xxhash.Sum64String(fmt.Sprintf("%v", v)), 16)
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

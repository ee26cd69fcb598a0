package criteria

import (
	"github.com/uptrace/bun/schema"
)

// Pair is a single named parameter.
type Pair struct {
	Name  string
	Value any
}

// Params is an ordered name to value store. Declaration order is preserved
// because cache keys are derived from it.
//
// Params implements bun's schema.NamedArgAppender, so a *Params passed as the
// only argument of a bun query resolves every ?name placeholder.
type Params struct {
	pairs []Pair
	index map[string]int
}

// NewParams creates an empty parameter store.
func NewParams() *Params {
	return &Params{index: make(map[string]int)}
}

// Set binds name to value. Re-binding an existing name keeps its original position.
func (p *Params) Set(name string, value any) *Params {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[name]; ok {
		p.pairs[i].Value = value
		return p
	}
	p.index[name] = len(p.pairs)
	p.pairs = append(p.pairs, Pair{Name: name, Value: value})
	return p
}

// Get returns the value bound to name.
func (p *Params) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.pairs[i].Value, true
}

// Has reports whether name is bound.
func (p *Params) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Len returns the number of bound parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.pairs)
}

// Pairs returns a copy of the bound parameters in declaration order.
func (p *Params) Pairs() []Pair {
	if p == nil {
		return nil
	}
	return append([]Pair(nil), p.pairs...)
}

// Merge copies every pair of other into p, in other's order.
func (p *Params) Merge(other *Params) *Params {
	for _, pair := range other.Pairs() {
		p.Set(pair.Name, pair.Value)
	}
	return p
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	return NewParams().Merge(p)
}

// AppendNamedArg implements schema.NamedArgAppender.
func (p *Params) AppendNamedArg(fmter schema.Formatter, b []byte, name string) ([]byte, bool) {
	v, ok := p.Get(name)
	if !ok {
		return b, false
	}
	return schema.Append(fmter, b, v), true
}

// Package criteria builds the where/order fragment of list queries together
// with the named parameters the fragment references.
//
// Terms form a flat, left-to-right chain. The first term renders without its
// connector, every later term is prefixed by "and" or "or", and no grouping is
// ever introduced:
//
//	c := criteria.New().AndEqual("x", 1).OrLike("y", "a")
//	c.Where() // x = {x} or y like {y}
//
// Placeholders use {alias} form. Aliases derive from the column name and are
// made unique per criteria. The mapper package compiles them into bun named
// arguments and *Params resolves them at execution time.
//
// The bound parameters, in declaration order, also serve as cache key
// material (see KeyParams). Values passed to In are rendered inline as a
// literal list and are not bound, so two criteria that differ only in their
// In values produce the same key parameters.
//
// Builder methods do not return errors. The first misuse (unknown operator,
// invalid column, wrong arity) is recorded and reported by Err.
package criteria

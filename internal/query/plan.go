// Package query builds storage-agnostic, parameterized query plans for user
// lookups. Plans are never executed here; the repository renders and runs
// them.
package query

// Param is a single named query parameter.
type Param struct {
	Name  string
	Value any
}

// Predicate is one WHERE clause fragment. Expr references its parameters by
// name (":name"); the same name may appear more than once. Expressions are
// assembled only from fixed templates in this package, never from caller
// input, so the rendered SQL cannot be influenced by message contents.
type Predicate struct {
	Expr   string
	Params []Param
}

// Plan describes a user-table query: ordered predicates (AND-combined),
// resolved physical sort column and direction, and paging. A zero SortColumn
// means no ordering (single-row and count plans).
type Plan struct {
	Predicates []Predicate
	SortColumn string
	Descending bool
	Limit      int
	Offset     int
}

package tabular

import (
	"context"
	"errors"
)

// Row is one result row keyed by output column name.
type Row = map[string]any

// ErrNotFound is returned by RowSource.Get when no row matches the id.
var ErrNotFound = errors.New("row not found")

// Filter operators understood by Query.Where.
const (
	OpEq   = "eq"
	OpNeq  = "neq"
	OpGt   = "gt"
	OpGte  = "gte"
	OpLt   = "lt"
	OpLte  = "lte"
	OpLike = "like"
)

// Column is one projected output column. An empty Expr projects the plain
// column named Name; otherwise Expr is a computed expression aliased to Name.
type Column struct {
	Name string
	Expr string
}

// Cols builds a plain-column projection from field names.
func Cols(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name}
	}
	return cols
}

// Query is a composable read query over a table or view. Builder methods
// return derived queries and never mutate the receiver, so a partially
// built query can safely be extended in different directions.
type Query interface {
	// Where adds an AND-ed predicate comparing a column against a value
	// using one of the Op* operators.
	Where(field, op string, value any) Query
	// NotNull adds an AND-ed "column is not null" predicate.
	NotNull(field string) Query
	// GroupBy groups results by a column or expression.
	GroupBy(expr string) Query
	// OrderBy sorts results by a column or expression.
	OrderBy(expr string, desc bool) Query
	// Slice restricts results to a sub-range. Slicing past the end yields
	// an empty result, not an error.
	Slice(offset, limit int) Query
	// Count reports the number of rows the query would return before any
	// Slice is applied.
	Count(ctx context.Context) (int64, error)
	// Rows executes the query and collects all matching rows.
	Rows(ctx context.Context) ([]Row, error)
}

// RowSource is the capability the pipeline needs from the persistence
// layer: a named table or view that can be projected into a Query and
// looked up by primary key.
type RowSource interface {
	Select(cols ...Column) Query
	// Get fetches the given fields of the row with the given primary key,
	// or ErrNotFound.
	Get(ctx context.Context, id int64, fields []string) (Row, error)
}

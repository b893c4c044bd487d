// Package tabular implements the read pipeline behind stacklens' table
// endpoints. A declarative per-entity Config drives a fixed sequence of
// stages - select, filter, group, order, paginate, format - over an
// abstract RowSource, producing a response envelope with labeled rows,
// templated links, and round-trippable filter state.
//
// Entities customize individual stages through first-class function values
// on their Config rather than new code paths: aggregate views swap in a
// computed projection and a grouping expression, ranking views swap in an
// ordering, and everything else shares the same pipeline.
package tabular

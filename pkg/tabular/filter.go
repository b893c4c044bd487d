package tabular

import (
	"net/url"
	"strconv"
	"strings"
)

// Criterion is one applied filter in the same shape a client submits it
// (field=op.value), so the envelope echo lets the client rebuild its
// filter UI state from the response alone.
type Criterion struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

var filterOps = map[string]bool{
	OpEq:   true,
	OpNeq:  true,
	OpGt:   true,
	OpGte:  true,
	OpLt:   true,
	OpLte:  true,
	OpLike: true,
}

// QueryFilter narrows a query from request parameters and retains the
// applied criteria for echo. Parameters whose name is not a recognized
// field are dropped silently: stale or malformed query strings degrade
// instead of failing the request.
type QueryFilter struct {
	recognized []string
	criteria   []Criterion
}

func NewQueryFilter(recognized []string) *QueryFilter {
	return &QueryFilter{recognized: recognized}
}

// Apply adds one AND-ed predicate per recognized parameter. Recognized
// fields are walked in declaration order so the echo is deterministic.
func (f *QueryFilter) Apply(q Query, params url.Values) Query {
	for _, field := range f.recognized {
		vals, ok := params[field]
		if !ok || len(vals) == 0 || vals[0] == "" {
			continue
		}
		op, raw := splitFilterValue(vals[0])
		q = q.Where(field, op, typedValue(raw))
		f.criteria = append(f.criteria, Criterion{Field: field, Op: op, Value: raw})
	}
	return q
}

// Criteria returns the applied criteria, never nil, so the envelope always
// carries a filter array.
func (f *QueryFilter) Criteria() []Criterion {
	if f.criteria == nil {
		return []Criterion{}
	}
	return f.criteria
}

// splitFilterValue separates an optional "op." prefix from a filter value.
// A plain value means equality.
func splitFilterValue(v string) (op, raw string) {
	if i := strings.Index(v, "."); i > 0 && filterOps[v[:i]] {
		return v[:i], v[i+1:]
	}
	return OpEq, v
}

// typedValue converts the textual value to int64 or float64 when possible
// so comparisons against numeric columns carry a matching parameter type.
func typedValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if fl, err := strconv.ParseFloat(raw, 64); err == nil {
		return fl
	}
	return raw
}

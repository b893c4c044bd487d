package pgdb

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rangira/stacklens/pkg/tabular"
)

// Source exposes one table or view as a tabular.RowSource.
type Source struct {
	pool  *pgxpool.Pool
	table string
}

func NewSource(pool *pgxpool.Pool, table string) *Source {
	return &Source{pool: pool, table: table}
}

func (s *Source) Select(cols ...tabular.Column) tabular.Query {
	return query{pool: s.pool, table: s.table, cols: cols, limit: -1}
}

// Get fetches one row by primary key. The flat field map is returned as-is;
// single lookups never run through the collection pipeline.
func (s *Source) Get(ctx context.Context, id int64, fields []string) (tabular.Row, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(f))
	}
	fmt.Fprintf(&sb, " FROM %s WHERE %s = $1", quoteIdent(s.table), quoteIdent("id"))

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sb.String(), id)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", s.table, err)
	}
	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, tabular.ErrNotFound
	}
	return out[0], nil
}

type predicate struct {
	field   string
	op      string // SQL operator
	value   any
	notNull bool
}

type order struct {
	expr string
	desc bool
}

var sqlOps = map[string]string{
	tabular.OpEq:   "=",
	tabular.OpNeq:  "!=",
	tabular.OpGt:   ">",
	tabular.OpGte:  ">=",
	tabular.OpLt:   "<",
	tabular.OpLte:  "<=",
	tabular.OpLike: "LIKE",
}

// query is a value type; builder methods copy the receiver and append with
// capacity-clipped slices so derived queries never share backing arrays.
type query struct {
	pool   *pgxpool.Pool
	table  string
	cols   []tabular.Column
	preds  []predicate
	groups []string
	orders []order
	offset int
	limit  int // -1 means no LIMIT/OFFSET clause
}

func (q query) Where(field, op string, value any) tabular.Query {
	sqlOp, ok := sqlOps[op]
	if !ok {
		sqlOp = "="
	}
	q.preds = append(clip(q.preds), predicate{field: field, op: sqlOp, value: value})
	return q
}

func (q query) NotNull(field string) tabular.Query {
	q.preds = append(clip(q.preds), predicate{field: field, notNull: true})
	return q
}

func (q query) GroupBy(expr string) tabular.Query {
	q.groups = append(clip(q.groups), expr)
	return q
}

func (q query) OrderBy(expr string, desc bool) tabular.Query {
	q.orders = append(clip(q.orders), order{expr: expr, desc: desc})
	return q
}

func (q query) Slice(offset, limit int) tabular.Query {
	q.offset = offset
	q.limit = limit
	return q
}

func (q query) Rows(ctx context.Context) ([]tabular.Row, error) {
	sql, args := q.buildSelect()

	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.table, err)
	}
	return collectRows(rows)
}

// Count wraps the unsliced query in a count subquery so grouped views
// count groups, not underlying rows.
func (q query) Count(ctx context.Context) (int64, error) {
	inner := q
	inner.limit = -1
	inner.offset = 0
	innerSQL, args := inner.buildSelect()
	sql := fmt.Sprintf("SELECT count(*) FROM (%s) AS sub", innerSQL)

	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var n int64
	if err := conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.table, err)
	}
	return n, nil
}

func (q query) buildSelect() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(q.cols) == 0 {
		sb.WriteString("*")
	}
	for i, c := range q.cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		if c.Expr == "" {
			sb.WriteString(quoteIdent(c.Name))
		} else {
			fmt.Fprintf(&sb, "%s AS %s", c.Expr, quoteIdent(c.Name))
		}
	}
	fmt.Fprintf(&sb, " FROM %s", quoteIdent(q.table))

	for i, p := range q.preds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		if p.notNull {
			fmt.Fprintf(&sb, "%s IS NOT NULL", quoteIdent(p.field))
			continue
		}
		args = append(args, p.value)
		fmt.Fprintf(&sb, "%s %s $%d", quoteIdent(p.field), p.op, len(args))
	}

	if len(q.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, g := range q.groups {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(identOrExpr(g))
		}
	}

	if len(q.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range q.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			fmt.Fprintf(&sb, "%s %s", identOrExpr(o.expr), dir)
		}
	}

	if q.limit >= 0 {
		args = append(args, q.limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
		args = append(args, q.offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	return sb.String(), args
}

// clip restores len==cap so a subsequent append reallocates instead of
// writing into an array shared with a sibling query.
func clip[S ~[]E, E any](s S) S {
	return s[:len(s):len(s)]
}

var bareIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// identOrExpr quotes bare column names and passes composed expressions
// (function calls, casts) through untouched.
func identOrExpr(s string) string {
	if bareIdentRe.MatchString(s) {
		return quoteIdent(s)
	}
	return s
}

func collectRows(rows pgx.Rows) ([]tabular.Row, error) {
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columnNames := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columnNames[i] = string(fd.Name)
	}

	var result []tabular.Row
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePointers := make([]any, len(columnNames))
		for i := range values {
			valuePointers[i] = &values[i]
		}

		if err := rows.Scan(valuePointers...); err != nil {
			return nil, err
		}

		rowMap := make(tabular.Row, len(columnNames))
		for i, name := range columnNames {
			rowMap[name] = values[i]
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

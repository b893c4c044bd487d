package tabular

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// memSource is an in-memory RowSource so pipeline tests run without a
// database. Grouping is a no-op; aggregate-view tests feed pre-aggregated
// rows and the SQL composition itself is covered in pkg/pgdb.
type memSource struct {
	rows []Row
}

func (s *memSource) Select(cols ...Column) Query {
	return memQuery{rows: s.rows, limit: -1}
}

func (s *memSource) Get(ctx context.Context, id int64, fields []string) (Row, error) {
	for _, row := range s.rows {
		if n, ok := toFloat(row["id"]); ok && n == float64(id) {
			out := make(Row, len(fields))
			for _, f := range fields {
				out[f] = row[f]
			}
			return out, nil
		}
	}
	return nil, ErrNotFound
}

type memPred struct {
	field   string
	op      string
	value   any
	notNull bool
}

type memQuery struct {
	rows    []Row
	preds   []memPred
	orderBy string
	desc    bool
	offset  int
	limit   int
}

func (q memQuery) Where(field, op string, value any) Query {
	q.preds = append(q.preds[:len(q.preds):len(q.preds)], memPred{field: field, op: op, value: value})
	return q
}

func (q memQuery) NotNull(field string) Query {
	q.preds = append(q.preds[:len(q.preds):len(q.preds)], memPred{field: field, notNull: true})
	return q
}

func (q memQuery) GroupBy(expr string) Query { return q }

func (q memQuery) OrderBy(expr string, desc bool) Query {
	q.orderBy = expr
	q.desc = desc
	return q
}

func (q memQuery) Slice(offset, limit int) Query {
	q.offset = offset
	q.limit = limit
	return q
}

func (q memQuery) Count(ctx context.Context) (int64, error) {
	return int64(len(q.apply())), nil
}

func (q memQuery) Rows(ctx context.Context) ([]Row, error) {
	rows := q.apply()
	if q.limit < 0 {
		return rows, nil
	}
	if q.offset >= len(rows) {
		return nil, nil
	}
	end := q.offset + q.limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[q.offset:end], nil
}

func (q memQuery) apply() []Row {
	var out []Row
	for _, row := range q.rows {
		if q.matches(row) {
			out = append(out, row)
		}
	}
	if q.orderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][q.orderBy], out[j][q.orderBy])
			if q.desc {
				return lessValue(out[j][q.orderBy], out[i][q.orderBy])
			}
			return less
		})
	}
	return out
}

func (q memQuery) matches(row Row) bool {
	for _, p := range q.preds {
		v := row[p.field]
		if p.notNull {
			if v == nil {
				return false
			}
			continue
		}
		if !compare(v, p.op, p.value) {
			return false
		}
	}
	return true
}

func compare(v any, op string, want any) bool {
	vf, vok := toFloat(v)
	wf, wok := toFloat(want)
	if vok && wok {
		switch op {
		case OpEq:
			return vf == wf
		case OpNeq:
			return vf != wf
		case OpGt:
			return vf > wf
		case OpGte:
			return vf >= wf
		case OpLt:
			return vf < wf
		case OpLte:
			return vf <= wf
		}
		return false
	}

	vs, ws := fmt.Sprint(v), fmt.Sprint(want)
	switch op {
	case OpEq:
		return vs == ws
	case OpNeq:
		return vs != ws
	case OpLike:
		return strings.Contains(vs, strings.Trim(ws, "%"))
	case OpGt:
		return vs > ws
	case OpGte:
		return vs >= ws
	case OpLt:
		return vs < ws
	case OpLte:
		return vs <= ws
	}
	return false
}

func lessValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

package tabular

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Envelope is the complete response for a collection request: formatted
// rows plus filter and pagination metadata. Entity postprocess overrides
// layer extra keys (location/score templates, timechart flag) on top.
type Envelope struct {
	Rows     []Record
	Filter   []Criterion
	RowCount int64
	PageSize int
	Extra    map[string]any
}

// SetExtra records an entity-specific envelope key.
func (e *Envelope) SetExtra(key string, value any) {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
}

// MarshalJSON writes the envelope with a stable key order: rows, filter,
// row_count, page_size, table, then extras sorted by key. The "table"
// marker is always true; it tells the client this payload renders as a
// tabular view.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	rows := e.Rows
	if rows == nil {
		rows = []Record{}
	}
	filter := e.Filter
	if filter == nil {
		filter = []Criterion{}
	}

	for _, f := range []struct {
		key   string
		value any
	}{
		{"rows", rows},
		{"filter", filter},
		{"row_count", e.RowCount},
		{"page_size", e.PageSize},
		{"table", true},
	} {
		if err := writeField(f.key, f.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeField(k, e.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

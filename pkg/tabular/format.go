package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Postprocessor kinds.
const (
	// LinkOpen renders the field as a link whose visible text is the raw
	// column value and whose target is the expanded URL template.
	LinkOpen = "link_open"
	// LinkReplace renders the visible text from a separate Replace
	// template, so a foreign-key column can display a human-readable name
	// while linking to the referenced id.
	LinkReplace = "link_replace"
)

// Postprocessor renders one field as a hyperlink. URL and Replace are
// mustache-style templates ({{field}}) resolved against the whole row.
type Postprocessor struct {
	Kind    string
	URL     string
	Replace string
}

// Cell is one labeled output value.
type Cell struct {
	Label string
	Value any
}

// Record is an ordered sequence of cells. It marshals as a JSON object
// whose keys keep the declared label order rather than map iteration order.
type Record []Cell

func (rec Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range rec {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(c.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ExpandTemplate substitutes {{field}} placeholders with values from row.
// Fields missing from the row, or null, expand to the empty string; a gap
// in a template is recovered locally, never raised.
func ExpandTemplate(tmpl string, row Row) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		v, ok := row[m[2:len(m)-2]]
		if !ok || v == nil {
			return ""
		}
		return formatValue(v)
	})
}

// formatValue renders a column value for template interpolation. Postgres
// expressions like date_part come back as float64; integral floats render
// without a fractional part so ids stay usable in URLs.
func formatValue(v any) string {
	if f, ok := v.(float64); ok && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(v)
}

// FormatRows renders rows into labeled records, applying per-field link
// postprocessors. Cell order follows the fields/labels pairing, not row
// key order.
func FormatRows(rows []Row, fields, labels []string, post map[string]Postprocessor) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, 0, len(fields))
		for i, field := range fields {
			rec = append(rec, Cell{Label: labels[i], Value: renderField(row, field, post)})
		}
		records = append(records, rec)
	}
	return records
}

func renderField(row Row, field string, post map[string]Postprocessor) any {
	v := row[field]
	pp, ok := post[field]
	if !ok {
		return v
	}

	href := ExpandTemplate(pp.URL, row)
	var text string
	if pp.Kind == LinkReplace {
		text = ExpandTemplate(pp.Replace, row)
	} else if v != nil {
		text = formatValue(v)
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, href, text)
}

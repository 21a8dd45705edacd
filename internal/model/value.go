package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ValueKind discriminates the Value sum type.
type ValueKind int

// Value kinds.
const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
)

// Value is a single table cell.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Row is an ordered sequence of cells aligned to a header row by position.
type Row []Value

// Table pairs a header row with data rows. Rows are not required to be rectangular.
type Table struct {
	Headers Row
	Rows    []Row
}

// StringValue wraps s as a string cell.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// NumberValue wraps n as a numeric cell.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// ParseValue converts raw cell text. Blank text is empty, numeric text is a number.
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Value{}
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return NumberValue(n)
	}
	return StringValue(raw)
}

// IsEmpty reports whether the cell holds nothing.
func (v Value) IsEmpty() bool {
	return v.Kind == KindEmpty
}

// String renders the cell as text.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON encodes empty cells as null, numbers as numbers and strings as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, strings and numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Value{}
	case float64:
		*v = NumberValue(t)
	case string:
		*v = StringValue(t)
	case bool:
		*v = StringValue(strconv.FormatBool(t))
	default:
		*v = StringValue(string(data))
	}
	return nil
}

// Strings renders every cell of the row as text.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

// Clone copies the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return append(Row(nil), r...)
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Clone deep-copies the table.
func (t Table) Clone() Table {
	return Table{Headers: t.Headers.Clone(), Rows: cloneRows(t.Rows)}
}

// Records converts rows into header-keyed maps. Cells beyond the header row are dropped
// and missing cells become empty.
func (t Table) Records() []map[string]Value {
	names := t.Headers.Strings()
	out := make([]map[string]Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]Value, len(names))
		for i, name := range names {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = Value{}
			}
		}
		out = append(out, rec)
	}
	return out
}

// StringRows renders every row as text.
func (t Table) StringRows() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Strings()
	}
	return out
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

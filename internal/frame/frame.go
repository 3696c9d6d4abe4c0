package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/datasetagg/internal/domain/aggregates"
)

// Row maps column names to cell values.
type Row map[string]any

// Frame is an ordered set of named columns over positionally ordered rows.
// Every row holds a value (possibly nil) for every column.
type Frame struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// Series is a named column vector aligned with the rows of a frame.
type Series struct {
	Name   string
	Values []any
}

func NewSeries(name string, values ...any) Series {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return Series{Name: name, Values: out}
}

func (s Series) Len() int { return len(s.Values) }

// New builds a frame from a column list and rows. Rows may omit columns (the
// value is nil) but may not carry columns that are not declared.
func New(columns []string, rows []Row) (*Frame, error) {
	f, err := empty(columns)
	if err != nil {
		return nil, err
	}
	f.rows = make([]Row, 0, len(rows))
	for i, r := range rows {
		for k := range r {
			if _, ok := f.index[k]; !ok {
				return nil, aggregates.Errorf(aggregates.CodeValidation, "frame.new", "row %d has undeclared column %q", i, k)
			}
		}
		f.rows = append(f.rows, f.fill(r))
	}
	return f, nil
}

// MustNew is New that panics on error, for literals in tests and fixtures.
func MustNew(columns []string, rows ...Row) *Frame {
	f, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return f
}

// Empty returns a frame with the given columns and no rows.
func Empty(columns ...string) *Frame {
	f, err := empty(columns)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords infers the column list from the records. Columns appear in
// first-seen order; keys within a single record are taken in sorted order.
func FromRecords(records []map[string]any) *Frame {
	var cols []string
	seen := map[string]struct{}{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row(rec)
	}
	return MustNew(cols, rows...)
}

// FromSeries lays out equally long series as columns.
func FromSeries(series ...Series) (*Frame, error) {
	cols := make([]string, len(series))
	n := -1
	for i, s := range series {
		cols[i] = s.Name
		if n >= 0 && s.Len() != n {
			return nil, aggregates.Errorf(aggregates.CodeValidation, "frame.from_series", "series %q has %d values, want %d", s.Name, s.Len(), n)
		}
		n = s.Len()
	}
	if n < 0 {
		n = 0
	}
	rows := make([]Row, n)
	for i := range rows {
		r := make(Row, len(series))
		for _, s := range series {
			r[s.Name] = s.Values[i]
		}
		rows[i] = r
	}
	return New(cols, rows)
}

func empty(columns []string) (*Frame, error) {
	f := &Frame{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return nil, aggregates.NewError(aggregates.CodeValidation, "frame.new", "empty column name", nil)
		}
		if _, dup := f.index[c]; dup {
			return nil, aggregates.Errorf(aggregates.CodeValidation, "frame.new", "duplicate column %q", c)
		}
		f.index[c] = len(f.columns)
		f.columns = append(f.columns, c)
	}
	return f, nil
}

func (f *Frame) fill(r Row) Row {
	out := make(Row, len(f.columns))
	for _, c := range f.columns {
		out[c] = Normalize(r[c])
	}
	return out
}

func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.columns...)
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rows)
}

func (f *Frame) HasColumn(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.index[name]
	return ok
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) Row {
	out := make(Row, len(f.columns))
	for k, v := range f.rows[i] {
		out[k] = v
	}
	return out
}

// Rows returns copies of all rows.
func (f *Frame) Rows() []Row {
	out := make([]Row, f.Len())
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

func (f *Frame) Value(i int, column string) any {
	return f.rows[i][column]
}

func (f *Frame) Series(column string) (Series, error) {
	if !f.HasColumn(column) {
		return Series{}, aggregates.Errorf(aggregates.CodeValidation, "frame.series", "unknown column %q", column)
	}
	vals := make([]any, len(f.rows))
	for i, r := range f.rows {
		vals[i] = r[column]
	}
	return Series{Name: column, Values: vals}, nil
}

// Select keeps the named columns in the given order.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	for _, c := range columns {
		if !f.HasColumn(c) {
			return nil, aggregates.Errorf(aggregates.CodeValidation, "frame.select", "unknown column %q", c)
		}
	}
	return New(columns, f.project(columns))
}

// Drop removes the named columns; names that are absent are ignored.
func (f *Frame) Drop(columns ...string) *Frame {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	keep := make([]string, 0, len(f.columns))
	for _, c := range f.columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	return MustNew(keep, f.project(keep)...)
}

func (f *Frame) project(columns []string) []Row {
	rows := make([]Row, len(f.rows))
	for i, r := range f.rows {
		nr := make(Row, len(columns))
		for _, c := range columns {
			nr[c] = r[c]
		}
		rows[i] = nr
	}
	return rows
}

// WithColumn sets column name to value on every row. An existing column keeps
// its position; a new one is appended.
func (f *Frame) WithColumn(name string, value any) *Frame {
	cols := f.Columns()
	if !f.HasColumn(name) {
		cols = append(cols, name)
	}
	value = Normalize(value)
	rows := f.Rows()
	for _, r := range rows {
		r[name] = value
	}
	return MustNew(cols, rows...)
}

// Filter keeps rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	rows := make([]Row, 0, len(f.rows))
	for i := range f.rows {
		r := f.Row(i)
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return MustNew(f.columns, rows...)
}

// Concat stacks frames vertically. The column list is the union in first-seen
// order; rows get nil for columns their frame lacks. Nil frames are skipped.
func Concat(frames ...*Frame) *Frame {
	var cols []string
	seen := map[string]struct{}{}
	total := 0
	for _, f := range frames {
		if f == nil {
			continue
		}
		total += f.Len()
		for _, c := range f.columns {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cols = append(cols, c)
			}
		}
	}
	rows := make([]Row, 0, total)
	for _, f := range frames {
		if f == nil {
			continue
		}
		rows = append(rows, f.Rows()...)
	}
	return MustNew(cols, rows...)
}

// Equal reports whether a and b have the same columns in the same order and
// equal values row by row.
func Equal(a, b *Frame) bool {
	if a.Len() != b.Len() {
		return false
	}
	ac, bc := a.Columns(), b.Columns()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	for i := 0; i < a.Len(); i++ {
		for _, c := range ac {
			if !ValuesEqual(a.rows[i][c], b.rows[i][c]) {
				return false
			}
		}
	}
	return true
}

// GroupKey encodes the values of columns in r as a canonical string. Numbers
// that compare equal produce the same key: integers and integral floats share
// an exact integer form, other floats use their shortest representation.
func GroupKey(r Row, columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v := Normalize(r[c])
		if n, ok := ExactInt(v); ok {
			b.WriteString("i:")
			b.WriteString(strconv.FormatInt(n, 10))
			continue
		}
		switch t := v.(type) {
		case nil:
			b.WriteString("n:")
		case float64:
			b.WriteString("f:")
			b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		case string:
			b.WriteString("s:")
			b.WriteString(t)
		case bool:
			b.WriteString("b:")
			b.WriteString(fmt.Sprint(t))
		default:
			raw, _ := json.Marshal(t)
			b.WriteString("j:")
			b.Write(raw)
		}
	}
	return b.String()
}

func (f *Frame) String() string {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("frame(%d cols, %d rows)", len(f.columns), len(f.rows))
	}
	return string(raw)
}

type wireFrame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MarshalJSON encodes the frame as {"columns": [...], "rows": [[...], ...]}.
func (f *Frame) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	w := wireFrame{Columns: f.Columns(), Rows: make([][]any, f.Len())}
	if w.Columns == nil {
		w.Columns = []string{}
	}
	for i, r := range f.rows {
		vals := make([]any, len(f.columns))
		for j, c := range f.columns {
			vals[j] = r[c]
		}
		w.Rows[i] = vals
	}
	return json.Marshal(w)
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var w wireFrame
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	rows := make([]Row, len(w.Rows))
	for i, vals := range w.Rows {
		if len(vals) != len(w.Columns) {
			return fmt.Errorf("frame: row %d has %d values, want %d", i, len(vals), len(w.Columns))
		}
		r := make(Row, len(vals))
		for j, v := range vals {
			r[w.Columns[j]] = v
		}
		rows[i] = r
	}
	nf, err := New(w.Columns, rows)
	if err != nil {
		return err
	}
	*f = *nf
	return nil
}

// EncodeRow serialises the given columns of r as a JSON object. Integral
// floats keep a fractional part so DecodeRow restores them as float64; NaN
// and infinities are written as null.
func EncodeRow(r Row, columns []string) ([]byte, error) {
	obj := make(map[string]any, len(columns))
	for _, c := range columns {
		obj[c] = encodeCell(r[c])
	}
	return json.Marshal(obj)
}

func encodeCell(v any) any {
	f, ok := Normalize(v).(float64)
	if !ok {
		return v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// DecodeRow parses a JSON object produced by EncodeRow, keeping integers integral.
func DecodeRow(data []byte) (Row, error) {
	out := Row{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		out[k] = Normalize(v)
	}
	return out, nil
}

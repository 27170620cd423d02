package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrEmptyInput is returned when the input has no non-empty lines.
var ErrEmptyInput = errors.New("empty input: no rows to parse")

// Kind discriminates the value held by a Cell.
type Kind int

const (
	KindText Kind = iota
	KindNumber
)

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "text"
}

// Cell is a single typed value: either a finite float64 or a string.
type Cell struct {
	Kind Kind
	Num  float64
	Text string
}

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{Kind: KindNumber, Num: f} }

// Text returns a string cell.
func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }

// Float returns the numeric value and true when the cell is a number.
func (c Cell) Float() (float64, bool) {
	if c.Kind != KindNumber {
		return 0, false
	}
	return c.Num, true
}

// String renders the cell the way it would appear in a CSV field.
func (c Cell) String() string {
	if c.Kind == KindNumber {
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	}
	return c.Text
}

// Row holds cells aligned with the owning dataset's columns.
type Row struct {
	cells   []Cell
	columns []string
	index   map[string]int
}

// Get returns the cell stored under the column name.
func (r Row) Get(name string) (Cell, bool) {
	i, ok := r.index[name]
	if !ok || i >= len(r.cells) {
		return Cell{}, false
	}
	return r.cells[i], true
}

// Cells returns the row cells in column order.
func (r Row) Cells() []Cell { return r.cells }

// Len returns the number of cells.
func (r Row) Len() int { return len(r.cells) }

// MarshalJSON encodes the row as an object keyed by column name, in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	n := 0
	for i, name := range r.columns {
		// duplicate header names keep their first column only
		if r.index[name] != i || i >= len(r.cells) {
			continue
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		c := r.cells[i]
		var val []byte
		if c.Kind == KindNumber {
			val, err = json.Marshal(c.Num)
		} else {
			val, err = json.Marshal(c.Text)
		}
		if err != nil {
			return nil, err
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
		n++
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Dataset is an ordered set of rows sharing one column list.
type Dataset struct {
	Columns []string
	Rows    []Row
	index   map[string]int
}

// New builds a dataset from a header and typed cells. Short rows are padded with
// empty text cells and long rows are truncated to the header width.
func New(columns []string, rows [][]Cell) *Dataset {
	ds := &Dataset{Columns: append([]string(nil), columns...), index: make(map[string]int, len(columns))}
	for i, c := range ds.Columns {
		// first occurrence wins on duplicate header names
		if _, dup := ds.index[c]; !dup {
			ds.index[c] = i
		}
	}
	ds.Rows = make([]Row, 0, len(rows))
	for _, cells := range rows {
		ds.Rows = append(ds.Rows, ds.newRow(cells))
	}
	return ds
}

func (ds *Dataset) newRow(cells []Cell) Row {
	out := make([]Cell, len(ds.Columns))
	for i := range out {
		if i < len(cells) {
			out[i] = cells[i]
		} else {
			out[i] = Text("")
		}
	}
	return Row{cells: out, columns: ds.Columns, index: ds.index}
}

// Len returns the number of data rows.
func (ds *Dataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Rows)
}

// HasColumn reports whether the column exists.
func (ds *Dataset) HasColumn(name string) bool {
	_, ok := ds.index[name]
	return ok
}

// ColumnIndex returns the position of a column or -1.
func (ds *Dataset) ColumnIndex(name string) int {
	if i, ok := ds.index[name]; ok {
		return i
	}
	return -1
}

// IsNumeric reports whether every row holds a number for the column.
// A dataset without rows has no numeric columns.
func (ds *Dataset) IsNumeric(name string) bool {
	i, ok := ds.index[name]
	if !ok || len(ds.Rows) == 0 {
		return false
	}
	for _, r := range ds.Rows {
		if r.cells[i].Kind != KindNumber {
			return false
		}
	}
	return true
}

// NumericColumns returns the numeric columns in header order.
func (ds *Dataset) NumericColumns() []string {
	if ds == nil {
		return nil
	}
	var out []string
	for i, c := range ds.Columns {
		if ds.index[c] != i {
			continue
		}
		if ds.IsNumeric(c) {
			out = append(out, c)
		}
	}
	return out
}

// Floats returns the values of a numeric column.
func (ds *Dataset) Floats(name string) ([]float64, bool) {
	if !ds.IsNumeric(name) {
		return nil, false
	}
	i := ds.index[name]
	out := make([]float64, len(ds.Rows))
	for j, r := range ds.Rows {
		out[j] = r.cells[i].Num
	}
	return out, true
}

// Strings returns the values of any column rendered as text.
func (ds *Dataset) Strings(name string) ([]string, bool) {
	i, ok := ds.index[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(ds.Rows))
	for j, r := range ds.Rows {
		out[j] = r.cells[i].String()
	}
	return out, true
}

// IDColumn returns the first column that looks like a row label (contains
// "id", "blend" or "sample"), or "" when none does.
func (ds *Dataset) IDColumn() string {
	if ds == nil {
		return ""
	}
	for _, c := range ds.Columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "id") || strings.Contains(lc, "blend") || strings.Contains(lc, "sample") {
			return c
		}
	}
	return ""
}

// Parse turns CSV text into a Dataset. Lines are split on '\n' and blank lines are
// dropped; the first remaining line is the header. Fields are split on ',' only,
// trimmed and stripped of double quotes. This is not an RFC 4180 parser: quoted
// commas still split fields.
func Parse(text string) (*Dataset, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}
	header := splitFields(lines[0])
	rows := make([][]Cell, 0, len(lines)-1)
	for _, l := range lines[1:] {
		fields := splitFields(l)
		cells := make([]Cell, len(header))
		for i := range header {
			v := ""
			if i < len(fields) {
				v = fields[i]
			}
			cells[i] = coerce(v)
		}
		rows = append(rows, cells)
	}
	return New(header, rows), nil
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (*Dataset, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return Parse(string(b))
}

// ParseFile reads and parses a CSV file.
func ParseFile(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ds, err := Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ds, nil
}

func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = cleanField(p)
	}
	return parts
}

func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(s), `"`, ""))
}

// coerce parses a locale-independent decimal; non-finite or unparsable values stay text.
// Underscore separators and hex floats are not decimals.
func coerce(s string) Cell {
	if s == "" || strings.ContainsAny(s, "_xX") {
		return Text(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Text(s)
	}
	return Number(f)
}

// WriteCSV serializes the dataset with a header line, one line per row.
func (ds *Dataset) WriteCSV(w io.Writer) error {
	var b strings.Builder
	b.WriteString(strings.Join(ds.Columns, ","))
	b.WriteString("\n")
	for _, r := range ds.Rows {
		for i, c := range r.cells {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(c.String())
		}
		b.WriteString("\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

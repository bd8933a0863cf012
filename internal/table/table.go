// Package table holds an in-memory tabular dataset loaded from delimited text.
// No schema is enforced beyond named columns; cell types are inferred from content.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CellKind identifies the inferred type of a single cell.
type CellKind int

const (
	// KindNull marks a cell with no value (e.g. an unmatched join attribute).
	KindNull CellKind = iota
	// KindString is the default for any textual value.
	KindString
	// KindNumber is set when a whole column parses as numeric.
	KindNumber
	// KindDate is set by explicit date normalization of known columns.
	KindDate
)

// Cell is one typed value in a table.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Date   time.Time
}

// String renders the cell the way it is written back to CSV.
func (c Cell) String() string {
	switch c.Kind {
	case KindNull:
		return ""
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindDate:
		return c.Date.Format("2006-01-02")
	default:
		return c.Text
	}
}

// IsNull reports whether the cell carries no value.
func (c Cell) IsNull() bool {
	return c.Kind == KindNull
}

// StringCell builds a textual cell.
func StringCell(s string) Cell {
	return Cell{Kind: KindString, Text: s}
}

// NumberCell builds a numeric cell, keeping the original text for rendering.
func NumberCell(v float64, text string) Cell {
	return Cell{Kind: KindNumber, Number: v, Text: text}
}

// DateCell builds a date cell.
func DateCell(t time.Time) Cell {
	return Cell{Kind: KindDate, Date: t}
}

// NullCell builds an empty cell.
func NullCell() Cell {
	return Cell{Kind: KindNull}
}

// Table is a rectangular dataset with named, ordered columns.
type Table struct {
	Headers []string
	Rows    [][]Cell
}

// ReadCSV parses comma-separated text with a header row into a Table.
// All cells start as strings; numeric columns are converted afterwards so that
// a single non-numeric value keeps the whole column textual.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("table.ReadCSV: reading delimited text: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table.ReadCSV: input has no header row")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	t := &Table{
		Headers: headers,
		Rows:    make([][]Cell, 0, len(records)-1),
	}

	for _, record := range records[1:] {
		row := make([]Cell, len(headers))
		for i := range headers {
			if i < len(record) {
				row[i] = StringCell(strings.TrimSpace(record[i]))
			} else {
				row[i] = NullCell()
			}
		}
		t.Rows = append(t.Rows, row)
	}

	t.inferNumericColumns()
	return t, nil
}

// inferNumericColumns converts every column whose non-empty cells all parse as
// numbers. Both dot and comma decimal separators are accepted, since the input
// files use comma-decimal formatting.
func (t *Table) inferNumericColumns() {
	for col := range t.Headers {
		numeric := false
		for _, row := range t.Rows {
			cell := row[col]
			if cell.Kind != KindString || cell.Text == "" {
				continue
			}
			if _, err := parseNumber(cell.Text); err != nil {
				numeric = false
				break
			}
			numeric = true
		}
		if !numeric {
			continue
		}
		for _, row := range t.Rows {
			cell := row[col]
			if cell.Kind != KindString || cell.Text == "" {
				continue
			}
			v, _ := parseNumber(cell.Text)
			row[col] = NumberCell(v, cell.Text)
		}
	}
}

// parseNumber parses a numeric literal with either decimal separator.
func parseNumber(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	normalized := strings.Replace(s, ",", ".", 1)
	if strings.Count(normalized, ".") > 1 {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return strconv.ParseFloat(normalized, 64)
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.Headers)
}

// ColumnIndex returns the position of a column by exact name match.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Headers {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether a column with the exact name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// Cell returns the cell at the given row for the named column.
func (t *Table) Cell(row int, name string) (Cell, bool) {
	idx, ok := t.ColumnIndex(name)
	if !ok || row < 0 || row >= len(t.Rows) {
		return Cell{}, false
	}
	return t.Rows[row][idx], true
}

// Head returns a copy of the table limited to the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	head := &Table{
		Headers: append([]string(nil), t.Headers...),
		Rows:    make([][]Cell, n),
	}
	for i := 0; i < n; i++ {
		head.Rows[i] = append([]Cell(nil), t.Rows[i]...)
	}
	return head
}

// WriteCSV renders the table back to comma-separated text, header row first.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("table.WriteCSV: writing header: %w", err)
	}

	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = cell.String()
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("table.WriteCSV: writing row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// CSVString renders the table to a string, used when embedding it in prompts.
func (t *Table) CSVString() (string, error) {
	var b strings.Builder
	if err := t.WriteCSV(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

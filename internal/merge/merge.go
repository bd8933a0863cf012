// Package merge produces a single analyzable table from two related raw tables:
// an invoice-header dataset and an invoice-items dataset joined on a shared key.
package merge

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fiscaldata/invoice-agent/internal/table"
)

// Default column configuration for the fiscal-note datasets.
var (
	// DefaultKeyCandidates are the join-key column names, in priority order.
	DefaultKeyCandidates = []string{"NÚMERO"}

	// DefaultDateColumns are the header-table columns normalized to dates.
	DefaultDateColumns = []string{"DataEmissao", "DataEntrada"}
)

// dateLayouts are tried in order when normalizing a recognized date column.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// headerSuffix disambiguates header-side columns whose name already exists on
// the items side.
const headerSuffix = "_cab"

// Options configures key discovery and date normalization. The zero value uses
// the package defaults.
type Options struct {
	// KeyCandidates is the ordered list of plausible join-key column names.
	// The first name present in both tables wins.
	KeyCandidates []string

	// DateColumns are header-table columns converted to date values when present.
	DateColumns []string
}

func (o Options) withDefaults() Options {
	if len(o.KeyCandidates) == 0 {
		o.KeyCandidates = DefaultKeyCandidates
	}
	if o.DateColumns == nil {
		o.DateColumns = DefaultDateColumns
	}
	return o
}

// Result is the outcome of a successful merge.
type Result struct {
	// Table is the left join of items onto headers: one row per item row
	// (duplicated per header match if header keys repeat), annotated with the
	// invoice's header attributes.
	Table *table.Table

	// JoinKey is the discovered key column name.
	JoinKey string
}

// LoadError reports malformed input: unparseable delimited text, or a
// recognized date column whose values do not parse. The underlying cause is
// preserved and must be reported to the user verbatim.
type LoadError struct {
	Source string // "header" or "items"
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s table: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NoJoinKeyError reports that no candidate column exists in both tables. This
// is a user-correctable data-format problem, so the message names the expected
// columns.
type NoJoinKeyError struct {
	Candidates []string
}

func (e *NoJoinKeyError) Error() string {
	return fmt.Sprintf(
		"no shared join-key column found: both files must carry one of %s (exact name match)",
		strings.Join(e.Candidates, ", "),
	)
}

// Merge parses both sources, discovers the join key, normalizes known date
// columns in the header table, and left-joins items onto headers. It either
// fully succeeds or fails; no partial table is ever returned.
func Merge(headerSrc, itemsSrc io.Reader, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	headers, err := table.ReadCSV(headerSrc)
	if err != nil {
		return nil, &LoadError{Source: "header", Err: err}
	}
	items, err := table.ReadCSV(itemsSrc)
	if err != nil {
		return nil, &LoadError{Source: "items", Err: err}
	}

	joinKey := ""
	for _, candidate := range opts.KeyCandidates {
		if headers.HasColumn(candidate) && items.HasColumn(candidate) {
			joinKey = candidate
			break
		}
	}
	if joinKey == "" {
		return nil, &NoJoinKeyError{Candidates: opts.KeyCandidates}
	}

	if err := normalizeDates(headers, opts.DateColumns); err != nil {
		return nil, &LoadError{Source: "header", Err: err}
	}

	merged := leftJoin(items, headers, joinKey)
	return &Result{Table: merged, JoinKey: joinKey}, nil
}

// normalizeDates converts each present date column to date cells. Parsing is
// strict: a single malformed value fails the whole merge rather than being
// silently coerced to null.
func normalizeDates(t *table.Table, columns []string) error {
	for _, name := range columns {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			continue
		}
		for rowNum, row := range t.Rows {
			cell := row[idx]
			if cell.IsNull() || cell.String() == "" {
				continue
			}
			parsed, err := parseDate(cell.String())
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", name, rowNum+1, err)
			}
			row[idx] = table.DateCell(parsed)
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date value %q", s)
}

// leftJoin joins headers onto items with items as the base side. Every item
// row appears in the output; an item whose key has no header match carries
// null header attributes. Duplicate header keys duplicate the item row per
// match, standard join semantics.
func leftJoin(items, headers *table.Table, joinKey string) *table.Table {
	itemsKeyIdx, _ := items.ColumnIndex(joinKey)
	headersKeyIdx, _ := headers.ColumnIndex(joinKey)

	// Header columns attached to each item row, join key excluded.
	attachedIdx := make([]int, 0, headers.NumCols()-1)
	attachedNames := make([]string, 0, headers.NumCols()-1)
	for i, name := range headers.Headers {
		if i == headersKeyIdx {
			continue
		}
		if items.HasColumn(name) {
			name += headerSuffix
		}
		attachedIdx = append(attachedIdx, i)
		attachedNames = append(attachedNames, name)
	}

	index := make(map[string][]int, headers.NumRows())
	for i, row := range headers.Rows {
		key := row[headersKeyIdx].String()
		index[key] = append(index[key], i)
	}

	merged := &table.Table{
		Headers: append(append([]string(nil), items.Headers...), attachedNames...),
		Rows:    make([][]table.Cell, 0, items.NumRows()),
	}

	for _, itemRow := range items.Rows {
		key := itemRow[itemsKeyIdx].String()
		matches := index[key]

		if len(matches) == 0 {
			out := append([]table.Cell(nil), itemRow...)
			for range attachedIdx {
				out = append(out, table.NullCell())
			}
			merged.Rows = append(merged.Rows, out)
			continue
		}

		for _, headerRowNum := range matches {
			headerRow := headers.Rows[headerRowNum]
			out := append([]table.Cell(nil), itemRow...)
			for _, idx := range attachedIdx {
				out = append(out, headerRow[idx])
			}
			merged.Rows = append(merged.Rows, out)
		}
	}

	return merged
}

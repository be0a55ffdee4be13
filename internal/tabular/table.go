// Package tabular holds the in-memory table produced from a dataset archive.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Table is a header plus string rows, as delivered in a CSV file.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, or -1. Column names are
// matched case-insensitively.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the named column of row i, or "" if the column is absent.
func (t *Table) Value(i int, column string) string {
	idx := t.Index(column)
	if idx < 0 || idx >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][idx]
}

// Append concatenates other below t. The first non-empty table defines the
// columns; rows of later tables are realigned by column name and columns
// t does not know about are dropped.
func (t *Table) Append(other *Table) {
	if other == nil || len(other.Columns) == 0 {
		return
	}
	if len(t.Columns) == 0 {
		t.Columns = slices.Clone(other.Columns)
		t.Rows = append(t.Rows, other.Rows...)
		return
	}
	if slices.Equal(t.Columns, other.Columns) {
		t.Rows = append(t.Rows, other.Rows...)
		return
	}

	mapping := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		mapping[i] = other.Index(c)
	}
	for _, row := range other.Rows {
		aligned := make([]string, len(t.Columns))
		for i, src := range mapping {
			if src >= 0 && src < len(row) {
				aligned[i] = row[src]
			}
		}
		t.Rows = append(t.Rows, aligned)
	}
}

// Filter returns a table with the rows whose column equals one of values.
// An unknown column yields an empty table with the same header.
func (t *Table) Filter(column string, values ...string) *Table {
	out := &Table{Columns: slices.Clone(t.Columns)}
	idx := t.Index(column)
	if idx < 0 {
		return out
	}
	for _, row := range t.Rows {
		if idx < len(row) && slices.Contains(values, row[idx]) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// ReadCSV parses a CSV stream whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &Table{Columns: header, Rows: records[1:]}, nil
}

// WriteCSV writes the header and rows of t.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

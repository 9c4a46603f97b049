// Package model holds the shared data types of an analysis run: raw table
// rows, coordinates, counters and the status narrative.
package model

import "strings"

// Record is one row of the source table. Values are keyed by the header
// exactly as it appeared in the file; there is no fixed schema.
type Record struct {
	Index  int               `json:"index"`
	Values map[string]string `json:"values"`
}

// Get returns the raw value of the named column, or "" if absent.
func (r Record) Get(column string) string {
	if column == "" || r.Values == nil {
		return ""
	}
	return r.Values[column]
}

// Has reports whether the record carries a non-blank value for column.
func (r Record) Has(column string) bool {
	return strings.TrimSpace(r.Get(column)) != ""
}

// Table is a loaded registry export. All values are text.
type Table struct {
	Source    string   `json:"source"`
	Delimiter rune     `json:"-"`
	Headers   []string `json:"headers"`
	Rows      []Record `json:"rows"`
}

// NewTable builds a table from a header row and positional data rows.
// Short rows are padded with empty strings and extra cells are dropped.
func NewTable(source string, headers []string, rows [][]string) *Table {
	t := &Table{
		Source:  source,
		Headers: headers,
		Rows:    make([]Record, 0, len(rows)),
	}
	for _, row := range rows {
		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				values[h] = row[i]
			} else {
				values[h] = ""
			}
		}
		t.Rows = append(t.Rows, Record{Index: len(t.Rows), Values: values})
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// WithRows returns a shallow copy of t carrying only the given rows.
// Record indexes are renumbered so they stay positional within the subset.
func (t *Table) WithRows(rows []Record) *Table {
	out := &Table{
		Source:    t.Source,
		Delimiter: t.Delimiter,
		Headers:   t.Headers,
		Rows:      make([]Record, len(rows)),
	}
	for i, r := range rows {
		r.Index = i
		out.Rows[i] = r
	}
	return out
}

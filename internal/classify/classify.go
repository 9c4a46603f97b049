// Package classify selects bookstore rows from a registry table by business
// classification code and taxpayer status.
package classify

import (
	"slices"
	"sort"
	"strings"

	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/schema"
)

// Code is one CIIU classification code.
type Code struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// BookstoreCodes are the CIIU codes that identify book retail and wholesale.
var BookstoreCodes = []Code{
	{"464993", "Venta al por mayor de material de papelería, libros, revistas, periódicos"},
	{"G4761", "Venta al por menor de libros, periódicos y artículos de papelería"},
	{"G47610", "Venta al por menor de libros, periódicos y artículos de papelería en comercios especializados"},
	{"G476101", "Venta al por menor de libros de todo tipo en establecimientos especializados"},
	{"G477401", "Venta al por menor de libros de segunda mano en establecimientos especializados"},
}

// DefaultActiveMarkers are the status values treated as active.
var DefaultActiveMarkers = []string{"ACTIVO", "ACTIVE"}

// Filter holds the codes and status markers a row must satisfy.
type Filter struct {
	Codes         []string
	ActiveMarkers []string
}

// NewFilter builds a Filter. Empty arguments fall back to the bookstore
// codes and default markers.
func NewFilter(codes, activeMarkers []string) *Filter {
	if len(codes) == 0 {
		for _, c := range BookstoreCodes {
			codes = append(codes, c.Code)
		}
	}
	if len(activeMarkers) == 0 {
		activeMarkers = DefaultActiveMarkers
	}
	markers := make([]string, len(activeMarkers))
	for i, m := range activeMarkers {
		markers[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	return &Filter{Codes: codes, ActiveMarkers: markers}
}

// Result is the outcome of filtering one table.
type Result struct {
	Table                *model.Table
	ClassificationColumn string
	StatusColumn         string
	Matched              int            // rows matching a code
	Active               int            // of those, rows with an active status
	CodeCounts           map[string]int // matched rows per first matching code
	// Fallback is set when the unfiltered table was returned.
	Fallback bool
	Warnings []string
}

// Apply filters tbl. It never returns an empty table without a warning
// explaining why.
func (f *Filter) Apply(tbl *model.Table) Result {
	res := Result{Table: tbl, CodeCounts: map[string]int{}}

	col, ok := schema.Detect(tbl.Headers, schema.FieldClassification)
	if !ok {
		res.Fallback = true
		res.Warnings = append(res.Warnings, "no classification (CIIU) column found; showing all records")
		return res
	}
	res.ClassificationColumn = col

	var matched []model.Record
	for _, rec := range tbl.Rows {
		if code, ok := f.matchCode(rec.Get(col)); ok {
			matched = append(matched, rec)
			res.CodeCounts[code]++
		}
	}
	res.Matched = len(matched)

	if len(matched) == 0 {
		res.Fallback = true
		res.Warnings = append(res.Warnings, "no records with bookstore classification codes; showing all records")
		return res
	}

	status, ok := schema.Detect(tbl.Headers, schema.FieldStatus)
	if !ok {
		res.Active = len(matched)
		res.Table = tbl.WithRows(matched)
		res.Warnings = append(res.Warnings, "no taxpayer status column found; active filter not applied")
		return res
	}
	res.StatusColumn = status

	active := matched[:0:0]
	for _, rec := range matched {
		if f.isActive(rec.Get(status)) {
			active = append(active, rec)
		}
	}
	res.Active = len(active)
	res.Table = tbl.WithRows(active)
	if len(active) == 0 {
		res.Warnings = append(res.Warnings, "no active records among the bookstore matches")
	}
	return res
}

// matchCode reports the most specific (longest) configured code contained in
// value, so "G476101" counts as G476101 rather than its prefix G4761.
func (f *Filter) matchCode(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	best := ""
	for _, c := range f.Codes {
		if c != "" && len(c) > len(best) && strings.Contains(value, c) {
			best = c
		}
	}
	return best, best != ""
}

func (f *Filter) isActive(value string) bool {
	return slices.Contains(f.ActiveMarkers, strings.ToUpper(strings.TrimSpace(value)))
}

// Describe returns the description for a known code, or "".
func Describe(code string) string {
	for _, c := range BookstoreCodes {
		if c.Code == code {
			return c.Description
		}
	}
	return ""
}

// SortedCounts returns code counts ordered by descending count, then code.
func (r Result) SortedCounts() []CodeCount {
	out := make([]CodeCount, 0, len(r.CodeCounts))
	for code, n := range r.CodeCounts {
		out = append(out, CodeCount{Code: code, Description: Describe(code), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// CodeCount is one row of the per-code summary.
type CodeCount struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/bookmap/internal/classify"
	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/province"
	"github.com/sells-group/bookmap/internal/render"
	"github.com/sells-group/bookmap/internal/resolve"
	"github.com/sells-group/bookmap/internal/schema"
	"github.com/sells-group/bookmap/pkg/geocode"
)

// Report is the JSON summary of one run, written as report.json.
type Report struct {
	RunID     string             `json:"run_id"`
	Source    string             `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
	Loaded    int                `json:"loaded"`
	Province  province.Detection `json:"province"`
	Filter    FilterSummary      `json:"filter"`
	Prefilter PrefilterSummary   `json:"prefilter"`
	Boundary  string             `json:"boundary,omitempty"`
	TopParish *ParishCount       `json:"top_parish,omitempty"`

	Counters        model.Counters            `json:"counters"`
	PlacedByStage   map[resolve.Stage]int     `json:"placed_by_stage"`
	ExcludedByStage map[resolve.Stage]int     `json:"excluded_by_stage"`
	Containment     resolve.ContainmentMethod `json:"containment"`
	Prepass         resolve.PrepassStats      `json:"prepass"`
	Geocode         *geocode.ResolverStats    `json:"geocode,omitempty"`

	Narrative  []model.Message `json:"narrative"`
	Phases     []Phase         `json:"phases"`
	Files      *render.Files   `json:"files,omitempty"`
	ReportFile string          `json:"-"`
}

// FilterSummary describes what the classification filter did.
type FilterSummary struct {
	ClassificationColumn string               `json:"classification_column,omitempty"`
	StatusColumn         string               `json:"status_column,omitempty"`
	Matched              int                  `json:"matched"`
	Active               int                  `json:"active"`
	Fallback             bool                 `json:"fallback"`
	Codes                []classify.CodeCount `json:"codes,omitempty"`
}

// PrefilterSummary describes the province-column pre-filter.
type PrefilterSummary struct {
	Column  string `json:"column,omitempty"`
	Applied bool   `json:"applied"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
}

// Phase is the wall time of one step of a run.
type Phase struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
}

// ParishCount is the parish with the most records.
type ParishCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (p ParishCount) String() string {
	return fmt.Sprintf("%s (%d)", p.Name, p.Count)
}

func summarizeFilter(r classify.Result) FilterSummary {
	return FilterSummary{
		ClassificationColumn: r.ClassificationColumn,
		StatusColumn:         r.StatusColumn,
		Matched:              r.Matched,
		Active:               r.Active,
		Fallback:             r.Fallback,
		Codes:                r.SortedCounts(),
	}
}

// TopParish returns the most frequent parish value of tbl. Values are
// trimmed and reduced to the text after the last ";". Ties go to the
// lexically smallest name.
func TopParish(tbl *model.Table) (ParishCount, bool) {
	col, ok := schema.Detect(tbl.Headers, schema.FieldParish)
	if !ok {
		return ParishCount{}, false
	}
	counts := make(map[string]int)
	for _, rec := range tbl.Rows {
		v := rec.Get(col)
		if i := strings.LastIndex(v, ";"); i >= 0 {
			v = v[i+1:]
		}
		if v = strings.TrimSpace(v); v != "" {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return ParishCount{}, false
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return ParishCount{Name: names[0], Count: counts[names[0]]}, true
}

// statsSince returns the work a shared resolver did between two snapshots.
func statsSince(before, after geocode.ResolverStats) geocode.ResolverStats {
	return geocode.ResolverStats{
		Lookups:     after.Lookups - before.Lookups,
		CacheHits:   after.CacheHits - before.CacheHits,
		RemoteCalls: after.RemoteCalls - before.RemoteCalls,
		Found:       after.Found - before.Found,
		NotFound:    after.NotFound - before.NotFound,
		StoreErrors: after.StoreErrors - before.StoreErrors,
	}
}

// FormatSummary renders a short plain-text account of rep for the terminal.
func FormatSummary(rep *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s: %s\n", rep.RunID, rep.Source)
	fmt.Fprintf(&b, "Province: %s (%s)\n", rep.Province.Province.Name, rep.Province.Source)
	fmt.Fprintf(&b, "Records: %d loaded, %d bookstores\n", rep.Loaded, rep.Counters.Total)
	fmt.Fprintf(&b, "Placed: %d  Outside: %d  Unplaceable: %d\n",
		rep.Counters.Placed, rep.Counters.ExcludedOutside, rep.Counters.Unplaceable)
	if rep.TopParish != nil {
		fmt.Fprintf(&b, "Top parish: %s\n", rep.TopParish)
	}
	if rep.Geocode != nil && rep.Geocode.Lookups > 0 {
		fmt.Fprintf(&b, "Geocoding: %d lookups, %d cached, %d remote\n",
			rep.Geocode.Lookups, rep.Geocode.CacheHits, rep.Geocode.RemoteCalls)
	}

	if len(rep.Narrative) > 0 {
		b.WriteString("\n")
		for _, m := range rep.Narrative {
			marker := "-"
			if m.Level == model.LevelWarn {
				marker = "!"
			}
			fmt.Fprintf(&b, "%s %s\n", marker, m.Text)
		}
	}
	if rep.Files != nil {
		fmt.Fprintf(&b, "\nMap: %s\n", rep.Files.HTML)
	}
	return b.String()
}

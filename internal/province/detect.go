package province

import (
	"sort"
	"strings"

	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/schema"
)

// Source records how the active province was chosen.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceFilename Source = "filename"
	SourceColumn   Source = "column"
	SourceDefault  Source = "default"
)

// Detection is the outcome of Detect.
type Detection struct {
	Province Province `json:"province"`
	Source   Source   `json:"source"`
	Column   string   `json:"column,omitempty"`
	// Known is false when the name is not in the catalog and the country
	// center stands in for the province center.
	Known bool `json:"known"`
}

// Detect picks the province for a table: a catalog name contained in the
// file name wins, then the most frequent non-blank value of the province
// column, then fallback.
func (c *Catalog) Detect(filename string, tbl *model.Table, fallback string) Detection {
	if p, ok := c.fromFilename(filename); ok {
		return Detection{Province: p, Source: SourceFilename, Known: true}
	}

	if tbl != nil {
		if col, ok := schema.Detect(tbl.Headers, schema.FieldProvince); ok {
			if v, ok := modalValue(tbl, col); ok {
				p, known := c.Resolve(v)
				return Detection{Province: p, Source: SourceColumn, Column: col, Known: known}
			}
		}
	}

	p, known := c.Resolve(fallback)
	return Detection{Province: p, Source: SourceDefault, Known: known}
}

// fromFilename returns the province whose folded name occurs in the folded
// file name. The longest name wins so that "santo domingo de los tsachilas"
// is not shadowed by a shorter overlapping name.
func (c *Catalog) fromFilename(filename string) (Province, bool) {
	name := geo.Fold(strings.NewReplacer("_", " ", "-", " ").Replace(filename))
	if name == "" {
		return Province{}, false
	}
	var (
		best    Province
		bestLen int
	)
	for _, p := range c.provinces {
		key := geo.Fold(p.Name)
		if strings.Contains(name, key) && len(key) > bestLen {
			best, bestLen = p, len(key)
		}
	}
	return best, bestLen > 0
}

// modalValue returns the most frequent trimmed non-blank value of col. Ties
// go to the lexically smallest value.
func modalValue(tbl *model.Table, col string) (string, bool) {
	counts := make(map[string]int)
	for _, r := range tbl.Rows {
		if v := strings.TrimSpace(r.Get(col)); v != "" {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	return values[0], true
}

// Package resolve places registry records on the map. Each record is
// located by the first strategy that succeeds, checked against the target
// province and, when inside, jittered into a placement.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/boundary"
	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/schema"
)

// DefaultRadiusKM is the acceptance radius around the province center used
// when no boundary polygons are available.
const DefaultRadiusKM = 200.0

// UnnamedLabel is shown for records without a name column or value.
const UnnamedLabel = "Sin nombre"

// Progress receives pre-pass geocoding progress. progressbar.ProgressBar
// satisfies it.
type Progress interface {
	Add(n int) error
	Finish() error
}

// Options configures a Pipeline.
type Options struct {
	Province string
	Center   model.Coordinate
	// RadiusKM applies only without boundary polygons; 0 uses DefaultRadiusKM.
	RadiusKM            float64
	SimilarityThreshold float64
	// JitterMagnitude of 0 uses geo.DefaultJitter.
	JitterMagnitude float64
	// Boundary may be nil; containment then falls back to RadiusKM.
	Boundary *boundary.Resolver
	// Geocoder may be nil, which disables remote lookups entirely.
	Geocoder    Geocoder
	Strategies  []Strategy
	NewProgress func(total int, description string) Progress
}

// Placement is a record located inside the province.
type Placement struct {
	Index    int              `json:"index"`
	Name     string           `json:"name"`
	Parish   string           `json:"parish,omitempty"`
	Canton   string           `json:"canton,omitempty"`
	Address  string           `json:"address,omitempty"`
	Location model.Coordinate `json:"location"`
	// Raw is the resolved coordinate before jitter.
	Raw   model.Coordinate `json:"raw"`
	Stage Stage            `json:"stage"`
}

// Result is the outcome of a pipeline run.
type Result struct {
	Placements   []Placement       `json:"placements"`
	Counters     model.Counters    `json:"counters"`
	Placed       map[Stage]int     `json:"placed_by_stage"`
	Excluded     map[Stage]int     `json:"excluded_by_stage"`
	ParishColumn string            `json:"parish_column,omitempty"`
	CantonColumn string            `json:"canton_column,omitempty"`
	Centroids    map[Source]int    `json:"-"`
	Prepass      PrepassStats      `json:"prepass"`
	Columns      schema.Columns    `json:"-"`
	Containment  ContainmentMethod `json:"containment"`
}

// PrepassStats counts the batch geocoding done before the record loop.
type PrepassStats struct {
	Candidates int `json:"candidates"`
	Found      int `json:"found"`
	// Uncached counts candidates with no stored answer before the pass.
	Uncached int `json:"uncached"`
}

// ContainmentMethod names how records were checked against the province.
type ContainmentMethod string

const (
	ContainmentPolygon ContainmentMethod = "polygon"
	ContainmentRadius  ContainmentMethod = "radius"
)

// Pipeline resolves the records of one filtered table.
type Pipeline struct {
	opts Options
}

// New returns a pipeline with defaults applied to opts.
func New(opts Options) *Pipeline {
	if opts.RadiusKM <= 0 {
		opts.RadiusKM = DefaultRadiusKM
	}
	if opts.JitterMagnitude == 0 {
		opts.JitterMagnitude = geo.DefaultJitter
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies()
	}
	return &Pipeline{opts: opts}
}

// Run locates every row of tbl. It never fails: records that cannot be
// located or fall outside the province are counted and narrated.
func (p *Pipeline) Run(ctx context.Context, tbl *model.Table, n *model.Narrative) *Result {
	log := zap.L().With(zap.String("component", "resolve"), zap.String("province", p.opts.Province))

	cols := schema.DetectAll(tbl.Headers)
	st := &State{
		Province:     p.opts.Province,
		ParishColumn: cols.Get(schema.FieldParish),
		CantonColumn: cols.Get(schema.FieldCanton),
		Extractor:    geo.NewExtractor(cols),
		Parishes:     NewCentroidIndex(p.opts.SimilarityThreshold),
		Geocoder:     p.opts.Geocoder,
	}
	res := &Result{
		Counters:     model.Counters{Total: tbl.Len()},
		Placed:       make(map[Stage]int),
		Excluded:     make(map[Stage]int),
		ParishColumn: st.ParishColumn,
		CantonColumn: st.CantonColumn,
		Centroids:    make(map[Source]int),
		Columns:      cols,
		Containment:  ContainmentRadius,
	}
	if p.opts.Boundary.HasPolygons() {
		res.Containment = ContainmentPolygon
	}

	p.narrateColumns(cols, st, n)
	p.buildIndex(tbl, st, res, n)
	p.prepass(ctx, tbl, st, res, n)

	nameCol := cols.Get(schema.FieldName)
	addrCol := cols.Get(schema.FieldAddress)

	for _, rec := range tbl.Rows {
		coord, stage, ok := p.locate(ctx, rec, st)
		if !ok {
			res.Counters.Unplaceable++
			continue
		}
		if !p.inside(coord) {
			res.Counters.ExcludedOutside++
			res.Excluded[stage]++
			log.Debug("resolve: outside province",
				zap.Int("index", rec.Index),
				zap.String("stage", string(stage)),
				zap.Stringer("location", coord),
			)
			continue
		}

		key := fmt.Sprintf("%d-%s", rec.Index, rec.Get(st.ParishColumn))
		res.Placements = append(res.Placements, Placement{
			Index:    rec.Index,
			Name:     displayName(rec, nameCol),
			Parish:   strings.TrimSpace(rec.Get(st.ParishColumn)),
			Canton:   strings.TrimSpace(rec.Get(st.CantonColumn)),
			Address:  strings.TrimSpace(rec.Get(addrCol)),
			Location: geo.Jitter(coord, key, p.opts.JitterMagnitude),
			Raw:      coord,
			Stage:    stage,
		})
		res.Counters.Placed++
		res.Placed[stage]++
	}

	c := res.Counters
	n.Infof("Placed %d of %d records on the map.", c.Placed, c.Total)
	if c.Unplaceable > 0 {
		n.Warnf("%d records had no usable location (coordinates, parish, canton or geocoding) and were left out.", c.Unplaceable)
	}
	if c.ExcludedOutside > 0 {
		n.Warnf("%d records resolved to a location outside %s and were excluded.", c.ExcludedOutside, p.opts.Province)
	}
	log.Info("resolve: run complete",
		zap.Int("total", c.Total),
		zap.Int("placed", c.Placed),
		zap.Int("excluded_outside", c.ExcludedOutside),
		zap.Int("unplaceable", c.Unplaceable),
	)
	return res
}

func (p *Pipeline) locate(ctx context.Context, rec model.Record, st *State) (model.Coordinate, Stage, bool) {
	for _, s := range p.opts.Strategies {
		if c, ok := s.Resolve(ctx, rec, st); ok {
			return c, s.Stage, true
		}
	}
	return model.Coordinate{}, "", false
}

// inside is boundary-inclusive when polygons are loaded; otherwise it
// accepts points within RadiusKM of the province center.
func (p *Pipeline) inside(c model.Coordinate) bool {
	if p.opts.Boundary.HasPolygons() {
		return p.opts.Boundary.Contains(c)
	}
	return geo.Within(p.opts.Center, c, p.opts.RadiusKM)
}

func (p *Pipeline) narrateColumns(cols schema.Columns, st *State, n *model.Narrative) {
	if !st.Extractor.Enabled() {
		n.Warnf("No latitude/longitude columns found; records are located by parish, canton or geocoding.")
	}
	if !cols.Has(schema.FieldParish) {
		n.Warnf("No parish column found; parish centroids and geocoding are unavailable.")
	}
	if !cols.Has(schema.FieldCanton) {
		n.Warnf("No canton column found; canton centroids are unavailable.")
	}
	if !p.opts.Boundary.HasPolygons() {
		n.Infof("No parish polygons for %s; accepting points within %.0f km of the province center.", p.opts.Province, p.opts.RadiusKM)
	}
}

// buildIndex seeds the parish index from polygons, then from the mean of
// extracted coordinates per parish, and computes canton means.
func (p *Pipeline) buildIndex(tbl *model.Table, st *State, res *Result, n *model.Narrative) {
	polygons := p.opts.Boundary.Centroids()
	for _, name := range p.opts.Boundary.Names() {
		if st.Parishes.Add(name, polygons[name], SourcePolygon) {
			res.Centroids[SourcePolygon]++
		}
	}

	if st.Extractor.Enabled() {
		if st.ParishColumn != "" {
			parishes := meanBy(tbl.Rows, st.Extractor, st.parish)
			for _, m := range parishes {
				if st.Parishes.Add(m.name, m.center(), SourceDataset) {
					res.Centroids[SourceDataset]++
				}
			}
		}
		if st.CantonColumn != "" {
			cantons := meanBy(tbl.Rows, st.Extractor, st.canton)
			st.Cantons = make(map[string]model.Coordinate, len(cantons))
			for _, m := range cantons {
				st.Cantons[m.name] = m.center()
			}
		}
	}

	if st.Parishes.Len() > 0 {
		n.Infof("Parish centroids available: %d (%d from polygons, %d from dataset coordinates).",
			st.Parishes.Len(), res.Centroids[SourcePolygon], res.Centroids[SourceDataset])
	}
}

// prepass geocodes, once each and in sorted order, the parishes of records
// that have no coordinate and no centroid match. Lookups are scoped to the
// province only.
func (p *Pipeline) prepass(ctx context.Context, tbl *model.Table, st *State, res *Result, n *model.Narrative) {
	if st.Geocoder == nil || st.ParishColumn == "" {
		return
	}

	pending := make(map[string]struct{})
	for _, rec := range tbl.Rows {
		if _, ok := st.Extractor.Extract(rec); ok {
			continue
		}
		parish := st.parish(rec)
		if parish == "" {
			continue
		}
		if _, ok := st.Parishes.Match(parish); ok {
			continue
		}
		pending[parish] = struct{}{}
	}
	if len(pending) == 0 {
		return
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	res.Prepass.Candidates = len(names)
	n.Infof("Geocoding %d parishes without a known centroid.", len(names))

	if cache, ok := st.Geocoder.(CacheAware); ok {
		for _, name := range names {
			if !cache.Cached(ctx, name, "", st.Province) {
				res.Prepass.Uncached++
			}
		}
		if cache.Offline() && res.Prepass.Uncached > 0 {
			n.Warnf("Remote geocoding is off; %d parishes have no cached answer.", res.Prepass.Uncached)
		}
	}

	var bar Progress
	if p.opts.NewProgress != nil {
		bar = p.opts.NewProgress(len(names), "Geocoding parishes")
	}
	for _, name := range names {
		if c, ok := st.Geocoder.Resolve(ctx, name, "", st.Province); ok && c.Valid() {
			st.Parishes.Add(name, c, SourceGeocoded)
			res.Prepass.Found++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	res.Centroids[SourceGeocoded] += res.Prepass.Found

	if missed := res.Prepass.Candidates - res.Prepass.Found; missed > 0 {
		n.Warnf("%d parishes could not be geocoded.", missed)
	}
}

type mean struct {
	name     string
	lat, lon float64
	count    int
}

func (m *mean) center() model.Coordinate {
	return model.Coordinate{Lat: m.lat / float64(m.count), Lon: m.lon / float64(m.count)}
}

// meanBy averages extracted coordinates grouped by key, in order of first
// appearance.
func meanBy(rows []model.Record, ex geo.Extractor, key func(model.Record) string) []*mean {
	var out []*mean
	index := make(map[string]*mean)
	for _, rec := range rows {
		k := key(rec)
		if k == "" {
			continue
		}
		c, ok := ex.Extract(rec)
		if !ok {
			continue
		}
		m, seen := index[k]
		if !seen {
			m = &mean{name: k}
			index[k] = m
			out = append(out, m)
		}
		m.lat += c.Lat
		m.lon += c.Lon
		m.count++
	}
	return out
}

func displayName(rec model.Record, col string) string {
	if v := strings.TrimSpace(rec.Get(col)); v != "" {
		return v
	}
	return UnnamedLabel
}

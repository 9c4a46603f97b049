// Package analysis runs one end-to-end analysis: load a registry export,
// pick the province, keep the bookstores, locate them and write the map.
package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/boundary"
	"github.com/sells-group/bookmap/internal/classify"
	"github.com/sells-group/bookmap/internal/fetcher"
	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/province"
	"github.com/sells-group/bookmap/internal/render"
	"github.com/sells-group/bookmap/internal/resolve"
	"github.com/sells-group/bookmap/internal/schema"
	"github.com/sells-group/bookmap/internal/store"
	"github.com/sells-group/bookmap/pkg/geocode"
)

// ReportFile is written next to the map artifacts.
const ReportFile = "report.json"

// Options configures an Analyzer.
type Options struct {
	// Province forces the active province; empty means detect.
	Province        string
	DefaultProvince string
	BoundaryPaths   []string

	RadiusKM            float64
	SimilarityThreshold float64
	JitterMagnitude     float64

	// OutputDir receives the artifacts. Empty skips writing files.
	OutputDir string
	// RunSubdir writes each run into OutputDir/<run id>.
	RunSubdir bool
	Load      fetcher.LoadOptions
}

// Analyzer holds the long-lived collaborators shared by runs.
type Analyzer struct {
	catalog  *province.Catalog
	filter   *classify.Filter
	geocoder *geocode.Resolver // nil disables geocoding
	history  store.Store       // nil disables run history
	progress func(total int, description string) resolve.Progress
	opts     Options
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithGeocoder enables the geocoding fallback.
func WithGeocoder(r *geocode.Resolver) Option {
	return func(a *Analyzer) { a.geocoder = r }
}

// WithHistory records every run in s.
func WithHistory(s store.Store) Option {
	return func(a *Analyzer) { a.history = s }
}

// WithProgress reports pre-pass geocoding progress.
func WithProgress(fn func(total int, description string) resolve.Progress) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// New returns an Analyzer. A nil catalog or filter uses the built-in one.
func New(catalog *province.Catalog, filter *classify.Filter, opts Options, options ...Option) *Analyzer {
	if catalog == nil {
		catalog = province.DefaultCatalog()
	}
	if filter == nil {
		filter = classify.NewFilter(nil, nil)
	}
	a := &Analyzer{catalog: catalog, filter: filter, opts: opts}
	for _, o := range options {
		o(a)
	}
	return a
}

// Run is one analysis of one table.
type Run struct {
	Report   *Report
	Result   *resolve.Result
	Boundary *boundary.Resolver
	Page     *render.Page
}

// AnalyzeFile loads src (a path or URL) and analyzes it. Only a load
// failure or an artifact write failure is returned as an error.
func (a *Analyzer) AnalyzeFile(ctx context.Context, src string) (*Run, error) {
	tbl, err := fetcher.LoadFile(ctx, src, a.opts.Load)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: load input")
	}
	return a.Analyze(ctx, tbl)
}

// AnalyzeBytes parses an uploaded file named name and analyzes it.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, name string, data []byte) (*Run, error) {
	tbl, err := fetcher.Load(ctx, name, data, a.opts.Load)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: parse upload")
	}
	return a.Analyze(ctx, tbl)
}

// Analyze runs the whole flow over a loaded table.
func (a *Analyzer) Analyze(ctx context.Context, tbl *model.Table) (*Run, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		Source:    tbl.Source,
		CreatedAt: time.Now().UTC(),
		Loaded:    tbl.Len(),
	}
	log := zap.L().With(zap.String("component", "analysis"), zap.String("run_id", rep.RunID))
	log.Info("analysis: starting run", zap.String("source", tbl.Source), zap.Int("rows", tbl.Len()))

	n := model.NewNarrative(log)
	n.Infof("Loaded %d records from %s.", tbl.Len(), tbl.Source)

	phase := func(name string, fn func()) {
		start := time.Now()
		fn()
		d := time.Since(start).Milliseconds()
		rep.Phases = append(rep.Phases, Phase{Name: name, DurationMS: d})
		log.Debug("analysis: phase complete", zap.String("phase", name), zap.Int64("duration_ms", d))
	}

	phase("province", func() {
		rep.Province = a.detectProvince(tbl, n)
	})
	prov := rep.Province.Province

	var filtered *model.Table
	phase("classify", func() {
		cls := a.filter.Apply(tbl)
		for _, w := range cls.Warnings {
			n.Warnf("%s", w)
		}
		rep.Filter = summarizeFilter(cls)
		filtered = cls.Table
		n.Infof("%d bookstore records after filtering.", filtered.Len())
		if top, ok := TopParish(filtered); ok {
			rep.TopParish = &top
		}
	})

	phase("prefilter", func() {
		filtered, rep.Prefilter = prefilter(filtered, prov.Name, n)
	})

	var b *boundary.Resolver
	phase("boundary", func() {
		b = boundary.Load(a.opts.BoundaryPaths, prov.Name, n)
		if b != nil {
			rep.Boundary = b.Path
		}
	})

	var (
		res    *resolve.Result
		before geocode.ResolverStats
	)
	if a.geocoder != nil {
		before = a.geocoder.Stats()
	}
	phase("resolve", func() {
		opts := resolve.Options{
			Province:            prov.Name,
			Center:              prov.Center,
			RadiusKM:            a.opts.RadiusKM,
			SimilarityThreshold: a.opts.SimilarityThreshold,
			JitterMagnitude:     a.opts.JitterMagnitude,
			Boundary:            b,
			NewProgress:         a.progress,
		}
		if a.geocoder != nil {
			opts.Geocoder = a.geocoder
		}
		res = resolve.New(opts).Run(ctx, filtered, n)
	})
	rep.Counters = res.Counters
	rep.PlacedByStage = res.Placed
	rep.ExcludedByStage = res.Excluded
	rep.Containment = res.Containment
	rep.Prepass = res.Prepass
	if a.geocoder != nil {
		st := statsSince(before, a.geocoder.Stats())
		rep.Geocode = &st
	}

	run := &Run{Report: rep, Result: res, Boundary: b}
	page, err := render.NewPage(prov.Name, prov.Center, res, b)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: build page")
	}
	if rep.TopParish != nil {
		page.TopParish = rep.TopParish.String()
	}
	run.Page = page

	rep.Narrative = n.Messages
	page.Messages = n.Messages

	if dir := a.outputDir(rep.RunID); dir != "" {
		files, err := render.Write(dir, page, res, b)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: write artifacts")
		}
		rep.Files = &files
		rep.ReportFile = filepath.Join(dir, ReportFile)
		if err := writeReport(rep.ReportFile, rep); err != nil {
			return nil, err
		}
	}

	a.record(ctx, rep, log)

	log.Info("analysis: run complete",
		zap.String("province", prov.Name),
		zap.Int("total", res.Counters.Total),
		zap.Int("placed", res.Counters.Placed),
		zap.Int("excluded_outside", res.Counters.ExcludedOutside),
		zap.Int("unplaceable", res.Counters.Unplaceable),
	)
	return run, nil
}

func (a *Analyzer) outputDir(runID string) string {
	if a.opts.OutputDir == "" {
		return ""
	}
	if a.opts.RunSubdir {
		return filepath.Join(a.opts.OutputDir, runID)
	}
	return a.opts.OutputDir
}

func (a *Analyzer) detectProvince(tbl *model.Table, n *model.Narrative) province.Detection {
	var det province.Detection
	if name := strings.TrimSpace(a.opts.Province); name != "" {
		p, known := a.catalog.Resolve(name)
		det = province.Detection{Province: p, Source: province.SourceExplicit, Known: known}
	} else {
		det = a.catalog.Detect(tbl.Source, tbl, a.opts.DefaultProvince)
	}

	switch det.Source {
	case province.SourceFilename:
		n.Infof("Province %s detected from the file name.", det.Province.Name)
	case province.SourceColumn:
		n.Infof("Province %s detected from column %s.", det.Province.Name, det.Column)
	case province.SourceDefault:
		n.Infof("No province detected; using %s.", det.Province.Name)
	default:
		n.Infof("Using province %s.", det.Province.Name)
	}
	if !det.Known {
		n.Warnf("Province %s is not in the catalog; the map is centered on Ecuador.", det.Province.Name)
	}
	return det
}

// prefilter keeps the rows whose province column mentions the province.
// When the column is missing or nothing matches, all rows are kept.
func prefilter(tbl *model.Table, name string, n *model.Narrative) (*model.Table, PrefilterSummary) {
	sum := PrefilterSummary{Before: tbl.Len(), After: tbl.Len()}
	col, ok := schema.Detect(tbl.Headers, schema.FieldProvince)
	if !ok || tbl.Len() == 0 {
		return tbl, sum
	}
	sum.Column = col

	want := geo.Fold(name)
	var kept []model.Record
	for _, rec := range tbl.Rows {
		if want != "" && strings.Contains(geo.Fold(rec.Get(col)), want) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		n.Warnf("No records mention %s in column %s; keeping all %d records.", name, col, tbl.Len())
		return tbl, sum
	}

	sum.Applied = true
	sum.After = len(kept)
	if dropped := tbl.Len() - len(kept); dropped > 0 {
		n.Infof("%d records from other provinces were dropped using column %s.", dropped, col)
	}
	return tbl.WithRows(kept), sum
}

func (a *Analyzer) record(ctx context.Context, rep *Report, log *zap.Logger) {
	if a.history == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		log.Warn("analysis: marshal report for history", zap.Error(err))
		return
	}
	run := &store.Run{
		ID:        rep.RunID,
		Source:    rep.Source,
		Province:  rep.Province.Province.Name,
		Counters:  rep.Counters,
		Report:    data,
		CreatedAt: rep.CreatedAt,
	}
	if err := a.history.SaveRun(ctx, run); err != nil {
		log.Warn("analysis: save run history", zap.Error(err))
	}
}

func writeReport(path string, rep *Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return eris.Wrap(err, "analysis: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "analysis: write %s", path)
	}
	return nil
}

// ForProvince returns a copy of a that maps name instead of detecting the
// province. An empty name returns a unchanged.
func (a *Analyzer) ForProvince(name string) *Analyzer {
	if strings.TrimSpace(name) == "" {
		return a
	}
	c := *a
	c.opts.Province = name
	return &c
}

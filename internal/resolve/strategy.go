package resolve

import (
	"context"

	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
)

// Stage names the strategy that located a record.
type Stage string

const (
	StageExtracted Stage = "extracted"
	StageParish    Stage = "parish"
	StageCanton    Stage = "canton"
	StageGeocode   Stage = "geocode"
)

// Strategy is one way of locating a record. Strategies are tried in order
// and the first one that returns a coordinate wins.
type Strategy struct {
	Stage   Stage
	Resolve func(ctx context.Context, rec model.Record, st *State) (model.Coordinate, bool)
}

// DefaultStrategies returns the standard order: extracted coordinates,
// parish centroid, canton centroid, remote geocoding.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Stage: StageExtracted, Resolve: fromExtracted},
		{Stage: StageParish, Resolve: fromParish},
		{Stage: StageCanton, Resolve: fromCanton},
		{Stage: StageGeocode, Resolve: fromGeocode},
	}
}

func fromExtracted(_ context.Context, rec model.Record, st *State) (model.Coordinate, bool) {
	return st.Extractor.Extract(rec)
}

func fromParish(_ context.Context, rec model.Record, st *State) (model.Coordinate, bool) {
	c, ok := st.Parishes.Match(st.parish(rec))
	if !ok {
		return model.Coordinate{}, false
	}
	return c.Location, true
}

func fromCanton(_ context.Context, rec model.Record, st *State) (model.Coordinate, bool) {
	canton := st.canton(rec)
	if canton == "" {
		return model.Coordinate{}, false
	}
	c, ok := st.Cantons[canton]
	return c, ok
}

// fromGeocode adds a successful lookup to the parish index so later records
// of the same parish resolve without another request.
func fromGeocode(ctx context.Context, rec model.Record, st *State) (model.Coordinate, bool) {
	if st.Geocoder == nil {
		return model.Coordinate{}, false
	}
	parish := st.parish(rec)
	if parish == "" {
		return model.Coordinate{}, false
	}
	c, ok := st.Geocoder.Resolve(ctx, parish, st.canton(rec), st.Province)
	if !ok || !c.Valid() {
		return model.Coordinate{}, false
	}
	st.Parishes.Add(parish, c, SourceGeocoded)
	return c, true
}

// State is the per-run data shared by strategies.
type State struct {
	Province     string
	ParishColumn string
	CantonColumn string
	Extractor    geo.Extractor
	Parishes     *CentroidIndex
	Cantons      map[string]model.Coordinate
	Geocoder     Geocoder
}

func (st *State) parish(rec model.Record) string {
	return geo.NormalizeName(rec.Get(st.ParishColumn))
}

func (st *State) canton(rec model.Record) string {
	return geo.NormalizeName(rec.Get(st.CantonColumn))
}

// Geocoder resolves a place name; *geocode.Resolver satisfies it.
type Geocoder interface {
	Resolve(ctx context.Context, place, canton, province string) (model.Coordinate, bool)
}

// CacheAware is implemented by geocoders backed by a local cache, such as
// *geocode.Resolver. The pre-pass uses it to report cache coverage.
type CacheAware interface {
	Offline() bool
	Cached(ctx context.Context, place, canton, province string) bool
}

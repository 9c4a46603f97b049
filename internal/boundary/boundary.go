// Package boundary loads optional parish boundary polygons, keeps those of
// the target province, and answers centroid and containment queries.
//
// The resolver is an optional collaborator: when no boundary file is
// available Load returns nil and callers fall back to distance checks.
package boundary

import (
	"fmt"
	"os"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
)

// DefaultPaths are the boundary files tried in order, relative to the
// working directory.
var DefaultPaths = []string{
	"parroquias.geojson",
	"data/parroquias.geojson",
	"parroquias.shp",
	"data/parroquias.shp",
}

// NameFields are attribute names tried, in order, for the parish name.
var NameFields = []string{"nombre", "NAME", "NOMBRE", "parroquia", "PARROQUIA", "DPA_NOM_PAR", "NOMBRE_PAR", "DPA_DESPAR"}

// ProvinceFields are attribute names tried, in order, for the province.
var ProvinceFields = []string{"provincia", "PROVINCIA", "NOM_PROV", "DPA_NOM_PROV", "DPA_DESPRO", "PROV"}

// Resolver answers centroid and containment queries for the boundary
// features of one province.
type Resolver struct {
	Path          string
	Projection    string
	Province      string
	NameField     string
	ProvinceField string
	// Filtered is false when no province field exists and every feature
	// was kept.
	Filtered bool

	features  []Feature
	centroids map[string]model.Coordinate
	names     []string // normalized names in first-seen order
	union     *geom.MultiPolygon
	bounds    *geom.Bounds
}

// Load tries each path in order and builds a resolver for province from
// the first file that exists and loads. It returns nil when no file could
// be used; that is not an error.
func Load(paths []string, province string, n *model.Narrative) *Resolver {
	log := zap.L().With(zap.String("component", "boundary"))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		ds, err := Open(p)
		if err != nil {
			log.Warn("boundary: candidate not loadable", zap.String("path", p), zap.Error(err))
			n.Warnf("Boundary file %s could not be loaded: %v", p, err)
			continue
		}
		for _, w := range ds.Warnings {
			n.Warnf("Boundary file %s: %s", p, w)
		}
		r := NewResolver(ds, province)
		if !r.Filtered {
			n.Warnf("Boundary file %s has no province field; using all %d features", p, r.Len())
		}
		n.Infof("Loaded %d parish boundaries for %s from %s", r.Len(), province, p)
		return r
	}
	n.Infof("No local parish boundary file found; using dataset centroids and geocoding instead")
	return nil
}

// NewResolver filters ds to the features of province and indexes them.
func NewResolver(ds *Dataset, province string) *Resolver {
	keys := unionKeys(ds.Features)
	r := &Resolver{
		Path:          ds.Path,
		Projection:    ds.Projection,
		Province:      province,
		NameField:     fieldFor(keys, NameFields),
		ProvinceField: provinceField(keys),
		centroids:     make(map[string]model.Coordinate),
	}

	want := geo.Fold(province)
	for _, f := range ds.Features {
		if r.ProvinceField != "" && !strings.Contains(geo.Fold(f.Get(r.ProvinceField)), want) {
			continue
		}
		r.features = append(r.features, f)
	}
	r.Filtered = r.ProvinceField != ""

	r.index()

	zap.L().Debug("boundary: resolver built",
		zap.String("path", r.Path),
		zap.String("province", province),
		zap.String("name_field", r.NameField),
		zap.String("province_field", r.ProvinceField),
		zap.Int("features", len(r.features)),
		zap.Int("centroids", len(r.centroids)),
	)
	return r
}

// provinceField looks for a known province attribute, then any attribute
// whose name mentions "prov".
func provinceField(keys []string) string {
	if f := fieldFor(keys, ProvinceFields); f != "" {
		return f
	}
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "prov") {
			return k
		}
	}
	return ""
}

// index builds the union and per-name area centroids. Features sharing a
// name contribute to a single centroid.
func (r *Resolver) index() {
	r.union = geom.NewMultiPolygon(geom.XY)
	r.bounds = geom.NewBounds(geom.XY)

	calcs := make(map[string]*xy.AreaCentroidCalculator)
	for _, f := range r.features {
		for i := 0; i < f.Geometry.NumPolygons(); i++ {
			p := f.Geometry.Polygon(i)
			if p.Layout() != geom.XY {
				p = toXY(p)
			}
			if err := r.union.Push(p); err != nil {
				continue
			}
			r.bounds.Extend(p)

			name := r.featureName(f)
			if name == "" {
				continue
			}
			calc, ok := calcs[name]
			if !ok {
				calc = xy.NewAreaCentroidCalculator(geom.XY)
				calcs[name] = calc
				r.names = append(r.names, name)
			}
			calc.AddPolygon(p)
		}
	}

	for name, calc := range calcs {
		c := calc.GetCentroid()
		if len(c) < 2 {
			continue
		}
		r.centroids[name] = model.Coordinate{Lat: c.Y(), Lon: c.X()}
	}
}

// featureName is the normalized parish name: the name field if present,
// else the first non-blank string attribute. Numeric codes never name a
// parish.
func (r *Resolver) featureName(f Feature) string {
	if r.NameField != "" {
		if v := geo.NormalizeName(f.Get(r.NameField)); v != "" {
			return v
		}
	}
	for _, k := range f.TextKeys {
		if v := geo.NormalizeName(f.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// Label returns the display name of f as written in the name field, or ""
// when no name field was identified.
func (r *Resolver) Label(f Feature) string {
	if r == nil || r.NameField == "" {
		return ""
	}
	return strings.TrimSpace(f.Get(r.NameField))
}

func toXY(p *geom.Polygon) *geom.Polygon {
	stride := p.Stride()
	src := p.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		flat = append(flat, src[i], src[i+1])
	}
	ends := make([]int, len(p.Ends()))
	for i, e := range p.Ends() {
		ends[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// Len returns the number of kept features.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.features)
}

// Features returns the kept features.
func (r *Resolver) Features() []Feature {
	if r == nil {
		return nil
	}
	return r.features
}

// Centroids returns normalized parish name to area centroid.
func (r *Resolver) Centroids() map[string]model.Coordinate {
	if r == nil {
		return nil
	}
	return r.centroids
}

// Names returns the normalized parish names in file order.
func (r *Resolver) Names() []string {
	if r == nil {
		return nil
	}
	return r.names
}

// Union returns all kept polygons as one multipolygon.
func (r *Resolver) Union() *geom.MultiPolygon {
	if r == nil {
		return nil
	}
	return r.union
}

// HasPolygons reports whether containment tests are meaningful.
func (r *Resolver) HasPolygons() bool {
	return r != nil && r.union != nil && r.union.NumPolygons() > 0
}

// Contains reports whether c lies inside or on the boundary of any kept
// polygon. Points inside a hole are outside; points on a hole's edge are
// inside.
func (r *Resolver) Contains(c model.Coordinate) bool {
	if !r.HasPolygons() {
		return false
	}
	pt := geom.Coord{c.Lon, c.Lat}
	if !r.bounds.OverlapsPoint(geom.XY, pt) {
		return false
	}
	for i := 0; i < r.union.NumPolygons(); i++ {
		if polygonContains(r.union.Polygon(i), pt) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if !p.Bounds().OverlapsPoint(geom.XY, pt) {
		return false
	}
	if p.NumLinearRings() == 0 {
		return false
	}
	if xy.LocatePointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) == location.Exterior {
		return false
	}
	for j := 1; j < p.NumLinearRings(); j++ {
		if xy.LocatePointInRing(geom.XY, pt, p.LinearRing(j).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

// String describes the resolver for logs.
func (r *Resolver) String() string {
	if r == nil {
		return "boundary(none)"
	}
	return fmt.Sprintf("boundary(%s, %s, %d features)", r.Path, r.Province, len(r.features))
}

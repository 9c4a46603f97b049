package boundary

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one boundary polygon with its attributes as text.
type Feature struct {
	Keys       []string // attribute names in file order
	TextKeys   []string // subset of Keys whose values were strings
	Properties map[string]string
	Geometry   *geom.MultiPolygon
}

// Get returns an attribute value, or "".
func (f Feature) Get(key string) string {
	return f.Properties[key]
}

// Dataset is a loaded boundary file with geometries in WGS84.
type Dataset struct {
	Path       string
	Projection string
	Features   []Feature
	// Skipped counts features with missing or non-polygonal geometry.
	Skipped  int
	Warnings []string
}

// Open loads a GeoJSON (.geojson, .json) or shapefile (.shp) boundary file
// and reprojects it to WGS84.
func Open(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: read %s", path)
		}
		ds, err := ReadGeoJSON(data)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: parse %s", path)
		}
		ds.Path = path
		return ds, nil
	case ".shp":
		return ReadShapefile(path)
	default:
		return nil, eris.Errorf("boundary: unsupported file type %s", path)
	}
}

// toMultiPolygon converts polygonal geometries; other types report false.
func toMultiPolygon(g geom.T) (*geom.MultiPolygon, bool) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, false
		}
		return t, true
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil, false
		}
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, false
		}
		return mp, true
	default:
		return nil, false
	}
}

// fieldFor returns the first candidate present in keys (exact match first,
// then case-insensitive), or "".
func fieldFor(keys []string, candidates []string) string {
	for _, c := range candidates {
		for _, k := range keys {
			if k == c {
				return k
			}
		}
	}
	for _, c := range candidates {
		for _, k := range keys {
			if strings.EqualFold(k, c) {
				return k
			}
		}
	}
	return ""
}

// unionKeys returns every attribute name in first-seen order.
func unionKeys(features []Feature) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range features {
		for _, k := range f.Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

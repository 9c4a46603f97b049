// Package render writes the artifacts of an analysis run: marker and
// boundary layers as GeoJSON and a self-contained Leaflet map page.
package render

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/bookmap/internal/boundary"
	"github.com/sells-group/bookmap/internal/resolve"
)

// maxDecimalDigits keeps about 1 cm of precision.
const maxDecimalDigits = 7

// Markers converts placements to point features. Properties carry the
// popup fields, the resolution stage and the unjittered location.
func Markers(placements []resolve.Placement) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(placements))}
	if len(placements) == 0 {
		return fc
	}

	bounds := geom.NewBounds(geom.XY)
	for _, p := range placements {
		pt := geom.NewPointFlat(geom.XY, []float64{p.Location.Lon, p.Location.Lat})
		bounds.Extend(pt)
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(p.Index),
			Geometry: pt,
			Properties: map[string]any{
				"name":    p.Name,
				"parish":  p.Parish,
				"canton":  p.Canton,
				"address": p.Address,
				"stage":   string(p.Stage),
				"raw_lat": p.Raw.Lat,
				"raw_lon": p.Raw.Lon,
			},
		})
	}
	fc.BBox = bounds
	return fc
}

// Boundaries converts the resolver's kept polygons to features with a
// "name" property. A nil resolver yields nil.
func Boundaries(r *boundary.Resolver) *geojson.FeatureCollection {
	if !r.HasPolygons() {
		return nil
	}
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, r.Len())}
	for _, f := range r.Features() {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Geometry,
			Properties: map[string]any{"name": r.Label(f)},
		})
	}
	return fc
}

// WriteGeoJSON encodes fc to w. Coordinates are rounded to 7 decimals.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := MarshalGeoJSON(fc)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "render: write geojson")
	}
	return nil
}

// MarshalGeoJSON encodes fc with rounded coordinates.
func MarshalGeoJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	type feature struct {
		Type       string            `json:"type"`
		ID         string            `json:"id,omitempty"`
		Geometry   *geojson.Geometry `json:"geometry"`
		Properties map[string]any    `json:"properties"`
	}
	type collection struct {
		Type     string    `json:"type"`
		BBox     []float64 `json:"bbox,omitempty"`
		Features []feature `json:"features"`
	}

	out := collection{Type: "FeatureCollection", Features: make([]feature, 0)}
	if fc == nil {
		return json.Marshal(out)
	}
	if fc.BBox != nil && !fc.BBox.IsEmpty() {
		out.BBox = []float64{fc.BBox.Min(0), fc.BBox.Min(1), fc.BBox.Max(0), fc.BBox.Max(1)}
	}
	for _, f := range fc.Features {
		g, err := geojson.Encode(f.Geometry, geojson.EncodeGeometryWithMaxDecimalDigits(maxDecimalDigits))
		if err != nil {
			return nil, eris.Wrap(err, "render: encode geometry")
		}
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		out.Features = append(out.Features, feature{Type: "Feature", ID: f.ID, Geometry: g, Properties: props})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "render: marshal geojson")
	}
	return data, nil
}

package boundary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// crsMember is the legacy top-level "crs" member, which go-geom does not
// keep when decoding a FeatureCollection.
type crsMember struct {
	CRS *geojson.CRS `json:"crs"`
}

// ReadGeoJSON parses a FeatureCollection. A declared crs is honored;
// without one, geographic coordinates are assumed unless the extent is
// clearly projected.
func ReadGeoJSON(data []byte) (*Dataset, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geojson: decode feature collection")
	}

	var cm crsMember
	_ = json.Unmarshal(data, &cm)

	ds := &Dataset{}
	proj, declared := Projection(geographic{}), false
	if cm.CRS != nil {
		name := crsName(cm.CRS)
		p, ok := ParseCRS(name)
		if ok {
			proj, declared = p, true
		} else {
			ds.Warnings = append(ds.Warnings, fmt.Sprintf("unrecognized CRS %q; coordinates used as-is", name))
		}
	}

	bounds := geom.NewBounds(geom.XY)
	for _, f := range fc.Features {
		mp, ok := toMultiPolygon(f.Geometry)
		if !ok {
			ds.Skipped++
			continue
		}
		bounds.Extend(mp)
		keys, text, props := stringProperties(f.Properties)
		ds.Features = append(ds.Features, Feature{Keys: keys, TextKeys: text, Properties: props, Geometry: mp})
	}

	if !declared && looksProjected(bounds) {
		proj = defaultProjected
		ds.Warnings = append(ds.Warnings, fmt.Sprintf("no CRS declared and coordinates are projected; assuming %s", proj.Name()))
	}
	for _, f := range ds.Features {
		reproject(f.Geometry, proj)
	}
	ds.Projection = proj.Name()
	return ds, nil
}

func crsName(c *geojson.CRS) string {
	if c.Properties == nil {
		return c.Type
	}
	if name, ok := c.Properties["name"].(string); ok {
		return name
	}
	return c.Type
}

// stringProperties flattens property values to text with keys sorted, so
// fallbacks that pick "the first" property are deterministic. The second
// result lists the keys that held JSON strings.
func stringProperties(in map[string]interface{}) ([]string, []string, map[string]string) {
	keys := make([]string, 0, len(in))
	var text []string
	props := make(map[string]string, len(in))
	for k, v := range in {
		keys = append(keys, k)
		switch t := v.(type) {
		case nil:
			props[k] = ""
		case string:
			props[k] = t
			text = append(text, k)
		case float64:
			props[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			props[k] = fmt.Sprint(t)
		}
	}
	sort.Strings(keys)
	sort.Strings(text)
	return keys, text, props
}

package boundary

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"golang.org/x/text/encoding/charmap"
)

// ReadShapefile loads polygon features and their .dbf attributes. The
// sibling .prj, when present, selects the projection.
func ReadShapefile(path string) (*Dataset, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	ds := &Dataset{Path: path}

	fields := reader.Fields()
	keys := make([]string, len(fields))
	var text []string
	for i, f := range fields {
		keys[i] = strings.TrimRight(f.String(), "\x00")
		if f.Fieldtype == 'C' {
			text = append(text, keys[i])
		}
	}

	var raw []Feature
	bounds := geom.NewBounds(geom.XY)
	for reader.Next() {
		_, shape := reader.Shape()
		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			ds.Skipped++
			continue
		}
		bounds.Extend(mp)

		props := make(map[string]string, len(keys))
		for i, k := range keys {
			props[k] = decodeAttribute(reader.Attribute(i))
		}
		raw = append(raw, Feature{Keys: keys, TextKeys: text, Properties: props, Geometry: mp})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	proj, declared := Projection(geographic{}), false
	prjPath := strings.TrimSuffix(path, ".shp") + ".prj"
	if strings.HasSuffix(path, ".SHP") {
		prjPath = strings.TrimSuffix(path, ".SHP") + ".PRJ"
	}
	if text, err := os.ReadFile(prjPath); err == nil {
		p, ok := ParseCRS(string(text))
		if ok {
			proj, declared = p, true
		} else {
			ds.Warnings = append(ds.Warnings, "unrecognized .prj projection; coordinates used as-is")
		}
	}
	if !declared && looksProjected(bounds) {
		proj = defaultProjected
		ds.Warnings = append(ds.Warnings, fmt.Sprintf("no .prj and coordinates are projected; assuming %s", proj.Name()))
	}

	for _, f := range raw {
		reproject(f.Geometry, proj)
	}
	ds.Features = raw
	ds.Projection = proj.Name()
	return ds, nil
}

// decodeAttribute returns v as UTF-8; .dbf text from Ecuadorian sources is
// commonly Latin-1.
func decodeAttribute(v string) string {
	v = strings.TrimSpace(strings.Trim(v, "\x00"))
	if utf8.ValidString(v) {
		return v
	}
	out, err := charmap.ISO8859_1.NewDecoder().String(v)
	if err != nil {
		return v
	}
	return out
}

// shapeToMultiPolygon converts a shapefile polygon. Clockwise rings are
// shells; counter-clockwise rings are holes of the preceding shell.
func shapeToMultiPolygon(s shp.Shape) *geom.MultiPolygon {
	var (
		parts  []int32
		points []shp.Point
	)
	switch shape := s.(type) {
	case *shp.Polygon:
		parts, points = shape.Parts, shape.Points
	case *shp.PolygonZ:
		parts, points = shape.Parts, shape.Points
	case *shp.PolygonM:
		parts, points = shape.Parts, shape.Points
	default:
		return nil
	}
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			_ = mp.Push(current)
		}
	}

	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if xy.IsRingCounterClockwise(geom.XY, flat) && current != nil {
			_ = current.Push(ring)
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		_ = current.Push(ring)
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

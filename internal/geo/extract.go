// Package geo holds the small coordinate helpers of the location pipeline:
// parsing ad-hoc coordinate columns, deterministic jitter, great-circle
// distance and place-name normalization.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/schema"
)

// ParseNumber parses a locale-tolerant decimal ("-0,1807" or "-0.1807").
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Extractor reads coordinates from the latitude and longitude columns of a
// table. Either column may be missing, in which case nothing is extracted.
type Extractor struct {
	LatColumn string
	LonColumn string
}

// NewExtractor reads the coordinate columns out of detected columns.
func NewExtractor(cols schema.Columns) Extractor {
	return Extractor{
		LatColumn: cols.Get(schema.FieldLatitude),
		LonColumn: cols.Get(schema.FieldLongitude),
	}
}

// Enabled reports whether both coordinate columns were found.
func (e Extractor) Enabled() bool {
	return e.LatColumn != "" && e.LonColumn != ""
}

// Extract returns the record's coordinate. See Normalize for the swap rule.
func (e Extractor) Extract(rec model.Record) (model.Coordinate, bool) {
	if !e.Enabled() {
		return model.Coordinate{}, false
	}
	lat, ok := ParseNumber(rec.Get(e.LatColumn))
	if !ok {
		return model.Coordinate{}, false
	}
	lon, ok := ParseNumber(rec.Get(e.LonColumn))
	if !ok {
		return model.Coordinate{}, false
	}
	return Normalize(lat, lon)
}

// Normalize accepts (lat, lon) when both are in range, otherwise tries the
// swapped order, otherwise reports no coordinate.
func Normalize(lat, lon float64) (model.Coordinate, bool) {
	c := model.Coordinate{Lat: lat, Lon: lon}
	if c.Valid() {
		return c, true
	}
	if s := c.Swapped(); s.Valid() {
		return s, true
	}
	return model.Coordinate{}, false
}

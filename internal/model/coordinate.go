package model

import "fmt"

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both axes fall inside their geographic ranges
// (lat in [-90,90], lon in [-180,180]).
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Swapped returns the coordinate with latitude and longitude exchanged.
func (c Coordinate) Swapped() Coordinate {
	return Coordinate{Lat: c.Lon, Lon: c.Lat}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}

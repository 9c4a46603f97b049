package geo

import (
	"math"

	"github.com/sells-group/bookmap/internal/model"
)

// EarthRadiusKM is the mean Earth radius.
const EarthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between a and b.
func HaversineKM(a, b model.Coordinate) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether p lies within radiusKM of center.
func Within(center, p model.Coordinate, radiusKM float64) bool {
	return HaversineKM(center, p) <= radiusKM
}

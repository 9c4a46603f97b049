package geo

import (
	"crypto/md5" //nolint:gosec // not used for security
	"encoding/binary"
	"math"

	"github.com/sells-group/bookmap/internal/model"
)

// DefaultJitter is the jitter radius in degrees used for placed markers
// (roughly 55 m at the equator).
const DefaultJitter = 0.0005

// Jitter offsets base by a small amount derived from key. The first 32 bits
// of MD5(key) give h; the angle is h mod 360 degrees and the radius is
// ((h>>8) mod 100)/100 of magnitude. The same key always yields the same
// point.
func Jitter(base model.Coordinate, key string, magnitude float64) model.Coordinate {
	sum := md5.Sum([]byte(key)) //nolint:gosec
	h := binary.BigEndian.Uint32(sum[:4])

	angle := float64(h%360) * math.Pi / 180.0
	r := float64((h>>8)%100) / 100.0 * magnitude

	return model.Coordinate{
		Lat: base.Lat + r*math.Cos(angle),
		Lon: base.Lon + r*math.Sin(angle),
	}
}

package boundary

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Projection converts planar coordinates to WGS84 longitude/latitude.
type Projection interface {
	Name() string
	ToLonLat(x, y float64) (lon, lat float64)
}

type geographic struct{}

func (geographic) Name() string { return "EPSG:4326" }

func (geographic) ToLonLat(x, y float64) (float64, float64) { return x, y }

// UTM is a WGS84 Universal Transverse Mercator zone.
type UTM struct {
	Zone  int
	South bool
}

// Name returns the EPSG-style name of the zone.
func (u UTM) Name() string {
	code := 32600 + u.Zone
	if u.South {
		code = 32700 + u.Zone
	}
	return "EPSG:" + strconv.Itoa(code)
}

// WGS84 ellipsoid and UTM constants.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	utmK0   = 0.9996
	utmE0   = 500000.0
	utmN0S  = 10000000.0
	degrees = 180 / math.Pi
)

// ToLonLat inverts the transverse Mercator projection (USGS series, good to
// well under a metre inside the zone).
func (u UTM) ToLonLat(easting, northing float64) (float64, float64) {
	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)

	x := easting - utmE0
	y := northing
	if u.South {
		y -= utmN0S
	}

	m := y / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	n1 := wgs84A / math.Sqrt(1-e2*sin*sin)
	t1 := tan * tan
	c1 := ep2 * cos * cos
	r1 := wgs84A * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := x / (n1 * utmK0)

	lat := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := (d -
		(1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos

	lon0 := float64((u.Zone-1)*6 - 180 + 3)
	return lon0 + lon*degrees, lat * degrees
}

// Ecuador's mainland lies in UTM zone 17 south. Projected data without a
// declared CRS is assumed to use it.
var defaultProjected = UTM{Zone: 17, South: true}

var (
	epsgRe   = regexp.MustCompile(`(?i)EPSG:{1,2}(?:[\d.]*:)?(\d{4,5})\b`)
	utmZone  = regexp.MustCompile(`(?i)UTM[ _]*zone[ _]*(\d{1,2})\s*([NS])?`)
	crs84Re  = regexp.MustCompile(`(?i)CRS:?84`)
	southRe  = regexp.MustCompile(`(?i)(false_northing"?,\s*10000000|south)`)
	geogcsRe = regexp.MustCompile(`(?i)^\s*GEOGCS\[`)
)

// ParseCRS interprets a GeoJSON crs name or the text of a .prj file. The
// second result is false when the CRS is not recognized.
func ParseCRS(s string) (Projection, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return geographic{}, true
	}

	if m := utmZone.FindStringSubmatch(s); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			south := strings.EqualFold(m[2], "S")
			if m[2] == "" {
				south = southRe.MatchString(s)
			}
			return UTM{Zone: zone, South: south}, true
		}
	}

	if crs84Re.MatchString(s) || geogcsRe.MatchString(s) {
		return geographic{}, true
	}

	if m := epsgRe.FindStringSubmatch(s); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 4326 || code == 4979 || code == 4674 || code == 4248:
			return geographic{}, true
		case code > 32600 && code <= 32660:
			return UTM{Zone: code - 32600}, true
		case code > 32700 && code <= 32760:
			return UTM{Zone: code - 32700, South: true}, true
		case code >= 31965 && code <= 31985:
			// SIRGAS 2000 / UTM zones 11N..22N then 17S..25S share the
			// GRS80 ellipsoid, indistinguishable from WGS84 here.
			if code <= 31976 {
				return UTM{Zone: code - 31965 + 11}, true
			}
			return UTM{Zone: code - 31977 + 17, South: true}, true
		}
	}

	return geographic{}, false
}

// reproject rewrites g's coordinates in place.
func reproject(g geom.T, p Projection) {
	if _, ok := p.(geographic); ok {
		return
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = p.ToLonLat(flat[i], flat[i+1])
	}
}

// looksProjected reports whether bounds fall outside geographic ranges.
func looksProjected(b *geom.Bounds) bool {
	if b == nil || b.IsEmpty() {
		return false
	}
	return math.Abs(b.Min(0)) > 180 || math.Abs(b.Max(0)) > 180 ||
		math.Abs(b.Min(1)) > 90 || math.Abs(b.Max(1)) > 90
}

package boundary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/model"
)

// Two provinces as simple squares. The Pichincha square has a hole around
// its center.
const testCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"DPA_DESPAR": "IÑAQUITO", "DPA_DESPRO": "PICHINCHA", "AREA": 12.5},
      "geometry": {
        "type": "Polygon",
        "coordinates": [
          [[-78.6, -0.4], [-78.3, -0.4], [-78.3, 0.0], [-78.6, 0.0], [-78.6, -0.4]],
          [[-78.5, -0.25], [-78.4, -0.25], [-78.4, -0.15], [-78.5, -0.15], [-78.5, -0.25]]
        ]
      }
    },
    {
      "type": "Feature",
      "properties": {"DPA_DESPAR": "TARQUI", "DPA_DESPRO": "GUAYAS"},
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [
          [[[-80.0, -2.4], [-79.7, -2.4], [-79.7, -2.0], [-80.0, -2.0], [-80.0, -2.4]]]
        ]
      }
    },
    {
      "type": "Feature",
      "properties": {"DPA_DESPAR": "PUNTO", "DPA_DESPRO": "GUAYAS"},
      "geometry": {"type": "Point", "coordinates": [-79.9, -2.2]}
    }
  ]
}`

func readTestCollection(t *testing.T) *Dataset {
	t.Helper()
	ds, err := ReadGeoJSON([]byte(testCollection))
	require.NoError(t, err)
	return ds
}

func TestReadGeoJSON(t *testing.T) {
	t.Parallel()

	ds := readTestCollection(t)
	require.Len(t, ds.Features, 2)
	assert.Equal(t, 1, ds.Skipped)
	assert.Equal(t, "EPSG:4326", ds.Projection)
	assert.Empty(t, ds.Warnings)

	f := ds.Features[0]
	assert.Equal(t, []string{"AREA", "DPA_DESPAR", "DPA_DESPRO"}, f.Keys)
	assert.Equal(t, []string{"DPA_DESPAR", "DPA_DESPRO"}, f.TextKeys)
	assert.Equal(t, "12.5", f.Get("AREA"))
	assert.Equal(t, "IÑAQUITO", f.Get("DPA_DESPAR"))
	assert.Equal(t, 2, f.Geometry.Polygon(0).NumLinearRings())
}

func TestReadGeoJSON_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ReadGeoJSON([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestNewResolver_FiltersProvince(t *testing.T) {
	t.Parallel()

	r := NewResolver(readTestCollection(t), "Pichincha")
	assert.True(t, r.Filtered)
	assert.Equal(t, "DPA_DESPRO", r.ProvinceField)
	assert.Equal(t, "DPA_DESPAR", r.NameField)
	require.Equal(t, 1, r.Len())

	c, ok := r.Centroids()["iñaquito"]
	require.True(t, ok)
	assert.InDelta(t, -0.2, c.Lat, 1e-9)
	assert.InDelta(t, -78.45, c.Lon, 1e-9)
	assert.Equal(t, []string{"iñaquito"}, r.Names())
	assert.Equal(t, 1, r.Union().NumPolygons())
}

func TestResolverContains(t *testing.T) {
	t.Parallel()

	r := NewResolver(readTestCollection(t), "PICHINCHA")

	tests := []struct {
		name  string
		coord model.Coordinate
		want  bool
	}{
		{"interior", model.Coordinate{Lat: -0.35, Lon: -78.55}, true},
		{"outer edge counts", model.Coordinate{Lat: 0.0, Lon: -78.45}, true},
		{"vertex counts", model.Coordinate{Lat: -0.4, Lon: -78.6}, true},
		{"inside hole", model.Coordinate{Lat: -0.2, Lon: -78.45}, false},
		{"hole edge counts", model.Coordinate{Lat: -0.2, Lon: -78.5}, true},
		{"other province", model.Coordinate{Lat: -2.2, Lon: -79.85}, false},
		{"outside bbox", model.Coordinate{Lat: 1.0, Lon: -78.45}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.Contains(tt.coord))
		})
	}
}

func TestNewResolver_NoProvinceField(t *testing.T) {
	t.Parallel()

	ds := readTestCollection(t)
	for i := range ds.Features {
		delete(ds.Features[i].Properties, "DPA_DESPRO")
		ds.Features[i].Keys = []string{"AREA", "DPA_DESPAR"}
	}

	r := NewResolver(ds, "Pichincha")
	assert.False(t, r.Filtered)
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Centroids(), 2)
	assert.True(t, r.Contains(model.Coordinate{Lat: -2.2, Lon: -79.85}))
}

func TestNewResolver_SharedNameWeightedByArea(t *testing.T) {
	t.Parallel()

	const fc = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"nombre":"Chilla","provincia":"El Oro"},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
	  {"type":"Feature","properties":{"nombre":"CHILLA","provincia":"El Oro"},
	   "geometry":{"type":"Polygon","coordinates":[[[2,0],[5,0],[5,1],[2,1],[2,0]]]}}
	]}`
	ds, err := ReadGeoJSON([]byte(fc))
	require.NoError(t, err)

	r := NewResolver(ds, "el oro")
	require.Len(t, r.Centroids(), 1)
	c := r.Centroids()["chilla"]
	// Areas 1 and 3 with centroids x=0.5 and x=3.5.
	assert.InDelta(t, 2.75, c.Lon, 1e-9)
	assert.InDelta(t, 0.5, c.Lat, 1e-9)
}

func TestNewResolver_NameFallsBackToFirstProperty(t *testing.T) {
	t.Parallel()

	const fc = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"codigo":"170150","prov_name":"Pichincha"},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
	]}`
	ds, err := ReadGeoJSON([]byte(fc))
	require.NoError(t, err)

	r := NewResolver(ds, "Pichincha")
	assert.Equal(t, "prov_name", r.ProvinceField)
	assert.Empty(t, r.NameField)
	assert.Contains(t, r.Centroids(), "170150")
}

func TestNewResolver_NameFallbackSkipsNumericProperties(t *testing.T) {
	t.Parallel()

	const fc = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"DPA_PARROQ":170150,"etiqueta":" La Merced ","prov_name":"Pichincha"},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
	]}`
	ds, err := ReadGeoJSON([]byte(fc))
	require.NoError(t, err)
	assert.Equal(t, "170150", ds.Features[0].Get("DPA_PARROQ"))

	r := NewResolver(ds, "Pichincha")
	assert.Empty(t, r.NameField)
	assert.Contains(t, r.Centroids(), "la merced")
	assert.NotContains(t, r.Centroids(), "170150")
}

func TestNilResolver(t *testing.T) {
	t.Parallel()

	var r *Resolver
	assert.False(t, r.HasPolygons())
	assert.False(t, r.Contains(model.Coordinate{}))
	assert.Nil(t, r.Centroids())
	assert.Zero(t, r.Len())
	assert.Equal(t, "boundary(none)", r.String())
}

// writeSquareShapefile writes clockwise squares (x0, y0, size) with a
// NOMBRE and PROVINCIA attribute each.
func writeSquareShapefile(t *testing.T, path string, squares [][3]float64, names, provinces []string) {
	t.Helper()

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NOMBRE", 40),
		shp.StringField("PROVINCIA", 40),
	}))
	for i, sq := range squares {
		x0, y0, s := sq[0], sq[1], sq[2]
		ring := []shp.Point{
			{X: x0, Y: y0}, {X: x0, Y: y0 + s}, {X: x0 + s, Y: y0 + s}, {X: x0 + s, Y: y0}, {X: x0, Y: y0},
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
		row := w.Write(&poly)
		require.NoError(t, w.WriteAttribute(int(row), 0, names[i]))
		require.NoError(t, w.WriteAttribute(int(row), 1, provinces[i]))
	}
	w.Close()

	// go-shp names the attribute file "<base>dbf" without the dot.
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	_, err = os.Stat(base + ".dbf")
	require.NoError(t, err)
}

func TestReadShapefile_Geographic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "parroquias.shp")
	writeSquareShapefile(t, path,
		[][3]float64{{-78.6, -0.4, 0.3}, {-80.0, -2.4, 0.3}},
		[]string{"Belisario Quevedo", "Tarqui"},
		[]string{"PICHINCHA", "GUAYAS"},
	)

	ds, err := Open(path)
	require.NoError(t, err)
	require.Len(t, ds.Features, 2)
	assert.Equal(t, "EPSG:4326", ds.Projection)
	assert.Equal(t, "Belisario Quevedo", ds.Features[0].Get("NOMBRE"))

	r := NewResolver(ds, "Pichincha")
	require.Equal(t, 1, r.Len())
	c := r.Centroids()["belisario quevedo"]
	assert.InDelta(t, -0.25, c.Lat, 1e-9)
	assert.InDelta(t, -78.45, c.Lon, 1e-9)
	assert.True(t, r.Contains(model.Coordinate{Lat: -0.3, Lon: -78.5}))
}

func TestReadShapefile_UTMWithPrj(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "parroquias.shp")
	// 2 km square centred on a point near Quito in zone 17S.
	writeSquareShapefile(t, path,
		[][3]float64{{781861.4574558211 - 1000, 9980007.566888502 - 1000, 2000}},
		[]string{"Centro Historico"},
		[]string{"PICHINCHA"},
	)
	prj := `PROJCS["WGS_1984_UTM_Zone_17S",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",10000000.0]]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parroquias.prj"), []byte(prj), 0o644))

	ds, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32717", ds.Projection)
	assert.Empty(t, ds.Warnings)

	r := NewResolver(ds, "Pichincha")
	c := r.Centroids()["centro historico"]
	assert.InDelta(t, -0.1807, c.Lat, 1e-4)
	assert.InDelta(t, -78.4678, c.Lon, 1e-4)
	assert.True(t, r.Contains(model.Coordinate{Lat: -0.1807, Lon: -78.4678}))
}

func TestReadShapefile_ProjectedWithoutPrj(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "parroquias.shp")
	writeSquareShapefile(t, path,
		[][3]float64{{625535.3712030724 - 500, 9757957.083907302 - 500, 1000}},
		[]string{"Tarqui"},
		[]string{"GUAYAS"},
	)

	ds, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32717", ds.Projection)
	require.Len(t, ds.Warnings, 1)

	c := NewResolver(ds, "Guayas").Centroids()["tarqui"]
	assert.InDelta(t, -2.1894, c.Lat, 1e-4)
	assert.InDelta(t, -79.8711, c.Lon, 1e-4)
}

func TestOpen_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := Open("parroquias.kml")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "parroquias.geojson")
	require.NoError(t, os.WriteFile(good, []byte(testCollection), 0o644))
	broken := filepath.Join(dir, "broken.geojson")
	require.NoError(t, os.WriteFile(broken, []byte("not json"), 0o644))

	t.Run("none found", func(t *testing.T) {
		t.Parallel()
		n := model.NewNarrative(zap.NewNop())
		r := Load([]string{filepath.Join(dir, "missing.geojson")}, "Pichincha", n)
		assert.Nil(t, r)
		require.Len(t, n.Messages, 1)
		assert.Equal(t, model.LevelInfo, n.Messages[0].Level)
	})

	t.Run("skips broken candidate", func(t *testing.T) {
		t.Parallel()
		n := model.NewNarrative(zap.NewNop())
		r := Load([]string{broken, good}, "Pichincha", n)
		require.NotNil(t, r)
		assert.Equal(t, good, r.Path)
		assert.Equal(t, 1, r.Len())
		assert.Len(t, n.Warnings(), 1)
	})
}

func TestParseCRS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		want  string
		known bool
	}{
		{"", "EPSG:4326", true},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", "EPSG:4326", true},
		{"urn:ogc:def:crs:EPSG::4326", "EPSG:4326", true},
		{"EPSG:32717", "EPSG:32717", true},
		{"urn:ogc:def:crs:EPSG::32617", "EPSG:32617", true},
		{"EPSG:31992", "EPSG:4326", false},
		{"EPSG:31977", "EPSG:32717", true},
		{"EPSG:31971", "EPSG:32617", true},
		{`PROJCS["WGS 84 / UTM zone 17S"]`, "EPSG:32717", true},
		{`PROJCS["PSAD56 / UTM zone 17",PARAMETER["false_northing",10000000]]`, "EPSG:32717", true},
		{`GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984"]]`, "EPSG:4326", true},
		{"LOCAL_CS[\"unknown\"]", "EPSG:4326", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			p, ok := ParseCRS(tt.in)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestUTMToLonLat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		zone     UTM
		e, n     float64
		lat, lon float64
	}{
		{"zone 32N", UTM{Zone: 32}, 395201.31037951505, 5673135.240726724, 51.2, 7.5},
		{"quito", UTM{Zone: 17, South: true}, 781861.4574558211, 9980007.566888502, -0.1807, -78.4678},
		{"guayaquil", UTM{Zone: 17, South: true}, 625535.3712030724, 9757957.083907302, -2.1894, -79.8711},
		{"latacunga", UTM{Zone: 17, South: true}, 767105.7950292372, 9900434.966506043, -0.9, -78.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lon, lat := tt.zone.ToLonLat(tt.e, tt.n)
			assert.InDelta(t, tt.lat, lat, 1e-6)
			assert.InDelta(t, tt.lon, lon, 1e-6)
		})
	}
}

package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/schema"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"-0.1807", -0.1807, true},
		{" -78,4678 ", -78.4678, true},
		{"12", 12, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"1,234.5", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lat, lon float64
		want     model.Coordinate
		ok       bool
	}{
		{"valid as is", 5, 95, model.Coordinate{Lat: 5, Lon: 95}, true},
		{"in range but suspicious kept", -78.4678, -0.1807, model.Coordinate{Lat: -78.4678, Lon: -0.1807}, true},
		{"lat out of range swapped", 120, -0.18, model.Coordinate{Lat: -0.18, Lon: 120}, true},
		{"lon out of range not swappable", -78.4678, 200, model.Coordinate{}, false},
		{"lat 200 lon 45", 200, 45, model.Coordinate{}, false},
		{"lat 45 lon 200", 45, 200, model.Coordinate{}, false},
		{"lat -200 lon 10", -200, 10, model.Coordinate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Normalize(tt.lat, tt.lon)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	headers := []string{"ESTADO_CONTRIBUYENTE", "Latitud", "Longitud"}
	e := NewExtractor(schema.DetectAll(headers))
	require.True(t, e.Enabled())
	assert.Equal(t, "Latitud", e.LatColumn)
	assert.Equal(t, "Longitud", e.LonColumn)

	tbl := model.NewTable("x", headers, [][]string{
		{"ACTIVO", "-0,2201", "-78,5123"},
		{"ACTIVO", "-78.5", "-0.2"},
		{"ACTIVO", "", "-78.5"},
		{"ACTIVO", "200", "45"},
		{"ACTIVO", "100,5", "-0,2"},
	})

	c, ok := e.Extract(tbl.Rows[0])
	require.True(t, ok)
	assert.InDelta(t, -0.2201, c.Lat, 1e-12)
	assert.InDelta(t, -78.5123, c.Lon, 1e-12)

	c, ok = e.Extract(tbl.Rows[1])
	require.True(t, ok)
	assert.Equal(t, model.Coordinate{Lat: -78.5, Lon: -0.2}, c)

	_, ok = e.Extract(tbl.Rows[2])
	assert.False(t, ok)
	_, ok = e.Extract(tbl.Rows[3])
	assert.False(t, ok)

	c, ok = e.Extract(tbl.Rows[4])
	require.True(t, ok)
	assert.Equal(t, model.Coordinate{Lat: -0.2, Lon: 100.5}, c)
}

func TestExtractor_NoColumns(t *testing.T) {
	t.Parallel()

	e := NewExtractor(schema.DetectAll([]string{"RAZON_SOCIAL", "ESTADO_CONTRIBUYENTE"}))
	assert.False(t, e.Enabled())
	_, ok := e.Extract(model.Record{Values: map[string]string{"RAZON_SOCIAL": "x"}})
	assert.False(t, ok)
}

func TestJitter_Deterministic(t *testing.T) {
	t.Parallel()

	base := model.Coordinate{Lat: -0.18, Lon: -78.46}
	a := Jitter(base, "0-Iñaquito", DefaultJitter)
	b := Jitter(base, "0-Iñaquito", DefaultJitter)
	assert.Equal(t, a, b)

	assert.InDelta(t, -0.17975725815927351, a.Lat, 1e-15)
	assert.InDelta(t, -78.46027924254467, a.Lon, 1e-12)

	c := Jitter(base, "7-", DefaultJitter)
	assert.NotEqual(t, a, c)
	assert.LessOrEqual(t, HaversineKM(base, c), 0.1)
}

func TestJitter_ZeroMagnitude(t *testing.T) {
	t.Parallel()

	base := model.Coordinate{Lat: 1, Lon: 2}
	assert.Equal(t, base, Jitter(base, "k", 0))
}

func TestHaversineKM(t *testing.T) {
	t.Parallel()

	quito := model.Coordinate{Lat: -0.1807, Lon: -78.4678}
	guayaquil := model.Coordinate{Lat: -2.1894, Lon: -79.8711}

	assert.InDelta(t, 272.44, HaversineKM(quito, guayaquil), 0.01)
	assert.Zero(t, HaversineKM(quito, quito))
	assert.False(t, Within(quito, guayaquil, 200))
	assert.True(t, Within(quito, guayaquil, 300))
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "iñaquito", NormalizeName("  IÑAQUITO "))
	assert.Equal(t, "cumbaya", NormalizeName("PICHINCHA;QUITO; CUMBAYA"))
	assert.Equal(t, "", NormalizeName("   "))
	assert.Equal(t, "", NormalizeName("QUITO;"))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Similarity("San José", "san jose"), 1e-12)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-12)
	assert.InDelta(t, 0.875, Similarity("cumbaya", "cumbayaa"), 1e-12)
	assert.Less(t, Similarity("quito", "guayaquil"), 0.7)
}

func TestBestMatch(t *testing.T) {
	t.Parallel()

	candidates := []string{"conocoto", "cumbayá", "calderón"}

	got, score, ok := BestMatch("cumbaya ", candidates, 0.7)
	require.True(t, ok)
	assert.Equal(t, "cumbayá", got)
	assert.InDelta(t, 1.0, score, 1e-12)

	got, _, ok = BestMatch("calderon norte", candidates, 0.5)
	require.True(t, ok)
	assert.Equal(t, "calderón", got)

	_, _, ok = BestMatch("tumbaco", candidates, 0.7)
	assert.False(t, ok)
}

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/province"
	"github.com/sells-group/bookmap/internal/store"
	"github.com/sells-group/bookmap/pkg/geocode"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Source:    "librerias_pichincha.csv",
			Province:  "Pichincha",
			Counters:  model.Counters{Total: 10, Placed: 7, ExcludedOutside: 2, Unplaceable: 1},
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Source:    "a_very_long_registry_export_name_for_guayas.csv",
			Province:  "Guayas",
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "PROVINCE")
	assert.Contains(t, output, "UNPLACEABLE")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "Pichincha")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "a_very_long_registry_export...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatCacheStats(t *testing.T) {
	var buf bytes.Buffer
	formatCacheStats(&buf, "file", geocode.Stats{Entries: 3, Positives: 2, Negatives: 1})

	output := buf.String()
	assert.Contains(t, output, "file")
	assert.Regexp(t, `Entries:\s+3`, output)
	assert.Regexp(t, `Found:\s+2`, output)
	assert.Regexp(t, `Not found:\s+1`, output)
}

func TestFormatProvinces(t *testing.T) {
	var buf bytes.Buffer
	formatProvinces(&buf, province.DefaultCatalog().All())

	output := buf.String()
	assert.Contains(t, output, "PROVINCE")
	assert.Regexp(t, `Pichincha\s+-0\.1807\s+-78\.4678`, output)
	assert.Contains(t, output, "Galápagos")
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{"", 0},
		{"|", '|'},
		{";", ';'},
		{"tab", '\t'},
		{"TAB", '\t'},
		{`\t`, '\t'},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDelimiter(tt.in), "input %q", tt.in)
	}
}

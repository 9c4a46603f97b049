package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "Pichincha", cfg.Province.Default)
	assert.Empty(t, cfg.Province.Name)
	assert.Equal(t, []string{"464993", "G4761", "G47610", "G476101", "G477401"}, cfg.Classify.Codes)
	assert.Equal(t, []string{"ACTIVO", "ACTIVE"}, cfg.Classify.ActiveMarkers)
	assert.Len(t, cfg.Boundary.Paths, 4)
	assert.Equal(t, "parroquias.geojson", cfg.Boundary.Paths[0])
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocode.BaseURL)
	assert.Equal(t, "Ecuador", cfg.Geocode.Country)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)
	assert.Equal(t, 600, cfg.Geocode.MinIntervalMS)
	assert.Equal(t, "file", cfg.Geocode.Cache.Driver)
	assert.Equal(t, "geocode_cache.json", cfg.Geocode.Cache.Path)
	assert.InDelta(t, 200.0, cfg.Resolve.RadiusKM, 0.001)
	assert.InDelta(t, 0.7, cfg.Resolve.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.0005, cfg.Resolve.JitterMagnitude, 1e-9)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.Equal(t, "bookmap_runs.db", cfg.History.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
province:
  name: Guayas
geocode:
  cache:
    driver: sqlite
    path: cache.db
resolve:
  radius_km: 150
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "Guayas", cfg.Province.Name)
	assert.Equal(t, "sqlite", cfg.Geocode.Cache.Driver)
	assert.Equal(t, "cache.db", cfg.Geocode.Cache.Path)
	assert.InDelta(t, 150.0, cfg.Resolve.RadiusKM, 0.001)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "Ecuador", cfg.Geocode.Country)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
geocode:
  cache:
    driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("BOOKMAP_GEOCODE_CACHE_DRIVER", "redis")
	t.Setenv("BOOKMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Geocode.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("BOOKMAP_SERVER_PORT", "3000")
	t.Setenv("BOOKMAP_PROVINCE_NAME", "Loja")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "Loja", cfg.Province.Name)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Classify.Codes = []string{"G4761"}
	cfg.Geocode.BaseURL = "https://nominatim.openstreetmap.org"
	cfg.Geocode.Cache.Driver = "file"
	cfg.Geocode.Cache.Path = "geocode_cache.json"
	cfg.Resolve.RadiusKM = 200
	cfg.Resolve.SimilarityThreshold = 0.7
	cfg.Resolve.JitterMagnitude = 0.0005
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateAnalyze_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("analyze"))
}

func TestValidateAnalyze_BadResolveSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolve.RadiusKM = 0
	cfg.Resolve.SimilarityThreshold = 1.5
	cfg.Classify.Codes = nil

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve.radius_km must be > 0")
	assert.Contains(t, err.Error(), "resolve.similarity_threshold")
	assert.Contains(t, err.Error(), "classify.codes must not be empty")
}

func TestValidateOfflineNeedsNoBaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.BaseURL = ""

	assert.Error(t, cfg.Validate("analyze"))

	cfg.Geocode.Offline = true
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateCacheDrivers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without dsn", func(c *Config) { c.Geocode.Cache.Driver = "postgres" }, "geocode.cache.dsn is required"},
		{"redis without addr", func(c *Config) { c.Geocode.Cache.Driver = "redis" }, "geocode.cache.redis_addr is required"},
		{"unknown driver", func(c *Config) { c.Geocode.Cache.Driver = "memcached" }, "geocode.cache.driver must be one of"},
		{"sqlite without path", func(c *Config) {
			c.Geocode.Cache.Driver = "sqlite"
			c.Geocode.Cache.Path = ""
		}, "geocode.cache.path is required for the sqlite driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("cache")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateHistoryDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.History.Driver = "none"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.History.Driver = "postgres"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history.dsn is required")

	cfg.History.Driver = "mysql"
	err = cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history.driver must be one of")

	cfg.History.Driver = "sqlite"
	cfg.History.Path = "runs.db"
	assert.NoError(t, cfg.Validate("analyze"))
}

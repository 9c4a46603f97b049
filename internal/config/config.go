package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Province ProvinceConfig `yaml:"province" mapstructure:"province"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Resolve  ResolveConfig  `yaml:"resolve" mapstructure:"resolve"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InputConfig configures table loading.
type InputConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"` // empty = sniff
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// ProvinceConfig selects the active province.
type ProvinceConfig struct {
	// Name forces the province; empty means detect from the input.
	Name string `yaml:"name" mapstructure:"name"`
	// Default is used when detection finds nothing.
	Default     string `yaml:"default" mapstructure:"default"`
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ClassifyConfig configures the bookstore filter.
type ClassifyConfig struct {
	Codes         []string `yaml:"codes" mapstructure:"codes"`
	ActiveMarkers []string `yaml:"active_markers" mapstructure:"active_markers"`
}

// BoundaryConfig lists candidate parish boundary files.
type BoundaryConfig struct {
	Paths []string `yaml:"paths" mapstructure:"paths"`
}

// GeocodeConfig configures remote lookup and its cache.
type GeocodeConfig struct {
	BaseURL       string             `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string             `yaml:"user_agent" mapstructure:"user_agent"`
	Country       string             `yaml:"country" mapstructure:"country"`
	TimeoutSecs   int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMS int                `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	RatePerSec    float64            `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Offline       bool               `yaml:"offline" mapstructure:"offline"`
	Cache         GeocodeCacheConfig `yaml:"cache" mapstructure:"cache"`
}

// GeocodeCacheConfig selects the cache store.
type GeocodeCacheConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // file | sqlite | postgres | redis
	Path      string `yaml:"path" mapstructure:"path"`
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisKey  string `yaml:"redis_key" mapstructure:"redis_key"`
}

// ResolveConfig tunes the location pipeline.
type ResolveConfig struct {
	RadiusKM            float64 `yaml:"radius_km" mapstructure:"radius_km"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	JitterMagnitude     float64 `yaml:"jitter_magnitude" mapstructure:"jitter_magnitude"`
}

// OutputConfig configures written artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RatePerMinute  float64  `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// HistoryConfig selects the run history store.
type HistoryConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // none | sqlite | postgres
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BOOKMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.delimiter", "")
	v.SetDefault("input.sheet", "")
	v.SetDefault("province.name", "")
	v.SetDefault("province.default", "Pichincha")
	v.SetDefault("province.catalog_path", "provinces.yaml")
	v.SetDefault("classify.codes", []string{"464993", "G4761", "G47610", "G476101", "G477401"})
	v.SetDefault("classify.active_markers", []string{"ACTIVO", "ACTIVE"})
	v.SetDefault("boundary.paths", []string{
		"parroquias.geojson", "data/parroquias.geojson",
		"parroquias.shp", "data/parroquias.shp",
	})
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "libros-streamlit-app/1.0")
	v.SetDefault("geocode.country", "Ecuador")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.min_interval_ms", 600)
	v.SetDefault("geocode.rate_per_sec", 1.0)
	v.SetDefault("geocode.offline", false)
	v.SetDefault("geocode.cache.driver", "file")
	v.SetDefault("geocode.cache.path", "geocode_cache.json")
	v.SetDefault("geocode.cache.dsn", "")
	v.SetDefault("geocode.cache.redis_addr", "")
	v.SetDefault("geocode.cache.redis_key", "bookmap:geocode")
	v.SetDefault("resolve.radius_km", 200.0)
	v.SetDefault("resolve.similarity_threshold", 0.7)
	v.SetDefault("resolve.jitter_magnitude", 0.0005)
	v.SetDefault("output.dir", "out")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.rate_per_minute", 6.0)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "bookmap_runs.db")
	v.SetDefault("history.dsn", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is "analyze",
// "serve" or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze", "serve":
		if c.Resolve.RadiusKM <= 0 {
			errs = append(errs, "resolve.radius_km must be > 0")
		}
		if c.Resolve.SimilarityThreshold <= 0 || c.Resolve.SimilarityThreshold > 1 {
			errs = append(errs, "resolve.similarity_threshold must be in (0, 1]")
		}
		if c.Resolve.JitterMagnitude < 0 {
			errs = append(errs, "resolve.jitter_magnitude must be >= 0")
		}
		if len(c.Classify.Codes) == 0 {
			errs = append(errs, "classify.codes must not be empty")
		}
		if !c.Geocode.Offline && c.Geocode.BaseURL == "" {
			errs = append(errs, "geocode.base_url is required unless geocode.offline is set")
		}
		errs = append(errs, c.validateCache()...)
		errs = append(errs, c.validateHistory()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "cache":
		errs = append(errs, c.validateCache()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateCache() []string {
	switch c.Geocode.Cache.Driver {
	case "file", "sqlite":
		if c.Geocode.Cache.Path == "" {
			return []string{"geocode.cache.path is required for the " + c.Geocode.Cache.Driver + " driver"}
		}
	case "postgres":
		if c.Geocode.Cache.DSN == "" {
			return []string{"geocode.cache.dsn is required for the postgres driver"}
		}
	case "redis":
		if c.Geocode.Cache.RedisAddr == "" {
			return []string{"geocode.cache.redis_addr is required for the redis driver"}
		}
	default:
		return []string{"geocode.cache.driver must be one of file, sqlite, postgres, redis"}
	}
	return nil
}

func (c *Config) validateHistory() []string {
	switch c.History.Driver {
	case "", "none":
	case "sqlite":
		if c.History.Path == "" {
			return []string{"history.path is required for the sqlite driver"}
		}
	case "postgres":
		if c.History.DSN == "" {
			return []string{"history.dsn is required for the postgres driver"}
		}
	default:
		return []string{"history.driver must be one of none, sqlite, postgres"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/analysis"
	"github.com/sells-group/bookmap/internal/classify"
	"github.com/sells-group/bookmap/internal/config"
	"github.com/sells-group/bookmap/internal/fetcher"
	"github.com/sells-group/bookmap/internal/province"
	"github.com/sells-group/bookmap/internal/store"
	"github.com/sells-group/bookmap/pkg/geocode"
)

// analyzeEnv holds the collaborators needed by the analyze and serve
// commands.
type analyzeEnv struct {
	Analyzer *analysis.Analyzer
	Cache    geocode.Store
	History  store.Store // nil when history is disabled
}

// Close releases the cache and history stores.
func (e *analyzeEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.History != nil {
		_ = e.History.Close()
	}
}

// envOptions carries per-command overrides of the loaded config.
type envOptions struct {
	Mode      string // "analyze" or "serve"
	Offline   bool
	RunSubdir bool
}

// initEnv validates the config, opens the geocode cache and run history,
// and builds the Analyzer. Callers should defer env.Close().
func initEnv(ctx context.Context, o envOptions) (*analyzeEnv, error) {
	if err := cfg.Validate(o.Mode); err != nil {
		return nil, err
	}

	catalog, err := province.LoadCatalog(cfg.Province.CatalogPath)
	if err != nil {
		return nil, err
	}

	cache := openCacheOrFile(ctx, cfg.Geocode.Cache)

	// A cache-only resolver still answers from earlier runs.
	var searcher geocode.Searcher
	if !o.Offline && !cfg.Geocode.Offline {
		searcher = geocode.NewClient(
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithTimeout(time.Duration(cfg.Geocode.TimeoutSecs)*time.Second),
			geocode.WithRateLimit(cfg.Geocode.RatePerSec),
		)
	} else {
		zap.L().Info("geocoding offline, using cached answers only")
	}
	resolver := geocode.NewResolver(cache, searcher,
		geocode.WithCountry(cfg.Geocode.Country),
		geocode.WithInterval(time.Duration(cfg.Geocode.MinIntervalMS)*time.Millisecond),
	)

	hist, err := store.Open(ctx, store.Config{
		Driver: cfg.History.Driver,
		Path:   cfg.History.Path,
		DSN:    cfg.History.DSN,
	})
	if err != nil {
		zap.L().Warn("run history unavailable, continuing without it", zap.Error(err))
		hist = nil
	}

	options := []analysis.Option{
		analysis.WithGeocoder(resolver),
		analysis.WithProgress(newProgress(os.Stderr)),
	}
	if hist != nil {
		options = append(options, analysis.WithHistory(hist))
	}

	opts := analysisOptions()
	opts.RunSubdir = o.RunSubdir
	a := analysis.New(catalog, classify.NewFilter(cfg.Classify.Codes, cfg.Classify.ActiveMarkers), opts, options...)

	zap.L().Info("analyzer ready",
		zap.Int("provinces", len(catalog.All())),
		zap.String("cache_driver", cfg.Geocode.Cache.Driver),
		zap.String("history_driver", cfg.History.Driver),
		zap.Bool("offline", searcher == nil),
	)
	return &analyzeEnv{Analyzer: a, Cache: cache, History: hist}, nil
}

// fallbackCachePath is the JSON cache used by analyze and serve when the
// configured store cannot be opened.
const fallbackCachePath = "geocode_cache.json"

// initCache opens the configured geocode cache store.
func initCache(ctx context.Context) (geocode.Store, error) {
	return openCache(ctx, cfg.Geocode.Cache)
}

func openCache(ctx context.Context, c config.GeocodeCacheConfig) (geocode.Store, error) {
	s, err := geocode.OpenStore(ctx, geocode.StoreConfig{
		Driver:    c.Driver,
		Path:      c.Path,
		DSN:       c.DSN,
		RedisAddr: c.RedisAddr,
		RedisKey:  c.RedisKey,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open geocode cache")
	}
	return s, nil
}

// openCacheOrFile opens the configured store, falling back to the JSON
// file store so a run never fails on an unreachable cache.
func openCacheOrFile(ctx context.Context, c config.GeocodeCacheConfig) geocode.Store {
	s, err := openCache(ctx, c)
	if err == nil {
		return s
	}
	path := c.Path
	if c.Driver != geocode.DriverFile || path == "" {
		path = fallbackCachePath
	}
	zap.L().Warn("geocode cache unavailable, using file cache",
		zap.String("driver", c.Driver),
		zap.String("path", path),
		zap.Error(err),
	)
	return geocode.NewFileStore(path)
}

// analysisOptions maps the loaded config onto analysis.Options.
func analysisOptions() analysis.Options {
	return analysis.Options{
		Province:            cfg.Province.Name,
		DefaultProvince:     cfg.Province.Default,
		BoundaryPaths:       cfg.Boundary.Paths,
		RadiusKM:            cfg.Resolve.RadiusKM,
		SimilarityThreshold: cfg.Resolve.SimilarityThreshold,
		JitterMagnitude:     cfg.Resolve.JitterMagnitude,
		OutputDir:           cfg.Output.Dir,
		Load: fetcher.LoadOptions{
			Delimiter: parseDelimiter(cfg.Input.Delimiter),
			SheetName: cfg.Input.Sheet,
		},
	}
}

// parseDelimiter reads the configured delimiter. Empty means sniff; "tab"
// and `\t` name the tab character.
func parseDelimiter(s string) rune {
	switch strings.ToLower(s) {
	case "":
		return 0
	case "tab", `\t`:
		return '\t'
	}
	return []rune(s)[0]
}

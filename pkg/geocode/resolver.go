package geocode

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/model"
)

// DefaultInterval is the pause after each remote call.
const DefaultInterval = time.Second

// ResolverStats counts what a Resolver did.
type ResolverStats struct {
	Lookups     int `json:"lookups"`
	CacheHits   int `json:"cache_hits"`
	RemoteCalls int `json:"remote_calls"`
	Found       int `json:"found"`
	NotFound    int `json:"not_found"`
	StoreErrors int `json:"store_errors"`
}

// Resolver answers place lookups from the store first and falls back to
// the remote searcher, caching both outcomes. Store failures are logged
// and never surface to the caller.
type Resolver struct {
	store    Store
	searcher Searcher // nil means offline: cache only
	country  string
	interval time.Duration
	sleep    func(context.Context, time.Duration)
	stats    ResolverStats
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCountry sets the country appended to every query.
func WithCountry(country string) ResolverOption {
	return func(r *Resolver) {
		r.country = country
	}
}

// WithInterval sets the pause after each remote call.
func WithInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.interval = d
	}
}

// WithSleeper replaces the pause implementation (tests).
func WithSleeper(fn func(context.Context, time.Duration)) ResolverOption {
	return func(r *Resolver) {
		r.sleep = fn
	}
}

// NewResolver builds a resolver. A nil searcher resolves from the store
// only and caches nothing new.
func NewResolver(store Store, searcher Searcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:    store,
		searcher: searcher,
		country:  "Ecuador",
		interval: DefaultInterval,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Offline reports whether remote lookups are disabled.
func (r *Resolver) Offline() bool { return r.searcher == nil }

// Stats returns counters since construction.
func (r *Resolver) Stats() ResolverStats { return r.stats }

// Cached reports whether a lookup for the place is already answered by
// the store, without going remote.
func (r *Resolver) Cached(ctx context.Context, place, canton, province string) bool {
	if strings.TrimSpace(place) == "" {
		return false
	}
	_, ok, err := r.store.Get(ctx, Key(place, canton, province))
	return err == nil && ok
}

// Resolve returns the coordinate for place within canton and province.
// Empty place returns false without any lookup. A cached answer, positive
// or negative, never triggers a remote call. Otherwise exactly one remote
// call is made, its outcome cached, and the resolver pauses for the
// configured interval.
func (r *Resolver) Resolve(ctx context.Context, place, canton, province string) (model.Coordinate, bool) {
	if strings.TrimSpace(place) == "" {
		return model.Coordinate{}, false
	}
	r.stats.Lookups++

	log := zap.L().With(zap.String("component", "geocode"))
	key := Key(place, canton, province)

	e, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.stats.StoreErrors++
		log.Warn("geocode: cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		r.stats.CacheHits++
		return model.Coordinate{Lat: e.Lat, Lon: e.Lon}, e.Found
	}
	if r.searcher == nil {
		return model.Coordinate{}, false
	}

	r.stats.RemoteCalls++
	query := Query(place, canton, province, r.country)
	coord, found, err := r.searcher.Search(ctx, query)
	if err != nil {
		log.Warn("geocode: remote lookup failed", zap.String("query", query), zap.Error(err))
		found = false
	}

	// A cancelled run must not poison the cache with negatives.
	if ctx.Err() == nil {
		entry := Negative
		if found {
			entry = Entry{Found: true, Lat: coord.Lat, Lon: coord.Lon}
		}
		if perr := r.store.Put(ctx, key, entry); perr != nil {
			r.stats.StoreErrors++
			log.Warn("geocode: cache write failed", zap.String("key", key), zap.Error(perr))
		}
	}

	if found {
		r.stats.Found++
	} else {
		r.stats.NotFound++
	}
	r.sleep(ctx, r.interval)
	return coord, found
}

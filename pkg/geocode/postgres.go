package geocode

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bookmap/internal/db"
)

// PostgresStore keeps the cache in public.geocode_cache so several hosts
// can share it.
type PostgresStore struct {
	pool db.Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS public.geocode_cache (
	cache_key TEXT PRIMARY KEY,
	found     BOOLEAN NOT NULL,
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var cacheUpsert = db.UpsertConfig{
	Table:        "public.geocode_cache",
	Columns:      []string{"cache_key", "found", "latitude", "longitude"},
	ConflictKeys: []string{"cache_key"},
	Touch:        []string{"cached_at = now()"},
}

// NewPostgresStore wraps an open pool. Call Migrate once before use.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the cache table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		found    bool
		lat, lon float64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT found, COALESCE(latitude, 0), COALESCE(longitude, 0) FROM public.geocode_cache WHERE cache_key = $1`,
		key,
	).Scan(&found, &lat, &lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "postgres: get cache entry")
	}
	if !found {
		return Negative, true, nil
	}
	return Entry{Found: true, Lat: lat, Lon: lon}, true, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO public.geocode_cache (cache_key, found, latitude, longitude, cached_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (cache_key) DO UPDATE SET
			found = EXCLUDED.found,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			cached_at = now()`,
		key, e.Found, nullCoord(e, e.Lat), nullCoord(e, e.Lon),
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

// PutMany implements BulkPutter with a COPY-based upsert.
func (s *PostgresStore) PutMany(ctx context.Context, entries map[string]Entry) error {
	rows := make([][]any, 0, len(entries))
	for k, e := range entries {
		rows = append(rows, []any{k, e.Found, nullCoord(e, e.Lat), nullCoord(e, e.Lon)})
	}
	_, err := db.BulkUpsert(ctx, s.pool, cacheUpsert, rows)
	return eris.Wrap(err, "postgres: put cache entries")
}

// Entries implements Lister.
func (s *PostgresStore) Entries(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cache_key, found, COALESCE(latitude, 0), COALESCE(longitude, 0) FROM public.geocode_cache`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cache entries")
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var (
			key      string
			found    bool
			lat, lon float64
		)
		if err := rows.Scan(&key, &found, &lat, &lon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cache entry")
		}
		if found {
			out[key] = Entry{Found: true, Lat: lat, Lon: lon}
		} else {
			out[key] = Negative
		}
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cache entries")
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM public.geocode_cache`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count cache entries")
	}
	return n, nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM public.geocode_cache`)
	return eris.Wrap(err, "postgres: clear cache")
}

// Close implements Store and closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

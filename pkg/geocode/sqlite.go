package geocode

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the cache in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	cache_key TEXT PRIMARY KEY,
	found     INTEGER NOT NULL,
	latitude  REAL,
	longitude REAL,
	cached_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// NewSQLiteStore opens the database at dsn in WAL mode and creates the
// cache table if needed.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		found    bool
		lat, lon sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT found, latitude, longitude FROM geocode_cache WHERE cache_key = ?`, key,
	).Scan(&found, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: get cache entry")
	}
	if !found {
		return Negative, true, nil
	}
	return Entry{Found: true, Lat: lat.Float64, Lon: lon.Float64}, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (cache_key, found, latitude, longitude, cached_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (cache_key) DO UPDATE SET
			found = excluded.found,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			cached_at = excluded.cached_at`,
		key, e.Found, nullCoord(e, e.Lat), nullCoord(e, e.Lon),
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

// PutMany implements BulkPutter inside one transaction.
func (s *SQLiteStore) PutMany(ctx context.Context, entries map[string]Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO geocode_cache (cache_key, found, latitude, longitude, cached_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (cache_key) DO UPDATE SET
			found = excluded.found,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			cached_at = excluded.cached_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare put")
	}
	defer func() { _ = stmt.Close() }()

	for k, e := range entries {
		if _, err := stmt.ExecContext(ctx, k, e.Found, nullCoord(e, e.Lat), nullCoord(e, e.Lon)); err != nil {
			return eris.Wrapf(err, "sqlite: put %s", k)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Entries implements Lister.
func (s *SQLiteStore) Entries(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cache_key, found, latitude, longitude FROM geocode_cache`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cache entries")
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Entry)
	for rows.Next() {
		var (
			key      string
			found    bool
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&key, &found, &lat, &lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cache entry")
		}
		if found {
			out[key] = Entry{Found: true, Lat: lat.Float64, Lon: lon.Float64}
		} else {
			out[key] = Negative
		}
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cache entries")
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geocode_cache`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count cache entries")
	}
	return n, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache`)
	return eris.Wrap(err, "sqlite: clear cache")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullCoord stores negatives with NULL coordinates.
func nullCoord(e Entry, v float64) any {
	if !e.Found {
		return nil
	}
	return v
}

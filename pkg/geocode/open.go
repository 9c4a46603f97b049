package geocode

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bookmap/internal/db"
)

// Cache drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoreConfig selects and locates a cache store.
type StoreConfig struct {
	Driver    string
	Path      string // file and sqlite
	DSN       string // postgres
	RedisAddr string
	RedisKey  string
}

// OpenStore opens the configured store. An empty driver means file.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return NewFileStore(cfg.Path), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DSN, nil)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: open postgres cache")
		}
		s := NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case DriverRedis:
		return OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey)
	default:
		return nil, eris.Errorf("geocode: unknown cache driver %q", cfg.Driver)
	}
}

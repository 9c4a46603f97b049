// Package store keeps a history of analysis runs so the server can list
// past results and serve their reports again.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bookmap/internal/model"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = eris.New("store: run not found")

// Run is the stored summary of one analysis run. Report holds the full
// JSON report as written next to the map.
type Run struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Province  string          `json:"province"`
	Counters  model.Counters  `json:"counters"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Province string `json:"province,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// DefaultLimit caps ListRuns when the filter sets no limit.
const DefaultLimit = 100

// Store persists run summaries.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates the run store.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects the configured store and applies its migration. The
// "none" driver returns a nil store and no error.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		s, err = NewSQLite(cfg.Path)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg.DSN, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

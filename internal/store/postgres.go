package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bookmap/internal/db"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool for dsn.
func NewPostgres(ctx context.Context, dsn string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, dsn, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect run store")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS public.analysis_runs (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	province         TEXT NOT NULL,
	total            INTEGER NOT NULL,
	placed           INTEGER NOT NULL,
	excluded_outside INTEGER NOT NULL,
	unplaceable      INTEGER NOT NULL,
	report           JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_province ON public.analysis_runs(province);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created_at ON public.analysis_runs(created_at DESC);
`

// Migrate creates the runs table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun upserts run by id. A zero CreatedAt is set to now.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	var report any
	if len(run.Report) > 0 {
		report = []byte(run.Report)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO public.analysis_runs (id, source, province, total, placed, excluded_outside, unplaceable, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source, province = EXCLUDED.province,
			total = EXCLUDED.total, placed = EXCLUDED.placed,
			excluded_outside = EXCLUDED.excluded_outside, unplaceable = EXCLUDED.unplaceable,
			report = EXCLUDED.report`,
		run.ID, run.Source, run.Province,
		run.Counters.Total, run.Counters.Placed, run.Counters.ExcludedOutside, run.Counters.Unplaceable,
		report, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

const pgRunColumns = `id, source, province, total, placed, excluded_outside, unplaceable, report, created_at`

// GetRun returns the run with id or ErrNotFound.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM public.analysis_runs WHERE id = $1`, id)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM public.analysis_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Province != "" {
		query += fmt.Sprintf(` AND province = $%d`, argIdx)
		args = append(args, filter.Province)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var (
		r      Run
		report *[]byte
	)
	err := row.Scan(&r.ID, &r.Source, &r.Province,
		&r.Counters.Total, &r.Counters.Placed, &r.Counters.ExcludedOutside, &r.Counters.Unplaceable,
		&report, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if report != nil {
		r.Report = *report
	}
	return &r, nil
}

package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bookmap/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &Run{
		ID:       "run-1",
		Source:   "pichincha_libros.csv",
		Province: "Pichincha",
		Counters: model.Counters{Total: 3, Placed: 1, ExcludedOutside: 1, Unplaceable: 1},
		Report:   json.RawMessage(`{"run_id":"run-1"}`),
	}
	require.NoError(t, st.SaveRun(ctx, run))
	assert.False(t, run.CreatedAt.IsZero())

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "pichincha_libros.csv", got.Source)
	assert.Equal(t, run.Counters, got.Counters)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(got.Report))
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLite_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRun(ctx, &Run{ID: "r", Source: "a.csv", Province: "Guayas"}))
	require.NoError(t, st.SaveRun(ctx, &Run{ID: "r", Source: "b.csv", Province: "Guayas", Counters: model.Counters{Total: 2, Placed: 2}}))

	got, err := st.GetRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "b.csv", got.Source)
	assert.Equal(t, 2, got.Counters.Placed)
	assert.Nil(t, got.Report)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range []string{"Pichincha", "Guayas", "Pichincha"} {
		require.NoError(t, st.SaveRun(ctx, &Run{
			ID:        string(rune('a' + i)),
			Source:    "x.csv",
			Province:  p,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	pich, err := st.ListRuns(ctx, RunFilter{Province: "Pichincha"})
	require.NoError(t, err)
	require.Len(t, pich, 2)
	assert.Equal(t, []string{"c", "a"}, []string{pich[0].ID, pich[1].ID})

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(ctx, Config{Driver: "mongo"})
	assert.Error(t, err)

	s, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	require.NoError(t, s.SaveRun(ctx, &Run{ID: "x", Source: "s", Province: "Loja"}))
	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

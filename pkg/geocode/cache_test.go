package geocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "geocode_cache.json"))

	n, err := s.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := s.Get(context.Background(), "x||")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_CorruptFileIsEmpty(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"array":   `[1, 2]`,
		"null":    `null`,
		"blank":   "  \n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "geocode_cache.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			s := NewFileStore(path)
			n, err := s.Len(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)

			require.NoError(t, s.Put(context.Background(), "a||", Negative))
			n, _ = s.Len(context.Background())
			assert.Equal(t, 1, n)
		})
	}
}

func TestFileStore_PersistsPositiveAndNull(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geocode_cache.json")
	s := NewFileStore(path)

	require.NoError(t, s.Put(ctx, "iñaquito|quito|pichincha", Entry{Found: true, Lat: -0.17, Lon: -78.48}))
	require.NoError(t, s.Put(ctx, "nowhere||pichincha", Negative))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"iñaquito|quito|pichincha": {"lat": -0.17, "lon": -78.48},
		"nowhere||pichincha": null
	}`, string(data))
	assert.Contains(t, string(data), "iñaquito", "non-ASCII keys are written as-is")
	assert.Contains(t, string(data), "\n  ", "file is indented")

	reopened := NewFileStore(path)
	e, ok, err := reopened.Get(ctx, "iñaquito|quito|pichincha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry{Found: true, Lat: -0.17, Lon: -78.48}, e)

	e, ok, err = reopened.Get(ctx, "nowhere||pichincha")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, e.Found)
}

func TestFileStore_ClearAndPutMany(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geocode_cache.json")
	s := NewFileStore(path)

	require.NoError(t, s.PutMany(ctx, map[string]Entry{
		"a||": {Found: true, Lat: 1, Lon: 1},
		"b||": Negative,
	}))
	n, _ := s.Len(ctx)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	n, _ = s.Len(ctx)
	assert.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestFileStore_UnwritablePath(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing-dir", "cache.json"))
	err := s.Put(context.Background(), "a||", Negative)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode: write cache")

	// The entry is still served from memory.
	_, ok, err := s.Get(context.Background(), "a||")
	require.NoError(t, err)
	assert.True(t, ok)
}

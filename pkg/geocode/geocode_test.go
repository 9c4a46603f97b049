package geocode

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "iñaquito|quito|pichincha", Key("  Iñaquito ", "QUITO", " Pichincha"))
	assert.Equal(t, "tarqui||guayas", Key("Tarqui", "", "Guayas"))
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "Iñaquito, Quito, Pichincha, Ecuador", Query(" Iñaquito", "Quito", "Pichincha", "Ecuador"))
	assert.Equal(t, "Tarqui, Guayas, Ecuador", Query("Tarqui", " ", "Guayas", "Ecuador"))
	assert.Equal(t, "Tarqui", Query("Tarqui", "", "", ""))
}

func TestCopyAndSummarize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := NewFileStore(filepath.Join(dir, "src.json"))
	require.NoError(t, src.Put(ctx, "a||x", Entry{Found: true, Lat: 1, Lon: 2}))
	require.NoError(t, src.Put(ctx, "b||x", Negative))

	dst, err := NewSQLiteStore(ctx, filepath.Join(dir, "dst.db"))
	require.NoError(t, err)
	defer dst.Close() //nolint:errcheck

	n, err := Copy(ctx, dst, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := dst.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Positives: 1, Negatives: 1}, Summarize(entries))
}

package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "dashboard.json")

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	s := NewStore(b, nil)

	var written DashboardState
	for i := 1; i <= 4; i++ {
		written, err = s.Append(ctx, makeRun(i))
		require.NoError(t, err)
	}

	loaded, err := NewStore(b, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, written, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileBackendMissingAndClear(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "dashboard.json"))
	require.NoError(t, err)

	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, b.Clear(ctx), "clearing a missing file is not an error")

	require.NoError(t, b.Save(ctx, []byte(`{}`)))
	require.NoError(t, b.Clear(ctx))
	_, err = os.Stat(b.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.json")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x01garbage"), 0o644))
	b, err := NewFileBackend(path)
	require.NoError(t, err)

	st, err := NewStore(b, nil).Load(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, EmptyState(), st)
}

func TestFileBackendSaveIntoMissingDir(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "sub", "dashboard.json"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))

	err = b.Save(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestBadgerBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, err = b.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	s := NewStore(b, nil)
	written, err := s.Append(ctx, makeRun(1))
	require.NoError(t, err)

	loaded, err := NewStore(b, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, written, loaded)

	require.NoError(t, b.Clear(ctx))
	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []string{BackendSQLite, BackendFile, BackendBadger, BackendMemory} {
		t.Run(kind, func(t *testing.T) {
			b, err := OpenBackend(kind, filepath.Join(dir, kind))
			require.NoError(t, err)
			require.NoError(t, b.Close())
		})
	}
	_, err := OpenBackend("redis", dir)
	assert.Error(t, err)
}

package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFS_StatDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := NewOSFS(dir)

	_, err := fsys.Stat(ctx, "index.lock")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "index.lock"), []byte("x"), 0644))

	// Relative paths resolve against the base directory.
	info, err := fsys.Stat(ctx, filepath.Join("nested", "index.lock"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size)
	assert.False(t, info.IsDir)
	assert.WithinDuration(t, time.Now(), info.ModTime, 5*time.Second)

	require.NoError(t, fsys.Delete(ctx, filepath.Join("nested", "index.lock")))
	err = fsys.Delete(ctx, filepath.Join("nested", "index.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestOSFS_WatchRemoval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, "index.lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0644))

	fsys := NewOSFS("")
	removed, err := fsys.WatchRemoval(ctx, lockPath)
	require.NoError(t, err)

	// Unrelated files in the same directory must not fire.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), nil, 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, "HEAD")))

	require.NoError(t, os.Remove(lockPath))

	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("no removal event")
	}
}

func TestOSFS_WatchRemovalMissingDir(t *testing.T) {
	fsys := NewOSFS("")
	_, err := fsys.WatchRemoval(context.Background(), filepath.Join(t.TempDir(), "missing", "index.lock"))
	assert.Error(t, err)
}

func TestMockFS(t *testing.T) {
	ctx := context.Background()
	m := NewMockFS()

	_, err := m.Stat(ctx, "/repo/.git/index.lock")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, m.WriteFile(ctx, "/repo/.git/index.lock", nil))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, m.SetModTime("/repo/.git/../.git/index.lock", old))

	info, err := m.Stat(ctx, "/repo/.git/index.lock")
	require.NoError(t, err)
	assert.True(t, info.ModTime.Equal(old))

	require.NoError(t, m.Delete(ctx, "/repo/.git/index.lock"))
	assert.ErrorIs(t, m.Delete(ctx, "/repo/.git/index.lock"), os.ErrNotExist)

	require.NoError(t, m.WriteFile(ctx, "/repo/.git/index.lock", nil))
	m.StatErr = os.ErrPermission
	_, err = m.Stat(ctx, "/repo/.git/index.lock")
	assert.ErrorIs(t, err, os.ErrPermission)
}

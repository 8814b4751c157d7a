package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS(t *testing.T) {
	tmp := t.TempDir()
	var fsys OS

	dir := filepath.Join(tmp, "nested", "dir")
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "snapshot.cnn")
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	require.NoError(t, f.Close())

	entries, err := fsys.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	renamed := filepath.Join(dir, "renamed.cnn")
	require.NoError(t, fsys.Rename(path, renamed))
	_, err = fsys.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, fsys.Remove(renamed))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".tmp", Fault{FailAfterBytes: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "model.cnn.tmp"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.Write([]byte("!"))
	require.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_SyncFault(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("manifest", Fault{FailAfterBytes: -1, FailOnSync: true, Err: os.ErrInvalid})

	f, err := ffs.OpenFile(filepath.Join(tmp, "manifest.json"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.ErrorIs(t, f.Sync(), os.ErrInvalid)
}

func TestFaultyFS_UnmatchedFilesPassThrough(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(OS{})
	ffs.AddRule("other", Fault{FailAfterBytes: 0})

	f, err := ffs.OpenFile(filepath.Join(tmp, "clean.cnn"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}

package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_ReadWrite(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("tables/co2/alpha.txt", []byte("0 0\n1 2\n"))

	data, err := m.ReadFile("tables/co2/alpha.txt")
	require.NoError(t, err)
	assert.Equal(t, "0 0\n1 2\n", string(data))

	f, err := m.Open("tables/co2/alpha.txt")
	require.NoError(t, err)
	defer f.Close()
	all, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size())
	assert.Equal(t, "alpha.txt", info.Name())
}

func TestMemoryFileSystem_CreateStoresOnClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("out/event.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("projection,strip,sample,charge\n"))
	require.NoError(t, err)

	_, err = m.ReadFile("out/event.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "file visible before Close")

	require.NoError(t, w.Close())
	data, err := m.ReadFile("out/event.csv")
	require.NoError(t, err)
	assert.Equal(t, "projection,strip,sample,charge\n", string(data))
}

func TestMemoryFileSystem_StatAndGlob(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("events/b.csv", nil)
	m.AddFile("events/a.csv", nil)
	m.AddFile("events/readme.md", nil)

	info, err := m.Stat("events")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = m.Stat("missing.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	names, err := m.Glob(filepath.Join("events", "*.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"events/a.csv", "events/b.csv"}, names)
}

func TestOSFileSystem_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")

	var osfs OSFileSystem
	w, err := osfs.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"seed_threshold": 50}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := osfs.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed_threshold": 50}`, string(data))

	names, err := osfs.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, names)
}

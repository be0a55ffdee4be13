package snapshot_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahmethakanbesel/oasis-api/internal/snapshot"
)

type row struct {
	At time.Time
	MW float64
}

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	want := []row{
		{At: time.Date(2018, 11, 1, 8, 0, 0, 0, time.UTC), MW: 21000.5},
		{At: time.Date(2018, 11, 1, 9, 0, 0, 0, time.UTC), MW: 20500},
	}

	path, err := snapshot.Write(dir, "demand", want)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "demand.gob"), path)

	got, err := snapshot.Read[[]row](dir, "demand")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].At.Equal(want[0].At))
	require.Equal(t, want[1].MW, got[1].MW)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	_, err := snapshot.Write(dir, "n", 1)
	require.NoError(t, err)
	_, err = snapshot.Write(dir, "n", 2)
	require.NoError(t, err)

	got, err := snapshot.Read[int](dir, "n")
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

func TestRead_Missing(t *testing.T) {
	_, err := snapshot.Read[int](t.TempDir(), "absent")
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := snapshot.Write(t.TempDir(), name, 1)
		require.ErrorIs(t, err, snapshot.ErrInvalidName, name)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"transmission_MALIN500", "demand"} {
		_, err := snapshot.Write(dir, name, 1)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.gob"), 0o755))

	names, err := snapshot.List(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"demand", "transmission_MALIN500"}, names)

	names, err = snapshot.List(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	require.Empty(t, names)
}

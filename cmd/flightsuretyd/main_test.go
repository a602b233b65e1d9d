package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flightsurety/core/types"
	"flightsurety/storage"
	"flightsurety/storage/eventlog"
)

func TestOpenDatabase(t *testing.T) {
	mem, err := openDatabase("")
	require.NoError(t, err)
	require.IsType(t, &storage.MemDB{}, mem)
	mem.Close()

	dir := filepath.Join(t.TempDir(), "data")
	disk, err := openDatabase(dir)
	require.NoError(t, err)
	defer disk.Close()
	require.IsType(t, &storage.LevelDB{}, disk)
	require.NoError(t, disk.Put([]byte("k"), []byte("v")))
	require.DirExists(t, dir)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	require.NoError(t, ensureDir(path))
	require.DirExists(t, filepath.Dir(path))
	require.NoError(t, ensureDir("events.db"))
}

func TestExportEvents(t *testing.T) {
	ctx := context.Background()
	_, err := exportEvents(ctx, "", "out.parquet")
	require.Error(t, err)

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "events.db")
	archive, err := eventlog.Open(archivePath)
	require.NoError(t, err)
	require.NoError(t, archive.Record(ctx, []*types.Event{types.NewEvent("airline.admitted")}))
	require.NoError(t, archive.Close())

	out := filepath.Join(dir, "export", "events.parquet")
	n, err := exportEvents(ctx, archivePath, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.FileExists(t, out)
}

package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget() *Target {
	return &Target{
		Project:       "chess-lab",
		Zone:          "europe-west2-a",
		Instance:      "sf-test",
		Host:          "203.0.113.10",
		User:          "engine",
		KeyPath:       "/home/op/.enginevm/ssh/engine_key",
		EngineCommand: "/opt/engine/stockfish",
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadTarget(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	want := testTarget()
	require.NoError(t, store.SaveTarget(want))

	got, err := store.Target()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTargetFileIsPrivate(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveTarget(testTarget()))

	info, err := os.Stat(filepath.Join(dir, "target.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveReplacesPreviousTarget(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := testTarget()
	require.NoError(t, store.SaveTarget(first))

	second := testTarget()
	second.Host = "198.51.100.7"
	require.NoError(t, store.SaveTarget(second))

	got, err := store.Target()
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", got.Host)
}

func TestMissingTarget(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Target()
	require.ErrorContains(t, err, "enginevm create")
}

func TestClearTargetIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveTarget(testTarget()))
	require.NoError(t, store.ClearTarget())
	require.NoError(t, store.ClearTarget())

	_, err = store.Target()
	require.Error(t, err)
}

func TestNewStoreCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

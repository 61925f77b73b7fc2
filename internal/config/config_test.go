package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:9729", cfg.Addr())
	assert.Equal(t, "ScalarStorage", cfg.Storage.ScalarPath)
	assert.Equal(t, filepath.Join("WALLogStorage", "WALLog"), cfg.Storage.WALPath)
	assert.Equal(t, "lastSnapshotID", cfg.Storage.CursorPath)
	assert.Equal(t, "snapshots", cfg.Storage.SnapshotDir)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\ndimension: 128\nhnsw:\n  m: 16\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 128, cfg.Dimension)
	assert.Equal(t, 16, cfg.HNSW.M)
	// Untouched fields keep their defaults.
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 200, cfg.HNSW.EF)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgeheap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join("data", "edgeheap.db"), cfg.Storage.DBPath())
	require.Equal(t, filepath.Join("data", "catalog.db"), cfg.Storage.CatalogPath())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  components:
    buffer_pool: warn
storage:
  data_dir: /var/lib/edgeheap
  page_size: 8192
  max_pages: 1000
telemetry:
  enabled: true
  prometheus_port: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, "console", cfg.Logger.Format, "unset keys keep their defaults")
	require.Equal(t, map[string]string{"buffer_pool": "warn"}, cfg.Logger.Components)
	require.Equal(t, 8192, cfg.Storage.PageSize)
	require.Equal(t, uint64(1000), cfg.Storage.MaxPages)
	require.Equal(t, 64, cfg.Storage.BufferPoolSize)
	require.True(t, cfg.Telemetry.Enabled)
	require.Zero(t, cfg.Telemetry.PrometheusPort)
	require.Equal(t, "/var/lib/edgeheap/edgeheap.db", cfg.Storage.DBPath())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "storage: [not, a, map]"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  page_size: 100\n  buffer_pool_size: 1\n"))
	require.ErrorContains(t, err, "page_size")
	require.ErrorContains(t, err, "buffer_pool_size")
}

func TestStoragePaths_Absolute(t *testing.T) {
	s := Default().Storage
	s.DBFile = "/tmp/x.db"
	require.Equal(t, "/tmp/x.db", s.DBPath())
}

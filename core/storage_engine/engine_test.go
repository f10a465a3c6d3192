package storageengine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/edgeheapdb/config"
	"github.com/sushant-115/edgeheapdb/core/edgeheap"
	"github.com/sushant-115/edgeheapdb/pkg/telemetry"
)

func testConfig(dir string) config.StorageConfig {
	cfg := config.Default().Storage
	cfg.DataDir = dir
	cfg.PageSize = 1024
	cfg.BufferPoolSize = 8
	cfg.BackupRateBytesPerSec = 0
	return cfg
}

func edge(i uint64) *edgeheap.Edge {
	return &edgeheap.Edge{
		Source:      edgeheap.NodeID{PageID: i, Slot: 1},
		Destination: edgeheap.NodeID{PageID: i + 1, Slot: 2},
		Label:       "follows",
		Payload:     []byte("since 2019"),
	}
}

func TestEngine_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())

	e, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	f, err := e.OpenEdgeHeapfile("social")
	require.NoError(t, err)
	for i := uint64(0); i < 50; i++ {
		_, err := f.InsertEdge(ctx, edge(i))
		require.NoError(t, err)
	}
	require.Zero(t, e.PoolStats().Pinned)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.OpenEdgeHeapfile("social")
	require.ErrorIs(t, err, ErrEngineClosed)

	e, err = Open(cfg, nil, nil)
	require.NoError(t, err)
	defer e.Close()

	names, err := e.Files()
	require.NoError(t, err)
	require.Equal(t, []string{"social"}, names)

	f, err = e.OpenEdgeHeapfile("social")
	require.NoError(t, err)
	n, err := f.EdgeCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	labels, err := f.LabelCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, labels)
}

func TestEngine_Backup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())

	e, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	defer e.Close()

	f, err := e.OpenEdgeHeapfile("social")
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		_, err := f.InsertEdge(ctx, edge(i))
		require.NoError(t, err)
	}

	backupDir := filepath.Join(t.TempDir(), "backup")
	sum, err := e.Backup(ctx, backupDir)
	require.NoError(t, err)
	require.Len(t, sum, 32)

	restored := cfg
	restored.DataDir = backupDir
	b, err := Open(restored, nil, nil)
	require.NoError(t, err)
	defer b.Close()

	g, err := b.OpenEdgeHeapfile("social")
	require.NoError(t, err)
	n, err := g.EdgeCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestEngine_WithTelemetry(t *testing.T) {
	ctx := context.Background()
	tel, shutdown, err := telemetry.New(telemetry.Config{Enabled: true, ServiceName: "edgeheap-engine-test"})
	require.NoError(t, err)
	defer shutdown(ctx)

	e, err := Open(testConfig(t.TempDir()), nil, tel)
	require.NoError(t, err)
	defer e.Close()

	f, err := e.OpenEdgeHeapfile("")
	require.NoError(t, err)
	require.True(t, f.IsTemporary())
	_, err = f.InsertEdge(ctx, edge(1))
	require.NoError(t, err)
	require.NoError(t, f.DeleteFile(ctx))

	families, err := tel.Registry.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "edgeheap_records_inserted") {
			found = true
		}
	}
	require.True(t, found, "insert counter not exported")

	numPages, freePages := e.DiskStats()
	require.Equal(t, numPages-1, freePages)
}

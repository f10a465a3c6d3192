// Package storageengine assembles the page file, buffer pool, catalog and
// telemetry into one handle that opens edge heap files.
package storageengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sushant-115/edgeheapdb/config"
	"github.com/sushant-115/edgeheapdb/core/catalog"
	"github.com/sushant-115/edgeheapdb/core/edgeheap"
	"github.com/sushant-115/edgeheapdb/core/storage_engine/common"
	flushmanager "github.com/sushant-115/edgeheapdb/core/write_engine/flush_manager"
	"github.com/sushant-115/edgeheapdb/core/write_engine/memtable"
	internaltelemetry "github.com/sushant-115/edgeheapdb/internal/telemetry"
	"github.com/sushant-115/edgeheapdb/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var ErrEngineClosed = errors.New("storage engine is closed")

// Engine owns the shared storage of all edge heap files in one data directory.
type Engine struct {
	cfg     config.StorageConfig
	logger  *zap.Logger
	metrics *internaltelemetry.StorageMetrics
	tracer  trace.Tracer

	dm      *flushmanager.DiskManager
	bpm     *memtable.BufferPoolManager
	catalog *catalog.Catalog

	mu     sync.Mutex
	closed bool
}

// Open creates the data directory if needed and opens the page file and the
// catalog in it. tel may be nil.
func Open(cfg config.StorageConfig, logger *zap.Logger, tel *telemetry.Telemetry) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
		}
	}

	metrics := internaltelemetry.NewNoopStorageMetrics()
	tracer := nooptrace.NewTracerProvider().Tracer("")
	if tel != nil {
		m, err := internaltelemetry.NewStorageMetrics(tel.Meter)
		if err != nil {
			return nil, fmt.Errorf("registering storage metrics: %w", err)
		}
		metrics, tracer = m, tel.Tracer
	}

	dm, err := flushmanager.NewDiskManager(cfg.DBPath(), cfg.PageSize, cfg.MaxPages, logger)
	if err != nil {
		return nil, err
	}
	if _, err := dm.OpenOrCreateFile(true); err != nil {
		return nil, err
	}

	bpm, err := memtable.NewBufferPoolManager(cfg.BufferPoolSize, dm, logger, metrics)
	if err != nil {
		return nil, errors.Join(err, dm.Close())
	}

	cat, err := catalog.Open(cfg.CatalogPath(), logger)
	if err != nil {
		return nil, errors.Join(err, dm.Close())
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger.Named("engine"),
		metrics: metrics,
		tracer:  tracer,
		dm:      dm,
		bpm:     bpm,
		catalog: cat,
	}
	e.logger.Info("storage engine opened",
		zap.String("db", cfg.DBPath()),
		zap.String("catalog", cfg.CatalogPath()),
		zap.Int("page_size", cfg.PageSize),
		zap.Int("buffer_pool_size", cfg.BufferPoolSize))
	return e, nil
}

// OpenEdgeHeapfile opens or creates a heap file. An empty name creates a
// temporary file.
func (e *Engine) OpenEdgeHeapfile(name string) (*edgeheap.EdgeHeapfile, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return edgeheap.Open(name, e.bpm, e.catalog,
		edgeheap.WithLogger(e.logger),
		edgeheap.WithMetrics(e.metrics),
		edgeheap.WithTracer(e.tracer))
}

// Files lists the registered heap files.
func (e *Engine) Files() ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.catalog.Names()
}

// Flush writes every dirty page and syncs the page file.
func (e *Engine) Flush() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.bpm.FlushAllPages()
}

// PoolStats reports buffer pool frame usage.
func (e *Engine) PoolStats() memtable.Stats { return e.bpm.Stats() }

// DiskStats reports the page file size in pages and the free list length.
func (e *Engine) DiskStats() (numPages, freePages uint64) {
	return e.dm.NumPages(), e.dm.FreePageCount()
}

func (e *Engine) PageSize() int { return e.cfg.PageSize }

// Backup flushes the buffer pool and copies the page file and the catalog
// into dstDir at the configured rate. The page file copy is only consistent
// if no heap file is written while it runs. It returns the page file checksum.
func (e *Engine) Backup(ctx context.Context, dstDir string) ([]byte, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup dir %s: %w", dstDir, err)
	}
	if err := e.bpm.FlushAllPages(); err != nil {
		return nil, fmt.Errorf("flushing before backup: %w", err)
	}

	dbDst := filepath.Join(dstDir, filepath.Base(e.cfg.DBFile))
	sum, err := common.CopyThrottled(ctx, e.dm.GetFilePath(), dbDst, e.cfg.BackupRateBytesPerSec, true)
	if err != nil {
		return nil, fmt.Errorf("copying page file: %w", err)
	}
	if err := e.catalog.Backup(filepath.Join(dstDir, filepath.Base(e.cfg.CatalogFile))); err != nil {
		return nil, fmt.Errorf("copying catalog: %w", err)
	}
	e.logger.Info("backup written", zap.String("dir", dstDir), zap.Binary("sha256", sum))
	return sum, nil
}

// Close flushes all pages and closes the page file and the catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := errors.Join(e.bpm.FlushAllPages(), e.dm.Close(), e.catalog.Close())
	e.logger.Info("storage engine closed", zap.Error(err))
	return err
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

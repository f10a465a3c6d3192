// Package config loads the YAML configuration for the storage engine and
// the command line tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	flushmanager "github.com/sushant-115/edgeheapdb/core/write_engine/flush_manager"
	"github.com/sushant-115/edgeheapdb/pkg/logger"
	"github.com/sushant-115/edgeheapdb/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Storage   StorageConfig    `yaml:"storage"`
}

// StorageConfig describes the page file, the buffer pool and the catalog.
type StorageConfig struct {
	// DataDir holds the page file and the catalog; relative file names are
	// resolved against it.
	DataDir     string `yaml:"data_dir"`
	DBFile      string `yaml:"db_file"`
	CatalogFile string `yaml:"catalog_file"`
	PageSize    int    `yaml:"page_size"`
	// BufferPoolSize is the number of page frames kept in memory.
	BufferPoolSize int `yaml:"buffer_pool_size"`
	// MaxPages caps the page file, header page included. 0 means unlimited.
	MaxPages uint64 `yaml:"max_pages"`
	// BackupRateBytesPerSec throttles Backup. 0 means unthrottled.
	BackupRateBytesPerSec int64 `yaml:"backup_rate_bytes_per_sec"`
}

// Default returns a configuration that works out of the box.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      logger.ServiceName,
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
		Storage: StorageConfig{
			DataDir:               "data",
			DBFile:                "edgeheap.db",
			CatalogFile:           "catalog.db",
			PageSize:              flushmanager.DefaultPageSize,
			BufferPoolSize:        64,
			BackupRateBytesPerSec: 32 * 1024 * 1024,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the storage settings.
func (c Config) Validate() error {
	s := c.Storage
	var errs []error
	if s.DBFile == "" {
		errs = append(errs, errors.New("storage.db_file must be set"))
	}
	if s.CatalogFile == "" {
		errs = append(errs, errors.New("storage.catalog_file must be set"))
	}
	if s.PageSize < flushmanager.MinPageSize || s.PageSize > flushmanager.MaxPageSize {
		errs = append(errs, fmt.Errorf("storage.page_size %d outside [%d, %d]",
			s.PageSize, flushmanager.MinPageSize, flushmanager.MaxPageSize))
	} else if slottedpage.MaxRecordSize(s.PageSize) <= 0 {
		errs = append(errs, fmt.Errorf("storage.page_size %d leaves no room for records", s.PageSize))
	}
	if s.BufferPoolSize < 2 {
		errs = append(errs, fmt.Errorf("storage.buffer_pool_size must be at least 2, got %d", s.BufferPoolSize))
	}
	if s.MaxPages == 1 {
		errs = append(errs, errors.New("storage.max_pages of 1 leaves no room beyond the header page"))
	}
	if s.BackupRateBytesPerSec < 0 {
		errs = append(errs, fmt.Errorf("storage.backup_rate_bytes_per_sec must not be negative, got %d", s.BackupRateBytesPerSec))
	}
	return errors.Join(errs...)
}

// DBPath is the page file path.
func (s StorageConfig) DBPath() string { return s.resolve(s.DBFile) }

// CatalogPath is the catalog database path.
func (s StorageConfig) CatalogPath() string { return s.resolve(s.CatalogFile) }

func (s StorageConfig) resolve(name string) string {
	if filepath.IsAbs(name) || s.DataDir == "" {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

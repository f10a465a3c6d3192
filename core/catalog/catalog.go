// Package catalog persists the mapping from heap file names to the id of each
// file's first directory page.
package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/dgraph-io/ristretto/v2"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

var (
	ErrFileEntryExists   = errors.New("file entry already exists")
	ErrFileEntryNotFound = errors.New("file entry not found")
	ErrEmptyName         = errors.New("file name must not be empty")
	ErrCorruptEntry      = errors.New("catalog entry is corrupt")
)

var filesBucket = []byte("files")

const openTimeout = 2 * time.Second

// Catalog is a bolt-backed name directory with a read-through cache in front
// of Resolve.
type Catalog struct {
	db     *bolt.DB
	cache  *ristretto.Cache[string, uint64]
	logger *zap.Logger
}

// Open opens or creates the catalog database at path.
func Open(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating catalog bucket: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, uint64]{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating catalog cache: %w", err)
	}

	c := &Catalog{db: db, cache: cache, logger: logger.Named("catalog")}
	c.logger.Info("catalog opened", zap.String("path", path))
	return c, nil
}

func encodePageID(id pagemanager.PageID) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodePageID(name string, v []byte) (pagemanager.PageID, error) {
	if len(v) != 8 {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: %q holds %d bytes", ErrCorruptEntry, name, len(v))
	}
	return pagemanager.PageID(binary.LittleEndian.Uint64(v)), nil
}

// Resolve returns the first directory page registered under name.
func (c *Catalog) Resolve(name string) (pagemanager.PageID, bool, error) {
	if id, ok := c.cache.Get(name); ok {
		return pagemanager.PageID(id), true, nil
	}

	var (
		id    pagemanager.PageID
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(filesBucket).Get([]byte(name))
		if v == nil {
			return nil
		}
		decoded, err := decodePageID(name, v)
		if err != nil {
			return err
		}
		id, found = decoded, true
		return nil
	})
	if err != nil {
		return pagemanager.InvalidPageID, false, fmt.Errorf("resolving %q: %w", name, err)
	}
	if found {
		c.cache.Set(name, uint64(id), 1)
		c.cache.Wait()
	}
	return id, found, nil
}

// Register records name -> id. Names are unique.
func (c *Catalog) Register(name string, id pagemanager.PageID) error {
	if name == "" {
		return ErrEmptyName
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: %q", ErrFileEntryExists, name)
		}
		return b.Put([]byte(name), encodePageID(id))
	})
	if err != nil {
		return err
	}
	c.logger.Debug("file registered", zap.String("name", name), zap.Uint64("first_dir_page", uint64(id)))
	return nil
}

// Unregister removes name and evicts it from the cache.
func (c *Catalog) Unregister(name string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %q", ErrFileEntryNotFound, name)
		}
		return b.Delete([]byte(name))
	})
	c.cache.Del(name)
	if err != nil {
		return err
	}
	c.logger.Debug("file unregistered", zap.String("name", name))
	return nil
}

// Names lists registered files in lexical order.
func (c *Catalog) Names() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Backup writes a consistent copy of the catalog to path.
func (c *Catalog) Backup(path string) error {
	return c.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// Close releases the cache and the database file.
func (c *Catalog) Close() error {
	c.cache.Close()
	return c.db.Close()
}

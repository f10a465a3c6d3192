package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

func openTestCatalog(t *testing.T, path string) *Catalog {
	t.Helper()
	c, err := Open(path, nil)
	require.NoError(t, err)
	return c
}

func TestRegisterResolve(t *testing.T) {
	c := openTestCatalog(t, filepath.Join(t.TempDir(), "catalog.db"))
	defer c.Close()

	_, found, err := c.Resolve("edges")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Register("edges", 42))
	id, found, err := c.Resolve("edges")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pagemanager.PageID(42), id)

	// Second resolve is served from the cache.
	id, found, err = c.Resolve("edges")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pagemanager.PageID(42), id)
}

func TestRegister_Duplicate(t *testing.T) {
	c := openTestCatalog(t, filepath.Join(t.TempDir(), "catalog.db"))
	defer c.Close()

	require.NoError(t, c.Register("edges", 1))
	require.ErrorIs(t, c.Register("edges", 2), ErrFileEntryExists)
	require.ErrorIs(t, c.Register("", 3), ErrEmptyName)

	id, _, err := c.Resolve("edges")
	require.NoError(t, err)
	require.Equal(t, pagemanager.PageID(1), id)
}

func TestUnregister(t *testing.T) {
	c := openTestCatalog(t, filepath.Join(t.TempDir(), "catalog.db"))
	defer c.Close()

	require.NoError(t, c.Register("edges", 5))
	_, found, err := c.Resolve("edges") // warm the cache
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, c.Unregister("edges"))
	_, found, err = c.Resolve("edges")
	require.NoError(t, err)
	require.False(t, found)

	require.ErrorIs(t, c.Unregister("edges"), ErrFileEntryNotFound)

	// The name can be reused after it is dropped.
	require.NoError(t, c.Register("edges", 9))
	id, found, err := c.Resolve("edges")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pagemanager.PageID(9), id)
}

func TestNamesAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c := openTestCatalog(t, path)
	require.NoError(t, c.Register("likes", 3))
	require.NoError(t, c.Register("follows", 7))
	require.NoError(t, c.Close())

	c = openTestCatalog(t, path)
	defer c.Close()

	names, err := c.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"follows", "likes"}, names)

	id, found, err := c.Resolve("likes")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pagemanager.PageID(3), id)
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	c := openTestCatalog(t, filepath.Join(dir, "catalog.db"))
	defer c.Close()
	require.NoError(t, c.Register("edges", 11))

	backupPath := filepath.Join(dir, "catalog.bak")
	require.NoError(t, c.Backup(backupPath))

	b := openTestCatalog(t, backupPath)
	defer b.Close()
	id, found, err := b.Resolve("edges")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pagemanager.PageID(11), id)
}

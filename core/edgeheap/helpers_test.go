package edgeheap

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/edgeheapdb/core/catalog"
	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	flushmanager "github.com/sushant-115/edgeheapdb/core/write_engine/flush_manager"
	"github.com/sushant-115/edgeheapdb/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

const (
	testPageSize = 512
	testPoolSize = 16
	// Directory entries a test-sized directory page holds.
	entriesPerDirPage = (testPageSize - slottedpage.HeaderSize) / (DataPageInfoSize + slottedpage.SlotSize)
)

// testEnv is a disk manager, buffer pool and catalog rooted in one directory.
type testEnv struct {
	dir string
	dm  *flushmanager.DiskManager
	bpm *memtable.BufferPoolManager
	cat *catalog.Catalog
}

func newTestEnv(t *testing.T, maxPages uint64) *testEnv {
	t.Helper()
	return openTestEnv(t, t.TempDir(), maxPages)
}

func openTestEnv(t *testing.T, dir string, maxPages uint64) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	dm, err := flushmanager.NewDiskManager(filepath.Join(dir, "edges.db"), testPageSize, maxPages, logger)
	require.NoError(t, err)
	_, err = dm.OpenOrCreateFile(true)
	require.NoError(t, err)

	bpm, err := memtable.NewBufferPoolManager(testPoolSize, dm, logger, nil)
	require.NoError(t, err)

	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"), logger)
	require.NoError(t, err)

	env := &testEnv{dir: dir, dm: dm, bpm: bpm, cat: cat}
	t.Cleanup(func() { env.close(t) })
	return env
}

// close flushes and closes everything; safe to call twice.
func (env *testEnv) close(t *testing.T) {
	t.Helper()
	if env.cat == nil {
		return
	}
	require.NoError(t, env.bpm.FlushAllPages())
	require.NoError(t, env.dm.Close())
	require.NoError(t, env.cat.Close())
	env.cat = nil
}

func (env *testEnv) open(t *testing.T, name string, opts ...Option) *EdgeHeapfile {
	t.Helper()
	f, err := Open(name, env.bpm, env.cat, opts...)
	require.NoError(t, err)
	env.requireNoPins(t)
	return f
}

func (env *testEnv) requireNoPins(t *testing.T) {
	t.Helper()
	require.Zero(t, env.bpm.Stats().Pinned, "a page is still pinned")
}

func testEdge(src, dst uint64, label string, payloadLen int) *Edge {
	e := &Edge{
		Source:      NodeID{PageID: src, Slot: uint16(src % 7)},
		Destination: NodeID{PageID: dst, Slot: uint16(dst % 5)},
		Label:       label,
	}
	if payloadLen > 0 {
		e.Payload = bytes.Repeat([]byte{byte(src)}, payloadLen)
	}
	return e
}

// sizedEdge builds an edge whose encoding is exactly size bytes.
func sizedEdge(src uint64, size int) *Edge {
	return testEdge(src, src+1, "e", size-edgeHeaderSize-1)
}

// pageFillingEdge occupies a data page on its own.
func pageFillingEdge(src uint64) *Edge {
	return sizedEdge(src, slottedpage.MaxRecordSize(testPageSize))
}

// dirPage is a snapshot of one directory page.
type dirPage struct {
	id      pagemanager.PageID
	prev    pagemanager.PageID
	next    pagemanager.PageID
	entries []DataPageInfo
}

// directory walks the chain and checks the back links as it goes.
func directory(t *testing.T, f *EdgeHeapfile) []dirPage {
	t.Helper()
	var pages []dirPage
	prev := pagemanager.InvalidPageID
	for id := f.FirstDirPageID(); id != pagemanager.InvalidPageID; {
		p, err := pinAs(f.bpm, id, slottedpage.TypeDirectory)
		require.NoError(t, err)
		dp := dirPage{id: id, prev: p.sp.Prev(), next: p.sp.Next()}
		for s, ok := p.sp.FirstSlot(); ok; s, ok = p.sp.NextSlot(s) {
			info, err := readEntry(p.sp, s)
			require.NoError(t, err)
			dp.entries = append(dp.entries, info)
		}
		require.NoError(t, p.release())
		require.Equal(t, prev, dp.prev, "back link of directory page %d", id)
		pages = append(pages, dp)
		prev, id = id, dp.next
	}
	return pages
}

func entryCount(pages []dirPage) int {
	n := 0
	for _, p := range pages {
		n += len(p.entries)
	}
	return n
}

var errInjected = errors.New("injected allocation failure")

// faultyPool fails NewPage once allowNew allocations have succeeded.
type faultyPool struct {
	BufferPool
	allowNew int
}

func (p *faultyPool) NewPage() (*pagemanager.Page, pagemanager.PageID, error) {
	if p.allowNew <= 0 {
		return nil, pagemanager.InvalidPageID, errInjected
	}
	p.allowNew--
	return p.BufferPool.NewPage()
}

type unpinCall struct {
	id    pagemanager.PageID
	dirty bool
}

// recordingPool remembers every UnpinPage call.
type recordingPool struct {
	BufferPool
	unpins []unpinCall
}

func (p *recordingPool) UnpinPage(id pagemanager.PageID, dirty bool) error {
	p.unpins = append(p.unpins, unpinCall{id: id, dirty: dirty})
	return p.BufferPool.UnpinPage(id, dirty)
}

// dirtyUnpins reports, per page, whether any recorded unpin marked it dirty.
func (p *recordingPool) dirtyUnpins() map[pagemanager.PageID]bool {
	out := make(map[pagemanager.PageID]bool)
	for _, c := range p.unpins {
		out[c.id] = out[c.id] || c.dirty
	}
	return out
}

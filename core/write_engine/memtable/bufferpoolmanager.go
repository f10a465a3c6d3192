package memtable

import (
	"container/list" // For LRU
	"context"
	"errors"
	"fmt"
	"sync"

	flushmanager "github.com/sushant-115/edgeheapdb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/edgeheapdb/internal/telemetry"
	"go.uber.org/zap"
)

// BufferPoolManager manages in-memory pages (frames) and interacts with the DiskManager.
// It implements a simple LRU (Least Recently Used) eviction policy over unpinned frames.
type BufferPoolManager struct {
	diskManager *flushmanager.DiskManager
	poolSize    int
	pages       []*pagemanager.Page        // Page frames
	pageTable   map[pagemanager.PageID]int // PageID to frame index
	lruList     *list.List                 // front = most recently used; values are frame indices
	mu          sync.Mutex
	pageSize    int
	logger      *zap.Logger
	metrics     *internaltelemetry.StorageMetrics
}

// Stats is a point-in-time view of frame usage.
type Stats struct {
	PoolSize int
	Resident int
	Pinned   int
	Dirty    int
}

// NewBufferPoolManager creates and initializes a new BufferPoolManager.
// metrics may be nil.
func NewBufferPoolManager(poolSize int, diskManager *flushmanager.DiskManager, logger *zap.Logger, metrics *internaltelemetry.StorageMetrics) (*BufferPoolManager, error) {
	if diskManager == nil {
		return nil, errors.New("buffer pool requires a disk manager")
	}
	if poolSize < 2 {
		return nil, fmt.Errorf("buffer pool size must be at least 2, got %d", poolSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NewNoopStorageMetrics()
	}
	bpm := &BufferPoolManager{
		diskManager: diskManager,
		poolSize:    poolSize,
		pages:       make([]*pagemanager.Page, poolSize),
		pageTable:   make(map[pagemanager.PageID]int),
		lruList:     list.New(),
		pageSize:    diskManager.GetPageSize(),
		logger:      logger.Named("buffer_pool"),
		metrics:     metrics,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = pagemanager.NewPage(pagemanager.InvalidPageID, bpm.pageSize)
	}
	bpm.logger.Info("buffer pool initialized", zap.Int("pool_size", poolSize), zap.Int("page_size", bpm.pageSize))
	return bpm, nil
}

// FetchPage pins a page, reading it from disk if it is not resident.
func (bpm *BufferPoolManager) FetchPage(pageID pagemanager.PageID) (*pagemanager.Page, error) {
	if pageID == pagemanager.InvalidPageID {
		return nil, fmt.Errorf("%w: cannot fetch the invalid page", flushmanager.ErrInvalidPageID)
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	// 1. Already resident
	if frameIdx, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameIdx]
		page.Pin()
		if page.GetLruElement() != nil {
			bpm.lruList.MoveToFront(page.GetLruElement())
		}
		bpm.metrics.BufferPoolHits.Add(context.Background(), 1)
		bpm.logger.Debug("page hit", zap.Uint64("page_id", uint64(pageID)), zap.Uint32("pin_count", page.GetPinCount()))
		return page, nil
	}

	// 2. Claim a frame
	frameIdx, err := bpm.claimFrameInternal()
	if err != nil {
		return nil, fmt.Errorf("fetching page %d: %w", pageID, err)
	}
	frame := bpm.pages[frameIdx]

	// 3. Load page data from disk. On failure the frame stays empty and reusable.
	if err := bpm.diskManager.ReadPage(pageID, frame.GetData()); err != nil {
		frame.Reset()
		return nil, fmt.Errorf("failed to read page %d from disk: %w", pageID, err)
	}
	bpm.installInternal(frameIdx, pageID, false)
	bpm.metrics.BufferPoolMisses.Add(context.Background(), 1)
	bpm.logger.Debug("page loaded", zap.Uint64("page_id", uint64(pageID)), zap.Int("frame", frameIdx))
	return frame, nil
}

// claimFrameInternal returns an empty frame, evicting the least recently used
// unpinned page if needed. Dirty victims are written back first.
// MUST be called with bpm.mu held.
func (bpm *BufferPoolManager) claimFrameInternal() (int, error) {
	for i, page := range bpm.pages {
		if page.GetPageID() == pagemanager.InvalidPageID {
			return i, nil
		}
	}

	for e := bpm.lruList.Back(); e != nil; e = e.Prev() {
		frameIdx := e.Value.(int)
		victim := bpm.pages[frameIdx]
		if victim.GetPinCount() > 0 {
			continue
		}
		if victim.IsDirty() {
			if err := bpm.diskManager.WritePage(victim.GetPageID(), victim.GetData()); err != nil {
				return -1, fmt.Errorf("failed to flush dirty victim page %d: %w", victim.GetPageID(), err)
			}
		}
		bpm.logger.Debug("evicting page", zap.Uint64("page_id", uint64(victim.GetPageID())), zap.Int("frame", frameIdx))
		delete(bpm.pageTable, victim.GetPageID())
		bpm.lruList.Remove(e)
		victim.Reset()
		bpm.metrics.BufferPoolEvicts.Add(context.Background(), 1)
		return frameIdx, nil
	}

	bpm.logger.Warn("buffer pool exhausted: every frame is pinned", zap.Int("pool_size", bpm.poolSize))
	return -1, flushmanager.ErrBufferPoolFull
}

// installInternal makes a claimed frame resident for pageID with one pin.
// MUST be called with bpm.mu held.
func (bpm *BufferPoolManager) installInternal(frameIdx int, pageID pagemanager.PageID, dirty bool) {
	frame := bpm.pages[frameIdx]
	frame.SetPageID(pageID)
	frame.SetPinCount(1)
	frame.SetDirty(dirty)
	bpm.pageTable[pageID] = frameIdx
	frame.SetLruElement(bpm.lruList.PushFront(frameIdx))
}

// UnpinPage decrements the pin count for a page. If isDirty is true, it marks the page as dirty.
func (bpm *BufferPoolManager) UnpinPage(pageID pagemanager.PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		bpm.logger.Error("unpin of non-resident page", zap.Uint64("page_id", uint64(pageID)))
		return fmt.Errorf("%w: page %d not found to unpin", flushmanager.ErrPageNotFound, pageID)
	}
	page := bpm.pages[frameIdx]
	if page.GetPinCount() == 0 {
		bpm.logger.Warn("unpin of page with pin count 0", zap.Uint64("page_id", uint64(pageID)))
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotPinned, pageID)
	}
	page.Unpin()
	if isDirty {
		page.SetDirty(true)
	}
	bpm.logger.Debug("page unpinned",
		zap.Uint64("page_id", uint64(pageID)),
		zap.Uint32("pin_count", page.GetPinCount()),
		zap.Bool("dirty", page.IsDirty()))
	return nil
}

// NewPage allocates a new page on disk and pins a zeroed frame for it.
// The frame starts dirty so the allocation reaches disk even if the caller
// never writes to it.
func (bpm *BufferPoolManager) NewPage() (*pagemanager.Page, pagemanager.PageID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	// Claim the frame first so a full pool never strands a disk page.
	frameIdx, err := bpm.claimFrameInternal()
	if err != nil {
		return nil, pagemanager.InvalidPageID, fmt.Errorf("allocating page: %w", err)
	}

	newPageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		bpm.logger.Error("failed to allocate page on disk", zap.Error(err))
		return nil, pagemanager.InvalidPageID, err
	}

	bpm.installInternal(frameIdx, newPageID, true)
	bpm.logger.Debug("new page", zap.Uint64("page_id", uint64(newPageID)), zap.Int("frame", frameIdx))
	return bpm.pages[frameIdx], newPageID, nil
}

// FreePage drops an unpinned page from the pool and returns it to the disk
// manager's free list.
func (bpm *BufferPoolManager) FreePage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameIdx, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameIdx]
		if page.GetPinCount() > 0 {
			return fmt.Errorf("%w: page %d has pin count %d", flushmanager.ErrPagePinned, pageID, page.GetPinCount())
		}
		delete(bpm.pageTable, pageID)
		if page.GetLruElement() != nil {
			bpm.lruList.Remove(page.GetLruElement())
		}
		page.Reset()
	}

	if err := bpm.diskManager.DeallocatePage(pageID); err != nil {
		return fmt.Errorf("freeing page %d: %w", pageID, err)
	}
	bpm.logger.Debug("page freed", zap.Uint64("page_id", uint64(pageID)))
	return nil
}

// FlushPage writes a specific page to disk if it's dirty.
func (bpm *BufferPoolManager) FlushPage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d not found to flush", flushmanager.ErrPageNotFound, pageID)
	}
	page := bpm.pages[frameIdx]
	if !page.IsDirty() {
		return nil
	}
	if err := bpm.diskManager.WritePage(pageID, page.GetData()); err != nil {
		return err
	}
	page.SetDirty(false)
	return nil
}

// FlushAllPages writes every dirty resident page and syncs the file.
// It keeps going after a failed write and returns the first error.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var firstErr error
	for i, page := range bpm.pages {
		if page.GetPageID() == pagemanager.InvalidPageID || !page.IsDirty() {
			continue
		}
		if err := bpm.diskManager.WritePage(page.GetPageID(), page.GetData()); err != nil {
			bpm.logger.Error("flush failed", zap.Uint64("page_id", uint64(page.GetPageID())), zap.Int("frame", i), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		page.SetDirty(false)
	}
	if err := bpm.diskManager.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Stats reports frame usage. Pinned > 0 between public heap calls means a leak.
func (bpm *BufferPoolManager) Stats() Stats {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	s := Stats{PoolSize: bpm.poolSize, Resident: len(bpm.pageTable)}
	for _, frameIdx := range bpm.pageTable {
		page := bpm.pages[frameIdx]
		if page.GetPinCount() > 0 {
			s.Pinned++
		}
		if page.IsDirty() {
			s.Dirty++
		}
	}
	return s
}

// PinCount returns the pin count of a resident page, or 0.
func (bpm *BufferPoolManager) PinCount(pageID pagemanager.PageID) uint32 {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if frameIdx, ok := bpm.pageTable[pageID]; ok {
		return bpm.pages[frameIdx].GetPinCount()
	}
	return 0
}

func (bpm *BufferPoolManager) GetPageSize() int { return bpm.pageSize }

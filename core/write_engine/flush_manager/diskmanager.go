package flushmanager

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

const (
	DefaultPageSize          = 4096
	MinPageSize              = 512
	MaxPageSize              = 32768 // slot offsets are 16 bit
	MaxFilenameLength        = 255
	DBMagic           uint32 = 0x6010ED6E // GoJo EdGE
	dbFileVersion     uint32 = 1

	// dbFileHeaderSize must match the binary encoding of DBFileHeader.
	dbFileHeaderSize = 128
)

// DBFileHeader is stored at the start of page 0. Page 0 is never handed out
// as a data page, which is what makes InvalidPageID a safe chain terminator.
type DBFileHeader struct {
	Magic        uint32
	Version      uint32
	PageSize     uint32
	NumPages     uint64             // pages in the file, header page included
	FreeListHead pagemanager.PageID // first page of the on-disk free list
	FreeCount    uint64
	_            [dbFileHeaderSize - (3*4 + 3*8)]byte
}

// DiskManager owns the page file: raw page reads and writes at fixed offsets,
// page allocation and the free list of released pages.
//
// Freed pages are chained through their first eight bytes, newest first.
type DiskManager struct {
	filePath string
	file     *os.File
	pageSize int
	maxPages uint64 // 0 means unlimited
	header   DBFileHeader
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewDiskManager prepares a disk manager; the file is opened by OpenOrCreateFile.
func NewDiskManager(filePath string, pageSize int, maxPages uint64, logger *zap.Logger) (*DiskManager, error) {
	if len(filePath) > MaxFilenameLength {
		return nil, fmt.Errorf("file path too long: %s", filePath)
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d outside [%d, %d]", pageSize, MinPageSize, MaxPageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskManager{
		filePath: filePath,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger.Named("disk_manager"),
	}, nil
}

// OpenOrCreateFile opens an existing page file or creates a new one.
// With create=true an existing file is opened as well; with create=false a
// missing file is an error.
func (dm *DiskManager) OpenOrCreateFile(create bool) (*DBFileHeader, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	_, statErr := os.Stat(dm.filePath)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrDBFileNotFound, dm.filePath)
		}
		file, err := os.OpenFile(dm.filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating file %s: %v", ErrIO, dm.filePath, err)
		}
		dm.file = file
		dm.header = DBFileHeader{
			Magic:        DBMagic,
			Version:      dbFileVersion,
			PageSize:     uint32(dm.pageSize),
			NumPages:     1, // page 0 is the header
			FreeListHead: pagemanager.InvalidPageID,
		}
		// Extend the file to a full header page, then stamp the header.
		if _, err := dm.file.WriteAt(make([]byte, dm.pageSize), 0); err != nil {
			dm.closeInternal()
			_ = os.Remove(dm.filePath)
			return nil, fmt.Errorf("%w: sizing header page: %v", ErrIO, err)
		}
		if err := dm.writeHeader(); err != nil {
			dm.closeInternal()
			_ = os.Remove(dm.filePath)
			return nil, fmt.Errorf("failed to write initial header: %w", err)
		}
		dm.logger.Info("created page file", zap.String("path", dm.filePath), zap.Int("page_size", dm.pageSize))

	case statErr == nil:
		file, err := os.OpenFile(dm.filePath, os.O_RDWR, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: opening file %s: %v", ErrIO, dm.filePath, err)
		}
		dm.file = file
		if err := dm.readHeader(); err != nil {
			dm.closeInternal()
			return nil, fmt.Errorf("failed to read database header: %w", err)
		}
		if dm.header.Magic != DBMagic {
			dm.closeInternal()
			return nil, fmt.Errorf("%w: magic 0x%x", ErrDBFileCorrupt, dm.header.Magic)
		}
		if dm.header.PageSize != uint32(dm.pageSize) {
			dm.closeInternal()
			return nil, fmt.Errorf("%w: file has %d, configured %d", ErrPageSizeMismatch, dm.header.PageSize, dm.pageSize)
		}
		dm.logger.Info("opened page file",
			zap.String("path", dm.filePath),
			zap.Uint64("num_pages", dm.header.NumPages),
			zap.Uint64("free_pages", dm.header.FreeCount))

	default:
		return nil, fmt.Errorf("%w: stating file %s: %v", ErrIO, dm.filePath, statErr)
	}

	header := dm.header
	return &header, nil
}

// writeHeader serializes the header into the start of page 0. Caller holds dm.mu.
func (dm *DiskManager) writeHeader() error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &dm.header); err != nil {
		return fmt.Errorf("%w: serializing header: %v", ErrSerialization, err)
	}
	if buf.Len() != dbFileHeaderSize {
		return fmt.Errorf("%w: header encodes to %d bytes, want %d", ErrSerialization, buf.Len(), dbFileHeaderSize)
	}
	if _, err := dm.file.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: writing header to disk: %v", ErrIO, err)
	}
	return nil
}

// readHeader loads the header from page 0. Caller holds dm.mu.
func (dm *DiskManager) readHeader() error {
	data := make([]byte, dbFileHeaderSize)
	n, err := dm.file.ReadAt(data, 0)
	if err != nil {
		if errors.Is(err, io.EOF) && n < dbFileHeaderSize {
			return fmt.Errorf("%w: header too short", ErrDBFileCorrupt)
		}
		return fmt.Errorf("%w: reading header from disk: %v", ErrIO, err)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &dm.header); err != nil {
		return fmt.Errorf("%w: deserializing header: %v", ErrDeserialization, err)
	}
	return nil
}

func (dm *DiskManager) checkPageID(pageID pagemanager.PageID) error {
	if pageID == pagemanager.InvalidPageID || uint64(pageID) >= dm.header.NumPages {
		return fmt.Errorf("%w: %d (file has %d pages)", ErrInvalidPageID, pageID, dm.header.NumPages)
	}
	return nil
}

// ReadPage reads a page's data from disk into the provided pageData buffer.
func (dm *DiskManager) ReadPage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileNotOpen
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	if err := dm.checkPageID(pageID); err != nil {
		return err
	}
	offset := int64(pageID) * int64(dm.pageSize)
	bytesRead, err := dm.file.ReadAt(pageData, offset)
	if err != nil {
		return fmt.Errorf("%w: reading page %d at offset %d: %v", ErrIO, pageID, offset, err)
	}
	if bytesRead != dm.pageSize {
		return fmt.Errorf("%w: short read for page %d, expected %d, got %d", ErrIO, pageID, dm.pageSize, bytesRead)
	}
	return nil
}

// WritePage writes pageData to disk at the specified pageID's location.
// Durability is left to Sync.
func (dm *DiskManager) WritePage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileNotOpen
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	if err := dm.checkPageID(pageID); err != nil {
		return err
	}
	offset := int64(pageID) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(pageData, offset); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", ErrIO, pageID, offset, err)
	}
	return nil
}

// AllocatePage hands out a page id, reusing the most recently freed page
// before growing the file.
func (dm *DiskManager) AllocatePage() (pagemanager.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return pagemanager.InvalidPageID, ErrFileNotOpen
	}

	if head := dm.header.FreeListHead; head != pagemanager.InvalidPageID {
		link := make([]byte, 8)
		if _, err := dm.file.ReadAt(link, int64(head)*int64(dm.pageSize)); err != nil {
			return pagemanager.InvalidPageID, fmt.Errorf("%w: reading free list link of page %d: %v", ErrIO, head, err)
		}
		dm.header.FreeListHead = pagemanager.PageID(binary.LittleEndian.Uint64(link))
		dm.header.FreeCount--
		if err := dm.writeHeader(); err != nil {
			return pagemanager.InvalidPageID, err
		}
		dm.logger.Debug("reused free page", zap.Uint64("page_id", uint64(head)))
		return head, nil
	}

	if dm.maxPages > 0 && dm.header.NumPages >= dm.maxPages {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: %d pages", ErrDiskFull, dm.maxPages)
	}

	newPageID := pagemanager.PageID(dm.header.NumPages)
	offset := int64(newPageID) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(make([]byte, dm.pageSize), offset); err != nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: extending file for new page %d: %v", ErrIO, newPageID, err)
	}
	dm.header.NumPages++
	if err := dm.writeHeader(); err != nil {
		return pagemanager.InvalidPageID, err
	}
	dm.logger.Debug("extended page file", zap.Uint64("page_id", uint64(newPageID)))
	return newPageID, nil
}

// DeallocatePage pushes a page onto the free list.
func (dm *DiskManager) DeallocatePage(pageID pagemanager.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileNotOpen
	}
	if err := dm.checkPageID(pageID); err != nil {
		return err
	}

	data := make([]byte, dm.pageSize)
	binary.LittleEndian.PutUint64(data, uint64(dm.header.FreeListHead))
	if _, err := dm.file.WriteAt(data, int64(pageID)*int64(dm.pageSize)); err != nil {
		return fmt.Errorf("%w: writing free list link into page %d: %v", ErrIO, pageID, err)
	}
	dm.header.FreeListHead = pageID
	dm.header.FreeCount++
	if err := dm.writeHeader(); err != nil {
		return err
	}
	dm.logger.Debug("freed page", zap.Uint64("page_id", uint64(pageID)), zap.Uint64("free_pages", dm.header.FreeCount))
	return nil
}

// NumPages returns the number of pages in the file, header page included.
func (dm *DiskManager) NumPages() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.header.NumPages
}

// FreePageCount returns the length of the free list.
func (dm *DiskManager) FreePageCount() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.header.FreeCount
}

func (dm *DiskManager) GetPageSize() int    { return dm.pageSize }
func (dm *DiskManager) GetFilePath() string { return dm.filePath }

// Sync flushes all buffered data to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file != nil {
		return dm.file.Sync()
	}
	return nil
}

// Close syncs and closes the underlying file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.closeInternal()
}

func (dm *DiskManager) closeInternal() error {
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.logger.Warn("sync on close failed", zap.Error(err))
	}
	closeErr := dm.file.Close()
	dm.file = nil
	return closeErr
}

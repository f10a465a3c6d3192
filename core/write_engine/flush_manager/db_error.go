package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrPageNotFound     = errors.New("page not found in buffer pool")
	ErrBufferPoolFull   = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned       = errors.New("page is pinned and cannot be freed")
	ErrPageNotPinned    = errors.New("page is not pinned")
	ErrSerialization    = errors.New("error during serialization")
	ErrDeserialization  = errors.New("error during deserialization")
	ErrIO               = errors.New("i/o error")
	ErrInvalidPageID    = errors.New("invalid page id")
	ErrDBFileNotFound   = errors.New("database file not found")
	ErrDBFileCorrupt    = errors.New("database file header is corrupt")
	ErrPageSizeMismatch = errors.New("database file page size does not match configured page size")
	ErrDiskFull         = errors.New("page file reached its configured page limit")
	ErrFileNotOpen      = errors.New("file not open")
)

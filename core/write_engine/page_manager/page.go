package pagemanager

import (
	"container/list" // For LRU
	"fmt"
)

// --- Page Management ---

const (
	// InvalidPageID is never handed out by the disk manager (page 0 holds the
	// file header), so it doubles as the terminal link in page chains.
	InvalidPageID PageID = 0
)

// PageID represents a unique identifier for a page on disk.
type PageID uint64

func (p PageID) String() string {
	if p == InvalidPageID {
		return "invalid"
	}
	return fmt.Sprintf("%d", uint64(p))
}

// Page represents an in-memory copy of a disk page held in a buffer pool frame.
// Frames are guarded by the buffer pool's mutex and the pin protocol; a
// pinned page's data belongs to whoever pinned it.
type Page struct {
	id       PageID
	data     []byte
	pinCount uint32
	isDirty  bool
	// For LRU
	lruElement *list.Element
}

// NewPage creates a new Page instance.
func NewPage(id PageID, size int) *Page {
	return &Page{
		id:   id,
		data: make([]byte, size),
	}
}

// Reset returns the frame to its unused state and zeroes the data buffer.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.lruElement = nil
	clear(p.data)
}

func (p *Page) GetLruElement() *list.Element     { return p.lruElement }
func (p *Page) SetLruElement(elem *list.Element) { p.lruElement = elem }
func (p *Page) GetData() []byte                  { return p.data }
func (p *Page) GetPageID() PageID                { return p.id }
func (p *Page) SetPageID(id PageID)              { p.id = id }
func (p *Page) IsDirty() bool                    { return p.isDirty }
func (p *Page) SetDirty(dirty bool)              { p.isDirty = dirty }
func (p *Page) Pin()                             { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() uint32         { return p.pinCount }
func (p *Page) SetPinCount(pinCount uint32) { p.pinCount = pinCount }

// Package slottedpage implements the single-page record layout shared by the
// directory pages and the data pages of an edge heap file.
//
// Page layout (all values little-endian):
//
//	Offset  Size  Field
//	──────────────────────────────────────────────
//	0       8     PageID
//	8       8     PrevPage   (InvalidPageID when none)
//	16      8     NextPage   (InvalidPageID when none)
//	24      2     SlotCount  (live + empty slot entries)
//	26      2     FreePtr    (first byte of the record area)
//	28      1     PageType
//	29      3     reserved
//	──────────────────────────────────────────────
//	32            HeaderSize
//
//	[ header ][ slot table → ][ free space ][ ← records ]
//	0         32               ^            ^            len(page)
//	                           slot end     FreePtr
//
// A slot entry is 4 bytes: [ Offset uint16 ][ Length uint16 ]. Offset 0 marks
// an empty slot; no record can live there because the header occupies it.
// Deleting a record compacts the record area, so slot numbers of the surviving
// records never change.
package slottedpage

import (
	"encoding/binary"
	"errors"
	"fmt"

	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

const (
	offPageID    = 0
	offPrev      = 8
	offNext      = 16
	offSlotCount = 24
	offFreePtr   = 26
	offPageType  = 28

	// HeaderSize is the fixed header size in bytes.
	HeaderSize = 32
	// SlotSize is the size of one slot table entry.
	SlotSize = 4

	maxPageLen = 1 << 16
)

// SlotID is the index of a slot table entry.
type SlotID uint16

// PageType tags what kind of records a page holds.
type PageType uint8

const (
	TypeUnknown PageType = iota
	TypeDirectory
	TypeData
)

func (t PageType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeData:
		return "data"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidSlot  = errors.New("invalid slot number")
	ErrNoSpace      = errors.New("not enough free space on page")
	ErrEmptyRecord  = errors.New("records must not be empty")
	ErrPageTooLarge = errors.New("page buffer too large for 16-bit slot offsets")
	ErrCorruptPage  = errors.New("slotted page header is corrupt")
)

// SlottedPage is a view over a page buffer. It owns no memory; every change
// is written straight into the buffer.
type SlottedPage struct {
	buf []byte
}

// MaxRecordSize is the largest record an empty page of pageSize can hold.
func MaxRecordSize(pageSize int) int {
	return pageSize - HeaderSize - SlotSize
}

// Init formats buf as an empty slotted page with no neighbours.
func Init(buf []byte, pageID pagemanager.PageID, pageType PageType) (*SlottedPage, error) {
	if len(buf) >= maxPageLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageTooLarge, len(buf))
	}
	if len(buf) < HeaderSize+SlotSize+1 {
		return nil, fmt.Errorf("%w: %d bytes is smaller than one record", ErrCorruptPage, len(buf))
	}
	clear(buf)
	sp := &SlottedPage{buf: buf}
	binary.LittleEndian.PutUint64(buf[offPageID:], uint64(pageID))
	sp.SetPrev(pagemanager.InvalidPageID)
	sp.SetNext(pagemanager.InvalidPageID)
	sp.setSlotCount(0)
	sp.setFreePtr(uint16(len(buf)))
	buf[offPageType] = byte(pageType)
	return sp, nil
}

// Wrap interprets an already formatted buffer.
func Wrap(buf []byte) (*SlottedPage, error) {
	if len(buf) >= maxPageLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageTooLarge, len(buf))
	}
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the header", ErrCorruptPage, len(buf))
	}
	sp := &SlottedPage{buf: buf}
	slotEnd := HeaderSize + int(sp.slotCount())*SlotSize
	freePtr := int(sp.freePtr())
	if freePtr > len(buf) || slotEnd > freePtr {
		return nil, fmt.Errorf("%w: slot table ends at %d, record area starts at %d, page is %d bytes",
			ErrCorruptPage, slotEnd, freePtr, len(buf))
	}
	return sp, nil
}

func (sp *SlottedPage) slotCount() uint16     { return binary.LittleEndian.Uint16(sp.buf[offSlotCount:]) }
func (sp *SlottedPage) setSlotCount(n uint16) { binary.LittleEndian.PutUint16(sp.buf[offSlotCount:], n) }
func (sp *SlottedPage) freePtr() uint16       { return binary.LittleEndian.Uint16(sp.buf[offFreePtr:]) }
func (sp *SlottedPage) setFreePtr(p uint16)   { binary.LittleEndian.PutUint16(sp.buf[offFreePtr:], p) }

func (sp *SlottedPage) slot(i SlotID) (offset, length uint16) {
	pos := HeaderSize + int(i)*SlotSize
	return binary.LittleEndian.Uint16(sp.buf[pos:]), binary.LittleEndian.Uint16(sp.buf[pos+2:])
}

func (sp *SlottedPage) setSlot(i SlotID, offset, length uint16) {
	pos := HeaderSize + int(i)*SlotSize
	binary.LittleEndian.PutUint16(sp.buf[pos:], offset)
	binary.LittleEndian.PutUint16(sp.buf[pos+2:], length)
}

// PageID returns the id stamped by Init.
func (sp *SlottedPage) PageID() pagemanager.PageID {
	return pagemanager.PageID(binary.LittleEndian.Uint64(sp.buf[offPageID:]))
}

func (sp *SlottedPage) Type() PageType { return PageType(sp.buf[offPageType]) }

func (sp *SlottedPage) Prev() pagemanager.PageID {
	return pagemanager.PageID(binary.LittleEndian.Uint64(sp.buf[offPrev:]))
}

func (sp *SlottedPage) SetPrev(id pagemanager.PageID) {
	binary.LittleEndian.PutUint64(sp.buf[offPrev:], uint64(id))
}

func (sp *SlottedPage) Next() pagemanager.PageID {
	return pagemanager.PageID(binary.LittleEndian.Uint64(sp.buf[offNext:]))
}

func (sp *SlottedPage) SetNext(id pagemanager.PageID) {
	binary.LittleEndian.PutUint64(sp.buf[offNext:], uint64(id))
}

// freeSpace is the gap between the slot table and the record area.
func (sp *SlottedPage) freeSpace() int {
	return int(sp.freePtr()) - HeaderSize - int(sp.slotCount())*SlotSize
}

// AvailableSpace is the largest record an insert is guaranteed to accept,
// assuming it needs a fresh slot entry.
func (sp *SlottedPage) AvailableSpace() int {
	if avail := sp.freeSpace() - SlotSize; avail > 0 {
		return avail
	}
	return 0
}

// InsertRecord copies rec into the page and returns its slot. Empty slots are
// reused before the slot table grows.
func (sp *SlottedPage) InsertRecord(rec []byte) (SlotID, error) {
	if len(rec) == 0 {
		return 0, ErrEmptyRecord
	}

	count := sp.slotCount()
	slot := SlotID(count)
	for i := SlotID(0); i < SlotID(count); i++ {
		if off, _ := sp.slot(i); off == 0 {
			slot = i
			break
		}
	}

	need := len(rec)
	if slot == SlotID(count) {
		need += SlotSize
	}
	if need > sp.freeSpace() {
		return 0, fmt.Errorf("%w: need %d bytes, %d free", ErrNoSpace, need, sp.freeSpace())
	}

	offset := sp.freePtr() - uint16(len(rec))
	copy(sp.buf[offset:], rec)
	sp.setFreePtr(offset)
	sp.setSlot(slot, offset, uint16(len(rec)))
	if slot == SlotID(count) {
		sp.setSlotCount(count + 1)
	}
	return slot, nil
}

func (sp *SlottedPage) checkSlot(slot SlotID) (offset, length uint16, err error) {
	if uint16(slot) >= sp.slotCount() {
		return 0, 0, fmt.Errorf("%w: %d (page has %d slots)", ErrInvalidSlot, slot, sp.slotCount())
	}
	offset, length = sp.slot(slot)
	if offset == 0 {
		return 0, 0, fmt.Errorf("%w: %d is empty", ErrInvalidSlot, slot)
	}
	if int(offset)+int(length) > len(sp.buf) || offset < sp.freePtr() {
		return 0, 0, fmt.Errorf("%w: slot %d points outside the record area", ErrCorruptPage, slot)
	}
	return offset, length, nil
}

// DeleteRecord removes a record and closes the hole it leaves in the record area.
func (sp *SlottedPage) DeleteRecord(slot SlotID) error {
	offset, length, err := sp.checkSlot(slot)
	if err != nil {
		return err
	}

	// Every record stored below the victim moves up by its length.
	freePtr := sp.freePtr()
	copy(sp.buf[freePtr+length:offset+length], sp.buf[freePtr:offset])
	count := sp.slotCount()
	for i := SlotID(0); i < SlotID(count); i++ {
		if o, l := sp.slot(i); o != 0 && o < offset {
			sp.setSlot(i, o+length, l)
		}
	}
	sp.setFreePtr(freePtr + length)
	sp.setSlot(slot, 0, 0)

	for count > 0 {
		if o, _ := sp.slot(SlotID(count - 1)); o != 0 {
			break
		}
		count--
	}
	sp.setSlotCount(count)
	return nil
}

// GetRecord returns a copy of the record in slot.
func (sp *SlottedPage) GetRecord(slot SlotID) ([]byte, error) {
	b, err := sp.RecordBytes(slot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// RecordBytes returns the record in place. Writes through the slice change
// the page; callers must not change its length.
func (sp *SlottedPage) RecordBytes(slot SlotID) ([]byte, error) {
	offset, length, err := sp.checkSlot(slot)
	if err != nil {
		return nil, err
	}
	return sp.buf[offset : offset+length : offset+length], nil
}

// FirstSlot returns the first occupied slot in physical order.
func (sp *SlottedPage) FirstSlot() (SlotID, bool) {
	return sp.scanFrom(0)
}

// NextSlot returns the first occupied slot after slot.
func (sp *SlottedPage) NextSlot(slot SlotID) (SlotID, bool) {
	return sp.scanFrom(int(slot) + 1)
}

func (sp *SlottedPage) scanFrom(start int) (SlotID, bool) {
	count := int(sp.slotCount())
	for i := start; i < count; i++ {
		if off, _ := sp.slot(SlotID(i)); off != 0 {
			return SlotID(i), true
		}
	}
	return 0, false
}

// RecordCount returns the number of occupied slots.
func (sp *SlottedPage) RecordCount() int {
	n := 0
	for s, ok := sp.FirstSlot(); ok; s, ok = sp.NextSlot(s) {
		n++
	}
	return n
}

// IsEmpty reports whether the page holds no records.
func (sp *SlottedPage) IsEmpty() bool {
	_, ok := sp.FirstSlot()
	return !ok
}

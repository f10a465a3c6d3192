package edgeheap

import (
	"encoding/binary"
	"fmt"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

// DataPageInfoSize is the encoded size of a directory entry.
const DataPageInfoSize = 16

// DataPageInfo is a directory entry describing one data page. RecordCount and
// FreeSpace always match the live state of the page after a successful call.
type DataPageInfo struct {
	PageID      pagemanager.PageID
	RecordCount int32
	FreeSpace   int32
}

// Encode returns the 16-byte on-page form: page id, record count, free space.
func (d DataPageInfo) Encode() []byte {
	buf := make([]byte, DataPageInfoSize)
	d.encodeTo(buf)
	return buf
}

func (d DataPageInfo) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(d.PageID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(d.RecordCount))
	binary.LittleEndian.PutUint32(buf[12:], uint32(d.FreeSpace))
}

// DecodeDataPageInfo parses a directory entry.
func DecodeDataPageInfo(b []byte) (DataPageInfo, error) {
	if len(b) != DataPageInfoSize {
		return DataPageInfo{}, fmt.Errorf("%w: %d bytes, want %d", ErrCorruptEntry, len(b), DataPageInfoSize)
	}
	return DataPageInfo{
		PageID:      pagemanager.PageID(binary.LittleEndian.Uint64(b[0:])),
		RecordCount: int32(binary.LittleEndian.Uint32(b[8:])),
		FreeSpace:   int32(binary.LittleEndian.Uint32(b[12:])),
	}, nil
}

func readEntry(dir *slottedpage.SlottedPage, slot slottedpage.SlotID) (DataPageInfo, error) {
	b, err := dir.RecordBytes(slot)
	if err != nil {
		return DataPageInfo{}, fmt.Errorf("%w: directory page %d slot %d: %w", ErrCorruptEntry, dir.PageID(), slot, err)
	}
	info, err := DecodeDataPageInfo(b)
	if err != nil {
		return DataPageInfo{}, fmt.Errorf("directory page %d slot %d: %w", dir.PageID(), slot, err)
	}
	if info.PageID == pagemanager.InvalidPageID || info.RecordCount < 0 {
		return DataPageInfo{}, fmt.Errorf("%w: directory page %d slot %d describes page %d with %d records",
			ErrCorruptEntry, dir.PageID(), slot, info.PageID, info.RecordCount)
	}
	return info, nil
}

// writeEntry overwrites an entry in place; entries never change size.
func writeEntry(dir *slottedpage.SlottedPage, slot slottedpage.SlotID, info DataPageInfo) error {
	b, err := dir.RecordBytes(slot)
	if err != nil {
		return fmt.Errorf("%w: directory page %d slot %d: %w", ErrCorruptEntry, dir.PageID(), slot, err)
	}
	if len(b) != DataPageInfoSize {
		return fmt.Errorf("%w: directory page %d slot %d holds %d bytes", ErrCorruptEntry, dir.PageID(), slot, len(b))
	}
	info.encodeTo(b)
	return nil
}

package edgeheap

import (
	"fmt"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

// EID is the physical address of an edge: its data page and slot. It stays
// valid until the edge is deleted.
type EID struct {
	PageID pagemanager.PageID
	SlotNo slottedpage.SlotID
}

func (e EID) String() string {
	return fmt.Sprintf("[%d:%d]", e.PageID, e.SlotNo)
}

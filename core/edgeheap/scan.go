package edgeheap

import (
	"context"
	"errors"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

// Scan iterates over every live edge in directory order, then slot order.
// It remembers page ids and slot numbers only, so no page stays pinned
// between calls to Next. Edges inserted or deleted during a scan may or may
// not be observed, but a scan only ever reads pages that still belong to the
// file.
type Scan struct {
	f *EdgeHeapfile

	dirID     pagemanager.PageID
	dirIndex  int // position of dirID in the chain
	entrySlot slottedpage.SlotID
	haveEntry bool
	dataID    pagemanager.PageID
	dataGone  bool // the entry at entrySlot no longer describes dataID
	slot      slottedpage.SlotID
	haveSlot  bool
	done      bool

	generation uint64
}

// OpenScan starts a scan at the first edge of the file.
func (f *EdgeHeapfile) OpenScan() *Scan {
	s := &Scan{f: f}
	s.Reset()
	return s
}

// Reset rewinds the scan to the beginning.
func (s *Scan) Reset() {
	s.dirID, s.dirIndex = s.f.firstDirPageID, 0
	s.haveEntry, s.dataGone, s.haveSlot, s.done = false, false, false, false
	s.generation = s.f.generation
}

// Close ends the scan; later calls to Next report no more edges.
func (s *Scan) Close() { s.done = true }

// Next returns the next edge. ok is false once the file is exhausted.
func (s *Scan) Next(ctx context.Context) (eid EID, e *Edge, ok bool, err error) {
	_, end := s.f.begin(ctx, "scan_next")
	defer end(&err)
	if err := s.f.checkLive(); err != nil {
		return EID{}, nil, false, err
	}
	if !s.done && s.generation != s.f.generation {
		if err := s.resync(); err != nil {
			return EID{}, nil, false, err
		}
	}

	for !s.done {
		if s.haveEntry && !s.dataGone {
			eid, e, found, err := s.nextOnDataPage()
			if err != nil || found {
				return eid, e, found, err
			}
		}
		if err := s.advanceEntry(); err != nil {
			return EID{}, nil, false, err
		}
	}
	return EID{}, nil, false, nil
}

// resync revalidates the remembered position after pages left the file.
// If the current directory page was unlinked, the scan continues with the
// page that now holds its place in the chain. If the current data page was
// freed, the scan continues with the entry after it.
func (s *Scan) resync() error {
	s.generation = s.f.generation

	var ids []pagemanager.PageID
	err := s.f.forEachDirPage(func(dir *pinnedPage) (bool, error) {
		ids = append(ids, dir.id)
		return false, nil
	})
	if err != nil {
		return err
	}

	for i, id := range ids {
		if id == s.dirID {
			s.dirIndex = i
			if !s.haveEntry {
				return nil
			}
			return s.checkEntry()
		}
	}

	s.haveEntry, s.dataGone, s.haveSlot = false, false, false
	if s.dirIndex >= len(ids) {
		s.done = true
		return nil
	}
	s.dirID = ids[s.dirIndex]
	return nil
}

// checkEntry marks the data page gone unless entrySlot still describes it.
func (s *Scan) checkEntry() error {
	dir, err := pinAs(s.f.bpm, s.dirID, slottedpage.TypeDirectory)
	if err != nil {
		return err
	}
	info, err := readEntry(dir.sp, s.entrySlot)
	if err != nil && !errors.Is(err, slottedpage.ErrInvalidSlot) {
		return errors.Join(err, dir.release())
	}
	s.dataGone = err != nil || info.PageID != s.dataID
	return dir.release()
}

// nextOnDataPage returns the edge after the current slot of the current data page.
func (s *Scan) nextOnDataPage() (EID, *Edge, bool, error) {
	data, err := pinAs(s.f.bpm, s.dataID, slottedpage.TypeData)
	if err != nil {
		return EID{}, nil, false, err
	}
	var (
		slot slottedpage.SlotID
		ok   bool
	)
	if s.haveSlot {
		slot, ok = data.sp.NextSlot(s.slot)
	} else {
		slot, ok = data.sp.FirstSlot()
	}
	if !ok {
		return EID{}, nil, false, data.release()
	}
	b, err := data.sp.RecordBytes(slot)
	if err != nil {
		return EID{}, nil, false, errors.Join(err, data.release())
	}
	e, err := DecodeEdge(b)
	if err = errors.Join(err, data.release()); err != nil {
		return EID{}, nil, false, err
	}
	s.slot, s.haveSlot = slot, true
	return EID{PageID: s.dataID, SlotNo: slot}, e, true, nil
}

// advanceEntry moves to the next directory entry, following the chain
// forward when the current directory page is used up.
func (s *Scan) advanceEntry() error {
	dir, err := pinAs(s.f.bpm, s.dirID, slottedpage.TypeDirectory)
	if err != nil {
		return err
	}
	var (
		slot slottedpage.SlotID
		ok   bool
	)
	if s.haveEntry {
		slot, ok = dir.sp.NextSlot(s.entrySlot)
	} else {
		slot, ok = dir.sp.FirstSlot()
	}
	if ok {
		info, err := readEntry(dir.sp, slot)
		if err != nil {
			return errors.Join(err, dir.release())
		}
		s.entrySlot, s.haveEntry, s.dataGone = slot, true, false
		s.dataID, s.haveSlot = info.PageID, false
		return dir.release()
	}

	next := dir.sp.Next()
	if err := dir.release(); err != nil {
		return err
	}
	s.haveEntry, s.dataGone = false, false
	if next == pagemanager.InvalidPageID {
		s.done = true
		return nil
	}
	s.dirID = next
	s.dirIndex++
	return nil
}

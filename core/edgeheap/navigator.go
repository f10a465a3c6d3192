package edgeheap

import (
	"errors"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

// location is a located record. It owns a pin on the directory page holding
// the record's entry and a pin on the data page holding the record; the
// holder must call release on every path.
type location struct {
	dir       *pinnedPage
	data      *pinnedPage
	entrySlot slottedpage.SlotID
	entry     DataPageInfo
}

func (l *location) release() error {
	return errors.Join(l.data.release(), l.dir.release())
}

// locate finds the directory entry and data page for eid. A nil location with
// a nil error means the record does not exist; nothing is left pinned then.
func (f *EdgeHeapfile) locate(eid EID) (*location, error) {
	dirID := f.firstDirPageID
	for dirID != pagemanager.InvalidPageID {
		dir, err := pinAs(f.bpm, dirID, slottedpage.TypeDirectory)
		if err != nil {
			return nil, err
		}

		for s, ok := dir.sp.FirstSlot(); ok; s, ok = dir.sp.NextSlot(s) {
			info, err := readEntry(dir.sp, s)
			if err != nil {
				return nil, errors.Join(err, dir.release())
			}
			if info.PageID != eid.PageID {
				continue
			}

			// Data page ids are unique within a file, so this is the only candidate.
			data, err := pinAs(f.bpm, info.PageID, slottedpage.TypeData)
			if err != nil {
				return nil, errors.Join(err, dir.release())
			}
			if _, err := data.sp.RecordBytes(eid.SlotNo); err != nil {
				if errors.Is(err, slottedpage.ErrInvalidSlot) {
					return nil, errors.Join(data.release(), dir.release())
				}
				return nil, errors.Join(err, data.release(), dir.release())
			}
			return &location{dir: dir, data: data, entrySlot: s, entry: info}, nil
		}

		next := dir.sp.Next()
		if err := dir.release(); err != nil {
			return nil, err
		}
		dirID = next
	}
	return nil, nil
}

// forEachDirPage pins each directory page in chain order and passes it to fn.
// The page is released after fn returns, with whatever dirty state fn left.
// Returning stop=true ends the walk early.
func (f *EdgeHeapfile) forEachDirPage(fn func(dir *pinnedPage) (stop bool, err error)) error {
	dirID := f.firstDirPageID
	for dirID != pagemanager.InvalidPageID {
		dir, err := pinAs(f.bpm, dirID, slottedpage.TypeDirectory)
		if err != nil {
			return err
		}
		stop, err := fn(dir)
		next := dir.sp.Next()
		if relErr := dir.release(); err != nil || relErr != nil {
			return errors.Join(err, relErr)
		}
		if stop {
			return nil
		}
		dirID = next
	}
	return nil
}

// forEachEntry visits every directory entry of the file in chain and slot order.
func (f *EdgeHeapfile) forEachEntry(fn func(info DataPageInfo) error) error {
	return f.forEachDirPage(func(dir *pinnedPage) (bool, error) {
		for s, ok := dir.sp.FirstSlot(); ok; s, ok = dir.sp.NextSlot(s) {
			info, err := readEntry(dir.sp, s)
			if err != nil {
				return true, err
			}
			if err := fn(info); err != nil {
				return true, err
			}
		}
		return false, nil
	})
}

// forEachEdge decodes every live edge, one data page pinned at a time on top
// of the current directory page.
func (f *EdgeHeapfile) forEachEdge(fn func(eid EID, e *Edge) error) error {
	return f.forEachEntry(func(info DataPageInfo) error {
		data, err := pinAs(f.bpm, info.PageID, slottedpage.TypeData)
		if err != nil {
			return err
		}
		for s, ok := data.sp.FirstSlot(); ok; s, ok = data.sp.NextSlot(s) {
			b, err := data.sp.RecordBytes(s)
			if err != nil {
				return errors.Join(err, data.release())
			}
			e, err := DecodeEdge(b)
			if err != nil {
				return errors.Join(err, data.release())
			}
			if err := fn(EID{PageID: info.PageID, SlotNo: s}, e); err != nil {
				return errors.Join(err, data.release())
			}
		}
		return data.release()
	})
}

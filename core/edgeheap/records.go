package edgeheap

import (
	"context"
	"errors"
	"fmt"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// MaxRecordSize is the largest record the file accepts.
func (f *EdgeHeapfile) MaxRecordSize() int {
	return slottedpage.MaxRecordSize(f.pageSize)
}

// InsertEdge stores e and returns its address.
func (f *EdgeHeapfile) InsertEdge(ctx context.Context, e *Edge) (EID, error) {
	rec, err := e.Encode()
	if err != nil {
		return EID{}, err
	}
	return f.InsertRecord(ctx, rec)
}

// InsertRecord stores an encoded edge on the first data page with room for
// it, adding data pages and directory pages as needed.
func (f *EdgeHeapfile) InsertRecord(ctx context.Context, rec []byte) (eid EID, err error) {
	ctx, end := f.begin(ctx, "insert")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return EID{}, err
	}
	if len(rec) == 0 {
		return EID{}, ErrEmptyRecord
	}
	if len(rec) > f.MaxRecordSize() {
		return EID{}, fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, len(rec), f.MaxRecordSize())
	}

	dirID := f.firstDirPageID
	for {
		dir, err := pinAs(f.bpm, dirID, slottedpage.TypeDirectory)
		if err != nil {
			return EID{}, err
		}

		for s, ok := dir.sp.FirstSlot(); ok; s, ok = dir.sp.NextSlot(s) {
			info, err := readEntry(dir.sp, s)
			if err != nil {
				return EID{}, errors.Join(err, dir.release())
			}
			if int(info.FreeSpace) < len(rec) {
				continue
			}
			data, err := pinAs(f.bpm, info.PageID, slottedpage.TypeData)
			if err != nil {
				return EID{}, errors.Join(err, dir.release())
			}
			eid, err := f.place(ctx, dir, s, info, data, rec)
			return eid, errors.Join(err, dir.release())
		}

		// Nothing fits here. Start a data page if the directory page can
		// describe one more; the new entry fits rec by construction.
		if dir.sp.AvailableSpace() >= DataPageInfoSize {
			data, info, err := f.newDataPage(ctx)
			if err != nil {
				return EID{}, errors.Join(err, dir.release())
			}
			s, err := dir.sp.InsertRecord(info.Encode())
			if err != nil {
				return EID{}, errors.Join(
					fmt.Errorf("adding entry for data page %d: %w", info.PageID, err),
					data.releaseAndFree(),
					dir.release())
			}
			dir.markDirty()
			eid, err := f.place(ctx, dir, s, info, data, rec)
			return eid, errors.Join(err, dir.release())
		}

		next := dir.sp.Next()
		if next == pagemanager.InvalidPageID {
			newDir, err := formatNew(f.bpm, slottedpage.TypeDirectory)
			if err != nil {
				return EID{}, errors.Join(err, dir.release())
			}
			f.metrics.PagesAllocated.Add(ctx, 1)
			newDir.sp.SetPrev(dirID)
			dir.sp.SetNext(newDir.id)
			dir.markDirty()
			next = newDir.id
			f.logger.Debug("appended directory page", zap.Stringer("page_id", next), zap.Stringer("prev", dirID))
			if err := newDir.release(); err != nil {
				return EID{}, errors.Join(err, dir.release())
			}
		}
		if err := dir.release(); err != nil {
			return EID{}, err
		}
		dirID = next
	}
}

// newDataPage allocates and formats an empty data page and describes it.
func (f *EdgeHeapfile) newDataPage(ctx context.Context) (*pinnedPage, DataPageInfo, error) {
	data, err := formatNew(f.bpm, slottedpage.TypeData)
	if err != nil {
		return nil, DataPageInfo{}, err
	}
	f.metrics.PagesAllocated.Add(ctx, 1)
	f.logger.Debug("allocated data page", zap.Stringer("page_id", data.id))
	return data, DataPageInfo{
		PageID:      data.id,
		RecordCount: 0,
		FreeSpace:   int32(data.sp.AvailableSpace()),
	}, nil
}

// place inserts rec into data and refreshes its directory entry. data is
// always released; dir stays with the caller.
func (f *EdgeHeapfile) place(ctx context.Context, dir *pinnedPage, entrySlot slottedpage.SlotID, info DataPageInfo, data *pinnedPage, rec []byte) (EID, error) {
	slot, err := data.sp.InsertRecord(rec)
	if err != nil {
		return EID{}, errors.Join(fmt.Errorf("inserting into data page %d: %w", data.id, err), data.release())
	}
	data.markDirty()

	info.RecordCount++
	info.FreeSpace = int32(data.sp.AvailableSpace())
	if err := writeEntry(dir.sp, entrySlot, info); err != nil {
		return EID{}, errors.Join(err, data.release())
	}
	dir.markDirty()

	if err := data.release(); err != nil {
		return EID{}, err
	}
	f.metrics.RecordsInserted.Add(ctx, 1)
	return EID{PageID: data.id, SlotNo: slot}, nil
}

// GetRecord returns a copy of the encoded edge at eid.
func (f *EdgeHeapfile) GetRecord(ctx context.Context, eid EID) (rec []byte, found bool, err error) {
	ctx, end := f.begin(ctx, "get")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return nil, false, err
	}

	loc, err := f.locate(eid)
	if err != nil || loc == nil {
		return nil, false, err
	}
	rec, err = loc.data.sp.GetRecord(eid.SlotNo)
	if err = errors.Join(err, loc.release()); err != nil {
		return nil, false, err
	}
	f.metrics.RecordsRead.Add(ctx, 1)
	return rec, true, nil
}

// GetEdge returns the edge at eid.
func (f *EdgeHeapfile) GetEdge(ctx context.Context, eid EID) (*Edge, bool, error) {
	rec, found, err := f.GetRecord(ctx, eid)
	if err != nil || !found {
		return nil, found, err
	}
	e, err := DecodeEdge(rec)
	if err != nil {
		return nil, false, fmt.Errorf("edge %s: %w", eid, err)
	}
	return e, true, nil
}

// UpdateRecord overwrites the record at eid in place. rec must have the same
// length as the stored record.
func (f *EdgeHeapfile) UpdateRecord(ctx context.Context, eid EID, rec []byte) (found bool, err error) {
	ctx, end := f.begin(ctx, "update")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return false, err
	}

	loc, err := f.locate(eid)
	if err != nil || loc == nil {
		return false, err
	}
	cur, err := loc.data.sp.RecordBytes(eid.SlotNo)
	if err != nil {
		return false, errors.Join(err, loc.release())
	}
	if len(cur) != len(rec) {
		return false, errors.Join(
			fmt.Errorf("%w: %s holds %d bytes, got %d", ErrInvalidUpdate, eid, len(cur), len(rec)),
			loc.release())
	}
	copy(cur, rec)
	loc.data.markDirty()
	if err := loc.release(); err != nil {
		return false, err
	}
	f.metrics.RecordsUpdated.Add(ctx, 1)
	return true, nil
}

// UpdateEdge replaces the edge at eid with e, which must encode to the same length.
func (f *EdgeHeapfile) UpdateEdge(ctx context.Context, eid EID, e *Edge) (bool, error) {
	rec, err := e.Encode()
	if err != nil {
		return false, err
	}
	return f.UpdateRecord(ctx, eid, rec)
}

// DeleteEdge removes the edge at eid. A data page left empty is freed along
// with its entry, and a directory page left empty is unlinked and freed
// unless it is the first one.
func (f *EdgeHeapfile) DeleteEdge(ctx context.Context, eid EID) (found bool, err error) {
	ctx, end := f.begin(ctx, "delete")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return false, err
	}

	loc, err := f.locate(eid)
	if err != nil || loc == nil {
		return false, err
	}
	if err := loc.data.sp.DeleteRecord(eid.SlotNo); err != nil {
		return false, errors.Join(err, loc.release())
	}
	loc.entry.RecordCount--
	f.metrics.RecordsDeleted.Add(ctx, 1)

	if !loc.data.sp.IsEmpty() {
		loc.entry.FreeSpace = int32(loc.data.sp.AvailableSpace())
		if err := writeEntry(loc.dir.sp, loc.entrySlot, loc.entry); err != nil {
			loc.data.markDirty()
			return true, errors.Join(err, loc.release())
		}
		loc.data.markDirty()
		loc.dir.markDirty()
		return true, loc.release()
	}

	dir := loc.dir
	f.generation++
	if err := loc.data.releaseAndFree(); err != nil {
		return true, errors.Join(err, dir.release())
	}
	f.metrics.PagesFreed.Add(ctx, 1)
	f.logger.Debug("freed empty data page", zap.Stringer("page_id", eid.PageID))

	if err := dir.sp.DeleteRecord(loc.entrySlot); err != nil {
		return true, errors.Join(fmt.Errorf("removing entry for data page %d: %w", eid.PageID, err), dir.release())
	}
	dir.markDirty()

	if !dir.sp.IsEmpty() || dir.id == f.firstDirPageID {
		return true, dir.release()
	}
	return true, f.unlinkDirPage(ctx, dir)
}

// unlinkDirPage splices an empty, non-first directory page out of the chain
// and frees it. Neighbours are pinned one at a time after dir is released.
func (f *EdgeHeapfile) unlinkDirPage(ctx context.Context, dir *pinnedPage) error {
	id, prev, next := dir.id, dir.sp.Prev(), dir.sp.Next()
	f.generation++
	if err := dir.releaseClean(); err != nil {
		return err
	}

	prevPage, err := pinAs(f.bpm, prev, slottedpage.TypeDirectory)
	if err != nil {
		return fmt.Errorf("unlinking directory page %d: %w", id, err)
	}
	prevPage.sp.SetNext(next)
	prevPage.markDirty()
	if err := prevPage.release(); err != nil {
		return err
	}

	if next != pagemanager.InvalidPageID {
		nextPage, err := pinAs(f.bpm, next, slottedpage.TypeDirectory)
		if err != nil {
			return fmt.Errorf("unlinking directory page %d: %w", id, err)
		}
		nextPage.sp.SetPrev(prev)
		nextPage.markDirty()
		if err := nextPage.release(); err != nil {
			return err
		}
	}

	if err := f.bpm.FreePage(id); err != nil {
		return fmt.Errorf("freeing directory page %d: %w", id, err)
	}
	f.metrics.PagesFreed.Add(ctx, 1)
	f.metrics.DirPagesSpliced.Add(ctx, 1)
	f.logger.Debug("unlinked empty directory page",
		zap.Stringer("page_id", id), zap.Stringer("prev", prev), zap.Stringer("next", next))
	return nil
}

package edgeheap

import (
	"context"
	"errors"
	"fmt"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// EdgeCount sums the record counts of all directory entries.
func (f *EdgeHeapfile) EdgeCount(ctx context.Context) (n int, err error) {
	_, end := f.begin(ctx, "edge_count")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return 0, err
	}
	err = f.forEachEntry(func(info DataPageInfo) error {
		n += int(info.RecordCount)
		return nil
	})
	return n, err
}

// SourceCount is the number of distinct source nodes across live edges.
func (f *EdgeHeapfile) SourceCount(ctx context.Context) (int, error) {
	return distinctCount(ctx, f, "source_count", func(e *Edge) NodeID { return e.Source })
}

// DestinationCount is the number of distinct destination nodes across live edges.
func (f *EdgeHeapfile) DestinationCount(ctx context.Context) (int, error) {
	return distinctCount(ctx, f, "destination_count", func(e *Edge) NodeID { return e.Destination })
}

// LabelCount is the number of distinct labels across live edges.
func (f *EdgeHeapfile) LabelCount(ctx context.Context) (int, error) {
	return distinctCount(ctx, f, "label_count", func(e *Edge) string { return e.Label })
}

func distinctCount[K comparable](ctx context.Context, f *EdgeHeapfile, op string, key func(*Edge) K) (n int, err error) {
	_, end := f.begin(ctx, op)
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return 0, err
	}
	seen := make(map[K]struct{})
	err = f.forEachEdge(func(_ EID, e *Edge) error {
		seen[key(e)] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(seen), nil
}

// DeleteFile frees every data page and directory page of the file, the first
// directory page included, then drops the catalog entry. The file counts as
// deleted from the first step even if a later one fails.
func (f *EdgeHeapfile) DeleteFile(ctx context.Context) (err error) {
	ctx, end := f.begin(ctx, "delete_file")
	defer end(&err)
	if err := f.checkLive(); err != nil {
		return err
	}
	f.deleted = true

	freed := 0
	dirID := f.firstDirPageID
	for dirID != pagemanager.InvalidPageID {
		dir, err := pinAs(f.bpm, dirID, slottedpage.TypeDirectory)
		if err != nil {
			return err
		}
		var dataIDs []pagemanager.PageID
		for s, ok := dir.sp.FirstSlot(); ok; s, ok = dir.sp.NextSlot(s) {
			info, err := readEntry(dir.sp, s)
			if err != nil {
				return errors.Join(err, dir.release())
			}
			dataIDs = append(dataIDs, info.PageID)
		}
		next := dir.sp.Next()
		if err := dir.releaseClean(); err != nil {
			return err
		}

		for _, id := range dataIDs {
			if err := f.bpm.FreePage(id); err != nil {
				return fmt.Errorf("freeing data page %d: %w", id, err)
			}
		}
		if err := f.bpm.FreePage(dirID); err != nil {
			return fmt.Errorf("freeing directory page %d: %w", dirID, err)
		}
		freed += len(dataIDs) + 1
		dirID = next
	}
	f.metrics.PagesFreed.Add(ctx, int64(freed))

	if err := f.catalog.Unregister(f.name); err != nil {
		return fmt.Errorf("unregistering %q: %w", f.name, err)
	}
	f.logger.Info("deleted edge heap file", zap.Int("pages_freed", freed))
	return nil
}

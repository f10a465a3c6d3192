package edgeheap

import (
	"errors"
	"fmt"

	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

// pinnedPage owns one pin on a buffer pool frame. release hands the pin back
// exactly once, dirty iff markDirty was called.
type pinnedPage struct {
	bpm      BufferPool
	id       pagemanager.PageID
	sp       *slottedpage.SlottedPage
	dirty    bool
	released bool
}

func (p *pinnedPage) markDirty() { p.dirty = true }

func (p *pinnedPage) release() error {
	if p == nil || p.released {
		return nil
	}
	p.released = true
	if err := p.bpm.UnpinPage(p.id, p.dirty); err != nil {
		return fmt.Errorf("unpinning page %d: %w", p.id, err)
	}
	return nil
}

// releaseClean unpins without writing back changes, for pages about to be freed.
func (p *pinnedPage) releaseClean() error {
	if p == nil {
		return nil
	}
	p.dirty = false
	return p.release()
}

// releaseAndFree unpins the page clean and returns it to the pool.
func (p *pinnedPage) releaseAndFree() error {
	if err := p.releaseClean(); err != nil {
		return err
	}
	if err := p.bpm.FreePage(p.id); err != nil {
		return fmt.Errorf("freeing page %d: %w", p.id, err)
	}
	return nil
}

// pinAs pins id and checks it is a slotted page of the expected type.
func pinAs(bpm BufferPool, id pagemanager.PageID, want slottedpage.PageType) (*pinnedPage, error) {
	page, err := bpm.FetchPage(id)
	if err != nil {
		return nil, fmt.Errorf("pinning %s page %d: %w", want, id, err)
	}
	p := &pinnedPage{bpm: bpm, id: id}
	sp, err := slottedpage.Wrap(page.GetData())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %s page %d: %w", ErrCorruptEntry, want, id, err), p.release())
	}
	if sp.Type() != want || sp.PageID() != id {
		return nil, errors.Join(
			fmt.Errorf("%w: page %d is formatted as %s page %d, want %s", ErrCorruptEntry, id, sp.Type(), sp.PageID(), want),
			p.release())
	}
	p.sp = sp
	return p, nil
}

// formatNew allocates a page and formats it. The page comes back pinned and dirty.
func formatNew(bpm BufferPool, pageType slottedpage.PageType) (*pinnedPage, error) {
	page, id, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("%w: new %s page: %w", ErrAllocationFailed, pageType, err)
	}
	p := &pinnedPage{bpm: bpm, id: id}
	sp, err := slottedpage.Init(page.GetData(), id, pageType)
	if err != nil {
		return nil, errors.Join(err, p.releaseAndFree())
	}
	p.sp = sp
	p.markDirty()
	return p, nil
}

package vmm

import (
	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
)

var (
	// The following functions are used by tests to mock calls to the
	// frame allocator.
	allocFrameFn = mm.AllocFrame
	freeFrameFn  = mm.FreeFrame
)

// PageTable is a two-level address translation tree: a page directory whose
// present entries point to second-level tables whose present entries point
// to 4 KiB frames. Directory and tables each occupy one physical frame.
type PageTable struct {
	dirFrame mm.Frame
}

// Create allocates an empty page table.
func Create() (*PageTable, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	frame, err := allocFrameEvicting(true)
	if err != nil {
		return nil, err
	}

	return &PageTable{dirFrame: frame}, nil
}

// DirectoryFrame returns the physical frame that holds the page directory.
func (pt *PageTable) DirectoryFrame() mm.Frame {
	return pt.dirFrame
}

// Init identity-maps physical memory below the installed memory limit and the
// video frame buffer as kernel read-write pages so that kernel code and data
// stay addressable once pt is loaded.
func (pt *PageTable) Init() *kernel.Error {
	limit := layout.installedMemory
	if limit == 0 {
		limit = mm.PhysicalMemorySize()
	}

	for addr := uintptr(0); addr < mm.PageAlign(limit); addr += mm.PageSize {
		if err := pt.Map(addr, addr, FlagKernel|FlagReadWrite); err != nil {
			kfmt.Errorf("vmm", "failed to identity-map 0x%x: %s", addr, err.Message)
			return err
		}
	}

	videoStart := layout.videoBase &^ (mm.PageSize - 1)
	videoEnd := mm.PageAlign(layout.videoBase + layout.videoSize)
	for addr := videoStart; layout.videoSize != 0 && addr < videoEnd; addr += mm.PageSize {
		if err := pt.Map(addr, addr, FlagKernel|FlagReadWrite); err != nil {
			kfmt.Errorf("vmm", "failed to map video buffer at 0x%x: %s", addr, err.Message)
			return err
		}
	}

	return nil
}

// indices returns the directory and table indices for vaddr.
func indices(vaddr uintptr) (dirIndex, tableIndex uintptr) {
	return vaddr >> dirShift, (vaddr >> tableShift) & indexMask
}

// directory returns the page directory of pt.
func (pt *PageTable) directory() *table {
	if pt == nil || !pt.dirFrame.Valid() {
		return nil
	}
	return tableAt(pt.dirFrame)
}

// leaf returns a pointer to the second-level entry for vaddr or nil if the
// directory entry covering vaddr is not present.
func (pt *PageTable) leaf(vaddr uintptr) *pageTableEntry {
	if uint64(vaddr) >= maxVirtAddr {
		return nil
	}

	dir := pt.directory()
	if dir == nil {
		return nil
	}

	dirIndex, tableIndex := indices(vaddr)
	if !dir[dirIndex].HasFlags(ptePresent) {
		return nil
	}

	tbl := tableAt(dir[dirIndex].Frame())
	if tbl == nil {
		return nil
	}
	return &tbl[tableIndex]
}

// presentLeaf returns the leaf entry for vaddr if it is present.
func (pt *PageTable) presentLeaf(vaddr uintptr) *pageTableEntry {
	pte := pt.leaf(vaddr)
	if pte == nil || !pte.HasFlags(ptePresent) {
		return nil
	}
	return pte
}

// Map establishes a mapping between the page containing vaddr and the frame
// containing paddr, creating the second-level table if needed. If flags
// contains FlagAlloc, paddr is ignored and a new frame is obtained from the
// frame allocator; only when the allocator is out of memory is a page
// reclaimed through the clock evictor. Replacing an allocator-owned mapping
// releases the old frame.
//
// Replacing a present kernel-only mapping with a user accessible one
// requires FlagPrivileged; otherwise ErrPrivilegeViolation is returned.
func (pt *PageTable) Map(vaddr, paddr uintptr, flags MapFlag) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	dir := pt.directory()
	if dir == nil {
		return errInvalidTable
	}
	if uint64(vaddr) >= maxVirtAddr {
		return mm.ErrInvalidAddress
	}

	user := flags&FlagKernel == 0
	if pte := pt.presentLeaf(vaddr); pte != nil && user && !pte.HasFlags(pteUser) && flags&FlagPrivileged == 0 {
		kfmt.Warnf("vmm", "refusing to remap kernel page 0x%x as user accessible", vaddr&^(mm.PageSize-1))
		return ErrPrivilegeViolation
	}

	var (
		dirIndex, tableIndex = indices(vaddr)
		dirEntry             = &dir[dirIndex]
		createdTable         bool
	)

	if !dirEntry.HasFlags(ptePresent) {
		tableFrame, err := allocFrameEvicting(true)
		if err != nil {
			return err
		}

		*dirEntry = 0
		dirEntry.SetFrame(tableFrame)
		dirEntry.SetFlags(ptePresent | pteRW)
		createdTable = true
	}
	if user {
		dirEntry.SetFlags(pteUser)
	}

	frame := mm.FrameFromAddress(paddr)
	if flags&FlagAlloc != 0 {
		var err *kernel.Error
		if frame, err = allocFrameEvicting(flags&FlagClear != 0); err != nil {
			if createdTable {
				_ = freeFrameFn(dirEntry.Frame())
				*dirEntry = 0
			}
			return err
		}
	}

	// Eviction may have modified the table; look the entry up again.
	pte := &tableAt(dirEntry.Frame())[tableIndex]
	if pte.HasFlags(ptePresent|pteAllocated) && pte.Frame() != frame {
		_ = freeFrameFn(pte.Frame())
	}

	*pte = makeEntry(frame, flags)
	pt.flushEntry(vaddr)

	page := mm.PageFromAddress(vaddr)
	if user && flags&FlagAlloc != 0 {
		evictor.track(pt, page)
	} else {
		evictor.untrack(pt, page)
	}

	return nil
}

// GetMap returns the physical address and the stored flags (FlagKernel,
// FlagReadWrite, FlagAlloc, FlagNoCache and FlagWriteThrough) of the page
// containing vaddr. It returns ErrNotPresent if either the directory or the
// table entry is absent.
func (pt *PageTable) GetMap(vaddr uintptr) (uintptr, MapFlag, *kernel.Error) {
	pte := pt.presentLeaf(vaddr)
	if pte == nil {
		return 0, 0, ErrNotPresent
	}

	return pte.Frame().Address(), pte.mapFlags(), nil
}

// Unmap clears the present bit of the page containing vaddr. The backing
// frame is not released; see Free.
func (pt *PageTable) Unmap(vaddr uintptr) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	pte := pt.presentLeaf(vaddr)
	if pte == nil {
		return ErrNotPresent
	}

	pte.ClearFlags(ptePresent)
	pt.flushEntry(vaddr)
	evictor.untrack(pt, mm.PageFromAddress(vaddr))
	return nil
}

// pageRange returns the first page and the number of pages covered by a
// request of length bytes starting at vaddr.
func pageRange(vaddr, length uintptr) (uintptr, uintptr) {
	return vaddr &^ (mm.PageSize - 1), mm.PageAlign(length) >> mm.PageShift
}

// Alloc maps a fresh allocator-owned frame at every page of the range
// [vaddr, vaddr+length) that is not already mapped. The length is rounded up
// to whole pages.
func (pt *PageTable) Alloc(vaddr, length uintptr, flags MapFlag) *kernel.Error {
	addr, pageCount := pageRange(vaddr, length)
	for ; pageCount > 0; pageCount, addr = pageCount-1, addr+mm.PageSize {
		if _, _, err := pt.GetMap(addr); err == nil {
			continue
		}

		if err := pt.Map(addr, 0, flags|FlagAlloc); err != nil {
			return err
		}
	}

	return nil
}

// Free unmaps every mapped page of the range [vaddr, vaddr+length) and
// returns allocator-owned frames to the frame allocator.
func (pt *PageTable) Free(vaddr, length uintptr) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	addr, pageCount := pageRange(vaddr, length)
	for ; pageCount > 0; pageCount, addr = pageCount-1, addr+mm.PageSize {
		paddr, flags, err := pt.GetMap(addr)
		if err != nil {
			continue
		}

		if err = pt.Unmap(addr); err != nil {
			return err
		}

		if flags&FlagAlloc != 0 {
			if err = freeFrameFn(mm.FrameFromAddress(paddr)); err != nil {
				return err
			}
		}
	}

	return nil
}

// Delete releases every allocator-owned frame mapped by pt, every
// second-level table and finally the directory itself. The active page table
// cannot be deleted.
func (pt *PageTable) Delete() *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	dir := pt.directory()
	if dir == nil {
		return errInvalidTable
	}
	if pt.isActive() {
		return ErrDeleteActive
	}

	evictor.untrackTable(pt)

	for dirIndex := range dir {
		if !dir[dirIndex].HasFlags(ptePresent) {
			continue
		}

		tbl := tableAt(dir[dirIndex].Frame())
		for tableIndex := range tbl {
			if tbl[tableIndex].HasFlags(ptePresent | pteAllocated) {
				_ = freeFrameFn(tbl[tableIndex].Frame())
			}
		}

		_ = freeFrameFn(dir[dirIndex].Frame())
	}

	_ = freeFrameFn(pt.dirFrame)
	pt.dirFrame = mm.InvalidFrame
	return nil
}

// Duplicate returns a deep copy of pt. Allocator-owned pages are copied into
// fresh frames while all other pages (e.g. identity-mapped kernel and video
// memory) are aliased. If an allocation fails, everything built so far is
// released and the source table is left untouched.
func (pt *PageTable) Duplicate() (*PageTable, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	srcDir := pt.directory()
	if srcDir == nil {
		return nil, errInvalidTable
	}

	dirFrame, err := allocFrameFn(true)
	if err != nil {
		return nil, err
	}
	clone := &PageTable{dirFrame: dirFrame}
	cloneDir := clone.directory()

	for dirIndex := range srcDir {
		if !srcDir[dirIndex].HasFlags(ptePresent) {
			continue
		}

		tableFrame, err := allocFrameFn(true)
		if err != nil {
			clone.abortDuplicate()
			return nil, err
		}

		cloneDir[dirIndex] = srcDir[dirIndex]
		cloneDir[dirIndex].SetFrame(tableFrame)

		srcTable, cloneTable := tableAt(srcDir[dirIndex].Frame()), tableAt(tableFrame)
		for tableIndex, pte := range srcTable {
			if !pte.HasFlags(ptePresent) {
				continue
			}

			if !pte.HasFlags(pteAllocated) {
				cloneTable[tableIndex] = pte
				continue
			}

			frame, err := allocFrameFn(false)
			if err != nil {
				clone.abortDuplicate()
				return nil, err
			}
			kernel.Memcopy(mm.FrameBytes(pte.Frame()), mm.FrameBytes(frame))

			cloneTable[tableIndex] = pte
			cloneTable[tableIndex].SetFrame(frame)

			if pte.HasFlags(pteUser) {
				evictor.track(clone, mm.Page(uintptr(dirIndex)<<(dirShift-tableShift)|uintptr(tableIndex)))
			}
		}
	}

	return clone, nil
}

func (pt *PageTable) abortDuplicate() {
	kfmt.Warnf("vmm", "page table duplication failed; releasing partial copy")
	_ = pt.Delete()
}

// allocFrameEvicting obtains a frame from the frame allocator. If the
// allocator is out of memory, pages are reclaimed through the clock evictor
// until the allocation succeeds or no eviction candidates remain.
func allocFrameEvicting(zero bool) (mm.Frame, *kernel.Error) {
	for {
		frame, err := allocFrameFn(zero)
		if err != mm.ErrOutOfMemory {
			return frame, err
		}

		if !evictor.evictOne() {
			return mm.InvalidFrame, err
		}
	}
}

package vmm

import (
	"unsafe"

	"tinykern/kernel/mm"
)

// pageTableEntry describes a page directory or page table entry.
type pageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags pteFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags pteFlag) {
	*pte = (pageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags pteFlag) {
	*pte = (pageTableEntry)(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame(uintptr(uint32(pte)&ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uint32(*pte) &^ ptePhysPageMask) | uint32(frame.Address()))
}

// table is the in-memory layout of a page directory or page table.
type table [entriesPerTable]pageTableEntry

// tableAt overlays a table on top of the contents of frame. It returns nil if
// the frame is not backed by physical memory.
func tableAt(frame mm.Frame) *table {
	b := mm.FrameBytes(frame)
	if b == nil {
		return nil
	}
	return (*table)(unsafe.Pointer(&b[0]))
}

// makeEntry builds a leaf entry for frame according to the supplied map flags.
func makeEntry(frame mm.Frame, flags MapFlag) pageTableEntry {
	var pte pageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(ptePresent)

	if flags&FlagReadWrite != 0 {
		pte.SetFlags(pteRW)
	}
	if flags&FlagKernel != 0 {
		pte.SetFlags(pteGlobal)
	} else {
		pte.SetFlags(pteUser)
	}
	if flags&FlagWriteThrough != 0 {
		pte.SetFlags(pteWriteThrough)
	}
	if flags&FlagNoCache != 0 {
		pte.SetFlags(pteNoCache)
	}
	if flags&FlagAlloc != 0 {
		pte.SetFlags(pteAllocated)
	}

	return pte
}

// mapFlags converts the bits of a leaf entry back to map flags.
func (pte pageTableEntry) mapFlags() MapFlag {
	var flags MapFlag
	if !pte.HasFlags(pteUser) {
		flags |= FlagKernel
	}
	if pte.HasFlags(pteRW) {
		flags |= FlagReadWrite
	}
	if pte.HasFlags(pteAllocated) {
		flags |= FlagAlloc
	}
	if pte.HasFlags(pteNoCache) {
		flags |= FlagNoCache
	}
	if pte.HasFlags(pteWriteThrough) {
		flags |= FlagWriteThrough
	}
	return flags
}

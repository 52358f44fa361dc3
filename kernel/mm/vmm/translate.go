package vmm

import (
	"tinykern/kernel"
	"tinykern/kernel/mm"
)

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}

// Translate returns the physical address that corresponds to vaddr in pt or
// ErrNotPresent if vaddr is not mapped. Like a hardware walk, a successful
// translation sets the accessed bit of the entry.
func (pt *PageTable) Translate(vaddr uintptr) (uintptr, *kernel.Error) {
	pte := pt.presentLeaf(vaddr)
	if pte == nil {
		return 0, ErrNotPresent
	}

	pte.SetFlags(pteAccessed)
	return pte.Frame().Address() + PageOffset(vaddr), nil
}

// CopyToUser copies src into the address space of pt starting at vaddr. The
// copy stops at the first unmapped page, in which case ErrNotPresent is
// returned together with the number of bytes copied so far.
func (pt *PageTable) CopyToUser(vaddr uintptr, src []byte) (int, *kernel.Error) {
	return pt.copyPages(vaddr, src, true)
}

// CopyFromUser copies bytes from the address space of pt starting at vaddr
// into dst. It behaves like CopyToUser when it reaches an unmapped page.
func (pt *PageTable) CopyFromUser(dst []byte, vaddr uintptr) (int, *kernel.Error) {
	return pt.copyPages(vaddr, dst, false)
}

func (pt *PageTable) copyPages(vaddr uintptr, buf []byte, toUser bool) (int, *kernel.Error) {
	var copied int
	for copied < len(buf) {
		curAddr := vaddr + uintptr(copied)
		pte := pt.presentLeaf(curAddr)
		if pte == nil {
			return copied, ErrNotPresent
		}

		frameBytes := mm.FrameBytes(pte.Frame())
		if frameBytes == nil {
			return copied, mm.ErrInvalidAddress
		}

		pte.SetFlags(pteAccessed)
		chunk := frameBytes[PageOffset(curAddr):]
		if toUser {
			pte.SetFlags(pteDirty)
			copied += kernel.Memcopy(buf[copied:], chunk)
		} else {
			copied += kernel.Memcopy(chunk, buf[copied:])
		}
	}

	return copied, nil
}

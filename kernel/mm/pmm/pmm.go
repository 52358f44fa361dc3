// Package pmm implements the physical frame allocator.
package pmm

import (
	"tinykern/kernel"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
)

var (
	// bitmapAllocator is the allocator used by the kernel for all frame
	// reservations.
	bitmapAllocator BitmapAllocator
)

// Init sets up the physical memory allocation sub-system for totalMemory
// bytes of installed RAM and registers it with the mm package. Failing to
// reserve space for the allocator's own bookkeeping halts the kernel.
func Init(totalMemory uintptr) *kernel.Error {
	if err := bitmapAllocator.init(totalMemory); err != nil {
		panicFn(err)
		return err
	}

	mm.SetFrameAllocator(AllocFrame, FreeFrame)

	free, total := bitmapAllocator.Stats()
	kfmt.Infof("pmm", "%d KB tracked, %d frames total, %d free", (uintptr(total)<<mm.PageShift)/mm.Kb, total, free)
	return nil
}

// AllocFrame reserves a physical frame using the bitmap allocator.
func AllocFrame(zero bool) (mm.Frame, *kernel.Error) {
	return bitmapAllocator.AllocFrame(zero)
}

// FreeFrame releases a physical frame back to the bitmap allocator.
func FreeFrame(frame mm.Frame) *kernel.Error {
	return bitmapAllocator.FreeFrame(frame)
}

// Alloc reserves a frame and returns its physical address.
func Alloc(zero bool) (uintptr, *kernel.Error) {
	frame, err := bitmapAllocator.AllocFrame(zero)
	if err != nil {
		return 0, err
	}
	return frame.Address(), nil
}

// Free releases the frame at physAddr. The address must be frame-aligned.
func Free(physAddr uintptr) *kernel.Error {
	if !mm.PageAligned(physAddr) {
		return mm.ErrInvalidAddress
	}
	return bitmapAllocator.FreeFrame(mm.FrameFromAddress(physAddr))
}

// Stats returns the number of free frames and the total number of frames
// managed by the allocator.
func Stats() (free, total uint32) {
	return bitmapAllocator.Stats()
}

package pmm

import (
	"math/bits"
	"unsafe"

	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
)

var (
	errBitmapSelfAlloc = &kernel.Error{Module: "pmm", Message: "unable to reserve frames for the allocator bitmap"}

	// The following functions are used by tests to mock calls to other
	// packages.
	panicFn = kfmt.Panic
)

// BitmapAllocator implements a physical frame allocator that tracks the
// frames above mm.ReservedBoundary using a bitmap where a set bit means that
// the frame is free. Bits are stored MSB-first within each 64-bit word so the
// first free frame of a word is found with a single leading-zero count.
//
// The bitmap itself lives in physical memory at mm.ReservedBoundary; the
// frames it occupies are reserved when the allocator is initialized.
type BitmapAllocator struct {
	// startFrame is the frame number for the first tracked frame. Each
	// bitmap entry i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// totalPages tracks the number of frames covered by the bitmap.
	totalPages uint32

	// freeCount tracks the number of free frames.
	freeCount uint32

	// reservedPages is the number of frames at the start of the pool that
	// hold the bitmap. Tracked frame 0 is always among them, which keeps
	// it permanently allocated.
	reservedPages uint32

	freeBitmap []uint64
}

// init sets up the bitmap for totalMemory bytes of installed RAM and reserves
// the frames it occupies.
func (alloc *BitmapAllocator) init(totalMemory uintptr) *kernel.Error {
	if ramSize := mm.PhysicalMemorySize(); totalMemory > ramSize {
		totalMemory = ramSize
	}

	*alloc = BitmapAllocator{startFrame: mm.FrameFromAddress(mm.ReservedBoundary)}
	if totalMemory <= mm.ReservedBoundary {
		return errBitmapSelfAlloc
	}

	alloc.totalPages = uint32((totalMemory - mm.ReservedBoundary) >> mm.PageShift)
	words := (uintptr(alloc.totalPages) + 63) >> 6
	bitmapBytes := words << 3
	requiredPages := uint32(mm.PageAlign(bitmapBytes) >> mm.PageShift)

	storage := mm.PhysBytes(mm.ReservedBoundary, bitmapBytes)
	if storage == nil || requiredPages >= alloc.totalPages {
		*alloc = BitmapAllocator{}
		return errBitmapSelfAlloc
	}
	alloc.freeBitmap = unsafe.Slice((*uint64)(unsafe.Pointer(&storage[0])), words)

	// Flag every tracked frame as free; bits past totalPages stay clear
	// so the scan never returns them.
	for index := range alloc.freeBitmap {
		alloc.freeBitmap[index] = 0
	}
	for frameIndex := uint32(0); frameIndex < alloc.totalPages; frameIndex++ {
		alloc.markFrame(frameIndex, markFree)
	}
	alloc.freeCount = alloc.totalPages

	// Bootstrap: the bitmap occupies the first tracked frames.
	for i := uint32(0); i < requiredPages; i++ {
		frame, err := alloc.allocFrame(false)
		if err != nil || frame != alloc.startFrame+mm.Frame(i) {
			*alloc = BitmapAllocator{}
			return errBitmapSelfAlloc
		}
	}
	alloc.reservedPages = requiredPages

	return nil
}

type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

// markFrame updates the bitmap entry for the frame with the given index.
func (alloc *BitmapAllocator) markFrame(frameIndex uint32, flag markAs) {
	if frameIndex >= alloc.totalPages {
		return
	}

	block := frameIndex >> 6
	bitMask := uint64(1 << (63 - (frameIndex & 63)))

	switch flag {
	case markFree:
		alloc.freeBitmap[block] |= bitMask
	case markReserved:
		alloc.freeBitmap[block] &^= bitMask
	}
}

// isFree returns true if the frame with the given index is flagged as free.
func (alloc *BitmapAllocator) isFree(frameIndex uint32) bool {
	return alloc.freeBitmap[frameIndex>>6]&(1<<(63-(frameIndex&63))) != 0
}

// AllocFrame reserves the first free frame. If zero is true the frame
// contents are cleared before it is returned.
func (alloc *BitmapAllocator) AllocFrame(zero bool) (mm.Frame, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	return alloc.allocFrame(zero)
}

func (alloc *BitmapAllocator) allocFrame(zero bool) (mm.Frame, *kernel.Error) {
	if alloc.freeCount == 0 {
		return mm.InvalidFrame, mm.ErrOutOfMemory
	}

	for blockIndex, block := range alloc.freeBitmap {
		if block == 0 {
			continue
		}

		frameIndex := uint32(blockIndex<<6 + bits.LeadingZeros64(block))

		// The bit is cleared before the frame is touched so the frame
		// cannot be handed out twice.
		alloc.markFrame(frameIndex, markReserved)
		alloc.freeCount--

		frame := alloc.startFrame + mm.Frame(frameIndex)
		if zero {
			kernel.Memset(mm.FrameBytes(frame), 0)
		}
		return frame, nil
	}

	return mm.InvalidFrame, mm.ErrOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame. Frames that
// are not tracked by the allocator or that hold the bitmap itself are
// rejected with mm.ErrInvalidAddress. Releasing a free frame is reported as
// mm.ErrDoubleFree and leaves the allocator state untouched.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	if !frame.Valid() || frame < alloc.startFrame+mm.Frame(alloc.reservedPages) || frame >= alloc.startFrame+mm.Frame(alloc.totalPages) {
		return mm.ErrInvalidAddress
	}

	frameIndex := uint32(frame - alloc.startFrame)
	if alloc.isFree(frameIndex) {
		kfmt.Warnf("pmm", "double free of frame 0x%x", frame.Address())
		return mm.ErrDoubleFree
	}

	alloc.markFrame(frameIndex, markFree)
	alloc.freeCount++
	return nil
}

// Stats returns the number of free frames and the number of tracked frames.
func (alloc *BitmapAllocator) Stats() (free, total uint32) {
	return alloc.freeCount, alloc.totalPages
}

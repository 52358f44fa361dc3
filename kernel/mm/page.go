// Package mm defines the physical and virtual memory primitives shared by the
// frame allocator and the page table manager.
package mm

import (
	"tinykern/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is the frame returned alongside an allocation error.
const InvalidFrame = Frame(^uintptr(0))

// Valid reports whether f refers to a real frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte in f.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the frame containing physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address of the first byte in p.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the page containing virtAddr. Unaligned addresses
// round down.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// FrameAllocatorFn hands out a free physical frame, cleared when zero is set.
type FrameAllocatorFn func(zero bool) (Frame, *kernel.Error)

// FrameFreeFn releases a frame obtained from a FrameAllocatorFn.
type FrameFreeFn func(Frame) *kernel.Error

// Installed by SetFrameAllocator.
var (
	frameAllocator FrameAllocatorFn
	frameFree      FrameFreeFn
)

// SetFrameAllocator installs the frame source used by the page table code and
// the process manager. Passing nil functions detaches it.
func SetFrameAllocator(allocFn FrameAllocatorFn, freeFn FrameFreeFn) {
	frameAllocator = allocFn
	frameFree = freeFn
}

// AllocFrame obtains a frame from the installed allocator. Without one every
// request fails with ErrOutOfMemory.
func AllocFrame(zero bool) (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, ErrOutOfMemory
	}
	return frameAllocator(zero)
}

// FreeFrame gives f back to the installed allocator.
func FreeFrame(f Frame) *kernel.Error {
	if frameFree == nil {
		return ErrInvalidAddress
	}
	return frameFree(f)
}

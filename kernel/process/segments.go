package process

import (
	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/mm"
	"tinykern/kernel/mm/vmm"
)

// segmentFlags are the map flags of data and stack pages.
const segmentFlags = vmm.FlagReadWrite | vmm.FlagClear

// stackBase returns the lowest address of a stack segment of the given size.
func stackBase(size uintptr) uintptr {
	return uintptr(userStackTop - uint64(size))
}

// DataSizeSet resizes the data segment of p, which grows up from
// UserEntryPoint, to size bytes rounded up to whole pages. Growing the
// segment maps fresh zeroed pages; shrinking it releases the pages past the
// new end. A failed resize leaves the segment unchanged.
func DataSizeSet(p *PCB, size uintptr) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	size = mm.PageAlign(size)
	if uint64(UserEntryPoint)+uint64(size) > uint64(stackBase(p.StackSize)) {
		return ErrSegmentRange
	}

	switch {
	case size > p.DataSize:
		start, length := UserEntryPoint+p.DataSize, size-p.DataSize
		if err := p.PageTable.Alloc(start, length, segmentFlags); err != nil {
			_ = p.PageTable.Free(start, length)
			return err
		}
	case size < p.DataSize:
		if err := p.PageTable.Free(UserEntryPoint+size, p.DataSize-size); err != nil {
			return err
		}
	}

	p.DataSize = size
	refreshIfActive(p)
	return nil
}

// StackSizeSet resizes the stack segment of p, which grows down from the top
// of the address space, to size bytes rounded up to whole pages. It behaves
// like DataSizeSet otherwise.
func StackSizeSet(p *PCB, size uintptr) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	size = mm.PageAlign(size)
	if uint64(size) > userStackTop-uint64(UserEntryPoint) || stackBase(size) < UserEntryPoint+p.DataSize {
		return ErrSegmentRange
	}

	switch {
	case size > p.StackSize:
		start, length := stackBase(size), size-p.StackSize
		if err := p.PageTable.Alloc(start, length, segmentFlags); err != nil {
			_ = p.PageTable.Free(start, length)
			return err
		}
	case size < p.StackSize:
		if err := p.PageTable.Free(stackBase(p.StackSize), p.StackSize-size); err != nil {
			return err
		}
	}

	p.StackSize = size
	refreshIfActive(p)
	return nil
}

// StackReset resizes the stack segment of p to size bytes and clears its
// contents.
func StackReset(p *PCB, size uintptr) *kernel.Error {
	if err := StackSizeSet(p, size); err != nil {
		return err
	}

	_, err := p.PageTable.CopyToUser(stackBase(p.StackSize), make([]byte, p.StackSize))
	return err
}

func refreshIfActive(p *PCB) {
	if vmm.Active() == p.PageTable {
		vmm.Refresh()
	}
}

// Inherit sets up the kernel object table of child from the parent: slot i
// of the child receives a new reference to the parent object at fds[i], or
// is left empty when fds[i] is negative or names an empty parent slot. The
// child becomes a child of parent.
func Inherit(parent, child *PCB, fds []int) {
	for i := 0; i < len(fds) && i < MaxObjects; i++ {
		if child.Objects[i] != nil {
			child.Objects[i].Close()
			child.Objects[i] = nil
		}

		if fd := fds[i]; fd >= 0 && fd < MaxObjects && parent.Objects[fd] != nil {
			child.Objects[i] = parent.Objects[fd].Copy()
		}
	}

	child.PPID = parent.PID
}

// InheritAll gives child a reference to every kernel object of parent, in
// the same slots.
func InheritAll(parent, child *PCB) {
	fds := make([]int, MaxObjects)
	for i, obj := range parent.Objects {
		fds[i] = -1
		if obj != nil {
			fds[i] = i
		}
	}

	Inherit(parent, child, fds)
}

// AvailableFD returns the lowest empty kernel object slot of p or -1 if the
// table is full.
func AvailableFD(p *PCB) int {
	for fd, obj := range p.Objects {
		if obj == nil {
			return fd
		}
	}
	return -1
}

// ObjectMax returns the highest used kernel object slot of p or -1 if the
// table is empty.
func ObjectMax(p *PCB) int {
	for fd := MaxObjects - 1; fd >= 0; fd-- {
		if p.Objects[fd] != nil {
			return fd
		}
	}
	return -1
}

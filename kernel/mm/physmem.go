package mm

var physMem []byte

// SetPhysicalMemory installs ram as the machine's physical memory. Physical
// address 0 corresponds to ram[0].
func SetPhysicalMemory(ram []byte) {
	physMem = ram
}

// PhysicalMemorySize returns the size of installed physical memory in bytes.
func PhysicalMemorySize() uintptr {
	return uintptr(len(physMem))
}

// PhysBytes returns a slice of physical memory covering [addr, addr+size). It
// returns nil if any part of the range is not backed by RAM.
func PhysBytes(addr, size uintptr) []byte {
	if size == 0 || addr >= uintptr(len(physMem)) || size > uintptr(len(physMem))-addr {
		return nil
	}
	return physMem[addr : addr+size : addr+size]
}

// FrameBytes returns the contents of frame f, or nil if f is not backed by
// RAM.
func FrameBytes(f Frame) []byte {
	if !f.Valid() {
		return nil
	}
	return PhysBytes(f.Address(), PageSize)
}

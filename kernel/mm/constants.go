package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// ReservedBoundary is the end of the low memory region that holds the
	// BIOS data, the boot loader and the kernel image. Frames below it are
	// never handed out by the frame allocator.
	ReservedBoundary = uintptr(0x100000)
)

// Memory size helpers.
const (
	Kb = uintptr(1 << 10)
	Mb = uintptr(1 << 20)
)

// PageAlign rounds size up to the next multiple of PageSize.
func PageAlign(size uintptr) uintptr {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// PageAligned returns true if addr is a multiple of PageSize.
func PageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

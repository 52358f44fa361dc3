package vmm

const (
	// entriesPerTable is the number of entries in a page directory or in a
	// second-level page table. Each table occupies exactly one frame.
	entriesPerTable = 1024

	// dirShift and tableShift are the shifts that extract the directory
	// and table indices from a virtual address (10/10/12 split).
	dirShift   = 22
	tableShift = 12

	// indexMask extracts a 10-bit table index.
	indexMask = entriesPerTable - 1

	// ptePhysPageMask extracts the physical frame address stored in bits
	// 12-31 of a page table entry.
	ptePhysPageMask = uint32(0xfffff000)

	// maxVirtAddr is the size of the 32-bit virtual address space.
	maxVirtAddr = uint64(1) << 32
)

// pteFlag describes a bit of a page directory or page table entry.
type pteFlag uint32

const (
	// ptePresent is set when the page is available in memory.
	ptePresent pteFlag = 1 << iota

	// pteRW is set if the page can be written to.
	pteRW

	// pteUser is set if user-mode code can access this page. If not set
	// only kernel code can access this page.
	pteUser

	// pteWriteThrough implies write-through caching when set and
	// write-back caching if cleared.
	pteWriteThrough

	// pteNoCache prevents this page from being cached if set.
	pteNoCache

	// pteAccessed is set by the MMU when this page is accessed.
	pteAccessed

	// pteDirty is set by the MMU when this page is modified.
	pteDirty

	// ptePageSize selects 4 MiB pages; it is never set by this package.
	ptePageSize

	// pteGlobal prevents the TLB from flushing the cached translation when
	// CR3 is reloaded.
	pteGlobal

	// pteAllocated is the first "avail" bit. It flags a frame that was
	// obtained from the frame allocator and must be returned to it when
	// the page is freed or the table is deleted.
	pteAllocated
)

// MapFlag controls how Map installs a mapping.
type MapFlag uint32

const (
	// FlagKernel restricts the page to kernel code. Pages are user
	// accessible by default.
	FlagKernel MapFlag = 1 << iota

	// FlagAlloc requests a fresh allocator-owned frame instead of the
	// supplied physical address.
	FlagAlloc

	// FlagReadWrite makes the page writable.
	FlagReadWrite

	// FlagClear zero-fills frames obtained via FlagAlloc.
	FlagClear

	// FlagPrivileged allows replacing a kernel-only mapping with a user
	// accessible one.
	FlagPrivileged

	// FlagNoCache disables caching for the page.
	FlagNoCache

	// FlagWriteThrough enables write-through caching for the page.
	FlagWriteThrough
)

// storedFlags is the subset of map flags that is recorded in the page table
// entry and reported back by GetMap.
const storedFlags = FlagKernel | FlagAlloc | FlagReadWrite | FlagNoCache | FlagWriteThrough

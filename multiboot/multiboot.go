// Package multiboot parses the multiboot2 information block that the boot
// loader passes to the kernel. The kernel core reads its configuration from
// it: the physical memory layout, the video frame buffer and the kernel
// command line.
package multiboot

import (
	"strings"
	"unsafe"
)

var (
	infoData  uintptr
	cmdLineKV map[string]string
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
)

// tagHeader precedes each tag. The size includes the header but not the
// padding that aligns the following tag to 8 bytes.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// mmapHeader precedes the entries of a memory map tag.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// FramebufferType is the video mode the boot loader left the display in.
type FramebufferType uint8

// Supported video modes.
const (
	FramebufferTypeIndexed FramebufferType = iota // palette based
	FramebufferTypeRGB                            // direct color
	FramebufferTypeEGA                            // text mode
)

// FramebufferInfo describes the framebuffer set up by the boot loader.
// The kernel maps [PhysAddr, PhysAddr+Size()) into every address space.
type FramebufferInfo struct {
	PhysAddr uint64
	Pitch    uint32 // bytes per row
	Width    uint32
	Height   uint32
	Bpp      uint8
	Type     FramebufferType
}

// Size returns the number of bytes spanned by the framebuffer.
func (i *FramebufferInfo) Size() uint64 {
	return uint64(i.Pitch) * uint64(i.Height)
}

// MemoryEntryType classifies a region of the boot memory map. Only
// MemAvailable regions are handed to the frame allocator.
type MemoryEntryType uint32

const (
	MemAvailable MemoryEntryType = iota + 1
	MemReserved
	MemAcpiReclaimable
	MemNvs

	// First unassigned type; such regions are reported as MemReserved.
	memUnknown
)

// String returns a short label for t, used in the boot memory map log.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "acpi-reclaimable"
	case MemNvs:
		return "nvs"
	default:
		return "unknown"
	}
}

// MemoryMapEntry is a single region of the boot memory map.
type MemoryMapEntry struct {
	PhysAddress uint64
	Length      uint64
	Type        MemoryEntryType
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region
// reported by the boot loader. It returns false to stop the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr points the package at the information block found at ptr and
// drops any cached lookups. A zero ptr makes every lookup come back empty.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
	cmdLineKV = nil
}

// VisitMemRegions invokes visitor for each memory region in the memory map
// supplied by the boot loader. Regions of unknown type are reported as
// reserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size < uint32(unsafe.Sizeof(mmapHeader{})) {
		return
	}

	hdr := (*mmapHeader)(unsafe.Pointer(curPtr))
	if hdr.entrySize == 0 {
		return
	}

	endPtr := curPtr + uintptr(size)
	for curPtr += unsafe.Sizeof(mmapHeader{}); curPtr+unsafe.Sizeof(MemoryMapEntry{}) <= endPtr; curPtr += uintptr(hdr.entrySize) {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// InstalledMemory returns the end address of the highest available memory
// region or 0 if no memory map was supplied.
func InstalledMemory() uint64 {
	var end uint64
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		if entry.Type == MemAvailable && entry.PhysAddress+entry.Length > end {
			end = entry.PhysAddress + entry.Length
		}
		return true
	})
	return end
}

// GetFramebufferInfo returns information about the framebuffer initialized by
// the boot loader or nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	curPtr, size := findTagByType(tagFramebufferInfo)
	if size < uint32(unsafe.Sizeof(FramebufferInfo{})) {
		return nil
	}

	return (*FramebufferInfo)(unsafe.Pointer(curPtr))
}

// GetBootLoaderName returns the name of the boot loader or an empty string.
func GetBootLoaderName() string {
	return tagString(tagBootLoaderName)
}

// GetBootCmdLine returns the key-value pairs of the kernel command line.
// Flags without a value (e.g. "noapic") map to themselves.
func GetBootCmdLine() map[string]string {
	if cmdLineKV == nil {
		cmdLineKV = ParseCmdLine(tagString(tagBootCmdLine))
	}

	return cmdLineKV
}

// ParseCmdLine splits a command line into its key-value pairs.
func ParseCmdLine(cmdLine string) map[string]string {
	kv := make(map[string]string)
	for _, pair := range strings.Fields(cmdLine) {
		if key, value, found := strings.Cut(pair, "="); found {
			kv[key] = value
		} else {
			kv[pair] = pair
		}
	}

	return kv
}

// tagString returns the contents of a tag that holds a C-style NULL-terminated
// string.
func tagString(tagType tagType) string {
	curPtr, size := findTagByType(tagType)
	if size == 0 {
		return ""
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(curPtr)), size)
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// findTagByType returns the address and length of the payload of the first
// tag of type tagType, or (0, 0) if there is none. The walk never leaves the
// total size announced by the block header.
func findTagByType(tagType tagType) (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}

	hdrSize := uint32(unsafe.Sizeof(tagHeader{}))
	totalSize := *(*uint32)(unsafe.Pointer(infoData))
	endPtr := infoData + uintptr(totalSize)

	for curPtr := infoData + 8; curPtr+uintptr(hdrSize) <= endPtr; {
		hdr := (*tagHeader)(unsafe.Pointer(curPtr))
		if hdr.tagType == tagMbSectionEnd || hdr.size < hdrSize {
			break
		}

		if hdr.tagType == tagType {
			return curPtr + uintptr(hdrSize), hdr.size - hdrSize
		}

		// 8-byte tag alignment.
		curPtr += uintptr((hdr.size + 7) &^ 7)
	}

	return 0, 0
}

package vmm

import (
	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
)

var (
	// activePDTFn is used by tests to override calls to cpu.ActivePDT.
	activePDTFn = cpu.ActivePDT

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT.
	switchPDTFn = cpu.SwitchPDT

	// the following functions are mocked by tests.
	enablePagingFn  = cpu.EnablePaging
	pagingEnabledFn = cpu.PagingEnabled
	flushTLBFn      = cpu.FlushTLB
	flushTLBEntryFn = cpu.FlushTLBEntry

	activeTable *PageTable

	// layout describes the physical regions that Init identity-maps.
	layout struct {
		installedMemory uintptr
		videoBase       uintptr
		videoSize       uintptr
	}
)

// SetLayout records the installed memory size and the video frame buffer
// region that PageTable.Init identity-maps into every page table.
func SetLayout(installedMemory, videoBase, videoSize uintptr) {
	layout.installedMemory = installedMemory
	layout.videoBase = videoBase
	layout.videoSize = videoSize
}

// Reset forgets the active page table, the identity-mapping layout and every
// eviction candidate. It is used when the kernel core is booted again on
// fresh physical memory.
func Reset() {
	activeTable = nil
	SetLayout(0, 0, 0)
	resetEvictor()
}

// Load installs pt as the active translation root and returns the page table
// that was active before the call.
func Load(pt *PageTable) *PageTable {
	prev := activeTable
	activeTable = pt
	switchPDTFn(pt.dirFrame.Address())
	return prev
}

// Active returns the page table that is currently installed as the
// translation root or nil if none has been loaded yet.
func Active() *PageTable {
	return activeTable
}

// Enable turns on paging. It must be invoked exactly once, after the first
// page table has been loaded; further calls are logged and ignored.
func Enable() {
	if pagingEnabledFn() {
		kfmt.Warnf("vmm", "paging is already enabled")
		return
	}
	enablePagingFn()
}

// Refresh flushes all cached translations of the active page table.
func Refresh() {
	flushTLBFn()
}

// isActive returns true if pt is installed as the translation root.
func (pt *PageTable) isActive() bool {
	return pt != nil && pt.dirFrame.Valid() && activePDTFn() == pt.dirFrame.Address()
}

// flushEntry invalidates the cached translation of vaddr if pt is active.
func (pt *PageTable) flushEntry(vaddr uintptr) {
	if pt.isActive() {
		flushTLBEntryFn(vaddr)
	}
}

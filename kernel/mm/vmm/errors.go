package vmm

import "tinykern/kernel"

var (
	// ErrPrivilegeViolation is returned when a kernel-only mapping would be
	// replaced by a user accessible one without FlagPrivileged.
	ErrPrivilegeViolation = &kernel.Error{Module: "vmm", Message: "kernel-only mapping cannot be remapped as user accessible"}

	// ErrNotPresent is returned when a virtual address is not mapped.
	ErrNotPresent = &kernel.Error{Module: "vmm", Message: "virtual address not mapped"}

	// ErrDeleteActive is returned when deleting the active page table.
	ErrDeleteActive = &kernel.Error{Module: "vmm", Message: "cannot delete the active page table"}

	errInvalidTable = &kernel.Error{Module: "vmm", Message: "invalid page table"}
)

package mm

import "tinykern/kernel"

var (
	// ErrOutOfMemory is returned when the frame pool is exhausted.
	ErrOutOfMemory = &kernel.Error{Module: "mm", Message: "out of memory"}

	// ErrInvalidAddress is returned for unaligned or untracked addresses.
	ErrInvalidAddress = &kernel.Error{Module: "mm", Message: "invalid address"}

	// ErrDoubleFree is returned when releasing a frame that is already free.
	ErrDoubleFree = &kernel.Error{Module: "mm", Message: "double free"}
)

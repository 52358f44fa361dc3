package kernel

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure so that callers can
// compare them by identity. Errors are never wrapped; the Module field tells
// which subsystem reported them.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error in "[module] message" form, the same layout used
// by the kernel panic banner.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}

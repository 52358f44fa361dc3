package cpu

const (
	// FlagInterrupt is the EFLAGS interrupt-enable bit.
	FlagInterrupt = uint32(1 << 9)

	// FlagIOPL3 sets the EFLAGS I/O privilege level to ring 3.
	FlagIOPL3 = uint32(3 << 12)

	// flagReserved is the EFLAGS bit 1 that always reads as 1.
	flagReserved = uint32(1 << 1)
)

// Segment selectors installed by the boot GDT.
const (
	SegmentKernelCode = uint32(0x08)
	SegmentKernelData = uint32(0x10)
	SegmentUserCode   = uint32(0x18 | 3)
	SegmentUserData   = uint32(0x20 | 3)
)

// Regs contains a snapshot of the general purpose registers.
type Regs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
}

// Segments contains the data segment selectors.
type Segments struct {
	GS uint32
	FS uint32
	ES uint32
	DS uint32
}

// Frame describes the interrupt frame pushed by the CPU when it enters the
// kernel from user mode and popped by iret on the way back.
type Frame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// Context is the full register state of a suspended execution context. Its
// layout matches what the entry stubs push onto a kernel stack so it can be
// stored there verbatim.
type Context struct {
	Regs
	Segments
	Frame
}

// UserMode returns true if the context resumes execution in ring 3.
func (c *Context) UserMode() bool {
	return c.CS&3 == 3
}

// InterruptsEnabled returns true if resuming the context enables interrupts.
func (c *Context) InterruptsEnabled() bool {
	return c.EFlags&FlagInterrupt != 0
}

// ResetUser primes the context so that resuming it jumps to entry in ring 3
// with the supplied stack pointer and interrupts enabled.
func (c *Context) ResetUser(entry, stackPtr uint32) {
	*c = Context{}
	c.ES = SegmentUserData
	c.DS = SegmentUserData
	c.CS = SegmentUserCode
	c.EIP = entry
	c.EFlags = flagReserved | FlagInterrupt | FlagIOPL3
	c.ESP = stackPtr
	c.SS = SegmentUserData
}

// regs is the live register file.
var regs Context

// SaveContext stores the live register file into ctx.
func SaveContext(ctx *Context) {
	*ctx = regs
}

// RestoreContext loads ctx into the live register file.
func RestoreContext(ctx *Context) {
	regs = *ctx
}

// Registers returns a copy of the live register file.
func Registers() Context {
	return regs
}

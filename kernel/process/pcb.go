// Package process implements process control blocks, the process table and
// the operations that build and tear down a process address space.
package process

import (
	"unsafe"

	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/irq"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
	"tinykern/kernel/mm/vmm"
)

const (
	// MaxPID is the capacity of the process table. PID 0 is never
	// assigned.
	MaxPID = 1024

	// MaxObjects is the number of kernel object handles per process.
	MaxObjects = 32

	// UserEntryPoint is the virtual address where user programs are loaded
	// and where the data segment begins.
	UserEntryPoint = uintptr(0x80000000)

	// UserStackInit is the initial user stack pointer.
	UserStackInit = uint32(0xfffffff0)

	// userStackTop is the end of the 32-bit address space; the stack
	// segment grows down from it.
	userStackTop = uint64(1) << 32

	// initialSegmentSize is the size of the data and stack segments of a
	// new process.
	initialSegmentSize = 2 * mm.PageSize

	// kstackTopOffset is the offset of the top of the kernel stack within
	// its frame.
	kstackTopOffset = mm.PageSize - 8
)

// State describes the scheduling state of a process.
type State uint8

const (
	// StateCradle is the state of a created process that never ran.
	StateCradle State = iota
	StateReady
	StateRunning
	StateBlocked

	// StateGrave is the state of a terminated process that has not been
	// reaped yet.
	StateGrave
)

func (s State) String() string {
	switch s {
	case StateCradle:
		return "cradle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateGrave:
		return "grave"
	default:
		return "unknown"
	}
}

// ExitReason tells why a process terminated.
type ExitReason uint8

const (
	ExitNormal ExitReason = iota
	ExitKilled
)

func (r ExitReason) String() string {
	if r == ExitKilled {
		return "killed"
	}
	return "normal"
}

// KObject is a kernel object handle (file, device, pipe, ...) owned by a
// process. Copy returns a new reference to the same object; Close drops a
// reference.
type KObject interface {
	Copy() KObject
	Close()
}

// PCB is the process control block.
type PCB struct {
	node queueNode

	PID   uint32
	PPID  uint32
	State State

	ExitCode   int
	ExitReason ExitReason

	// WaitingForChild is the pid that a process blocked in wait-child is
	// waiting for; 0 means any child.
	WaitingForChild uint32

	// PageTable is the address space of the process.
	PageTable *vmm.PageTable

	// Objects is the kernel object handle table.
	Objects [MaxObjects]KObject

	// DataSize and StackSize are the page-granular sizes of the data and
	// stack segments in bytes.
	DataSize  uintptr
	StackSize uintptr

	// KStackPtr is the physical address of the saved register context at
	// the top of the kernel stack.
	KStackPtr uintptr

	// Program is the code executed by the process and Task the host
	// continuation running it. Both are managed by the scheduler.
	Program func()
	Task    *cpu.Task

	kstack   mm.Frame
	pcbFrame mm.Frame
}

// KStack returns the frame that holds the process kernel stack.
func (p *PCB) KStack() mm.Frame {
	return p.kstack
}

// Context returns the register context saved at the top of the kernel stack.
func (p *PCB) Context() *cpu.Context {
	b := mm.PhysBytes(p.KStackPtr, unsafe.Sizeof(cpu.Context{}))
	if b == nil {
		return nil
	}
	return (*cpu.Context)(unsafe.Pointer(&b[0]))
}

var (
	// table maps pids to live processes.
	table [MaxPID]*PCB

	// lastPID is the most recently assigned pid.
	lastPID uint32

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	// ErrPIDExhausted is returned when the process table is full.
	ErrPIDExhausted = &kernel.Error{Module: "process", Message: "process table is full"}

	// ErrNotDead is returned when deleting a process that is not in the
	// grave state or that is still linked into a queue.
	ErrNotDead = &kernel.Error{Module: "process", Message: "process is not an unlinked grave entry"}

	// ErrSegmentRange is returned when a segment would overlap another
	// segment or leave the user address space.
	ErrSegmentRange = &kernel.Error{Module: "process", Message: "segment size out of range"}
)

// allocatePID scans the process table forward from one past the last
// assigned pid, wrapping around, for a free slot. It returns 0 if the table
// is full.
func allocatePID() uint32 {
	for pid := lastPID + 1; pid < MaxPID; pid++ {
		if table[pid] == nil {
			lastPID = pid
			return pid
		}
	}

	for pid := uint32(1); pid <= lastPID && pid < MaxPID; pid++ {
		if table[pid] == nil {
			lastPID = pid
			return pid
		}
	}

	return 0
}

// Lookup returns the live process with the given pid or nil.
func Lookup(pid uint32) *PCB {
	if pid == 0 || pid >= MaxPID {
		return nil
	}
	return table[pid]
}

// Visit calls visitor for every live process in pid order until visitor
// returns false.
func Visit(visitor func(*PCB) bool) {
	for _, p := range table {
		if p != nil && !visitor(p) {
			return
		}
	}
}

// Count returns the number of live processes.
func Count() int {
	var count int
	Visit(func(*PCB) bool {
		count++
		return true
	})
	return count
}

// ResetTable forgets every process without releasing any resources and
// rewinds pid assignment. It is used when the kernel core is booted again
// on fresh memory.
func ResetTable() {
	table = [MaxPID]*PCB{}
	lastPID = 0
}

// newPCB allocates the frames that back a process (its control block and
// kernel stack) and assigns it a pid. The returned process owns no address
// space yet and is not visible in the process table.
func newPCB() (*PCB, *kernel.Error) {
	pcbFrame, err := mm.AllocFrame(true)
	if err != nil {
		return nil, err
	}

	p := &PCB{pcbFrame: pcbFrame, kstack: mm.InvalidFrame, State: StateCradle}
	if p.PID = allocatePID(); p.PID == 0 {
		p.release()
		return nil, ErrPIDExhausted
	}

	if p.kstack, err = mm.AllocFrame(true); err != nil {
		p.kstack = mm.InvalidFrame
		p.release()
		return nil, err
	}
	p.KStackPtr = p.kstack.Address() + kstackTopOffset - unsafe.Sizeof(cpu.Context{})

	return p, nil
}

// release frees whatever resources a partially built process holds.
func (p *PCB) release() {
	if p.PageTable != nil {
		_ = p.PageTable.Delete()
		p.PageTable = nil
	}
	if p.kstack.Valid() {
		_ = mm.FreeFrame(p.kstack)
		p.kstack = mm.InvalidFrame
	}
	if p.pcbFrame.Valid() {
		_ = mm.FreeFrame(p.pcbFrame)
		p.pcbFrame = mm.InvalidFrame
	}
}

// Create builds a new process that will run program: it gets a pid, an
// address space with the kernel identity mappings, data and stack segments
// of two pages each and a kernel stack primed to enter user mode at
// UserEntryPoint. The process starts in the cradle state. If any step fails
// everything allocated so far is released.
func Create(program func()) (*PCB, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	p, err := newPCB()
	if err != nil {
		return nil, err
	}

	if p.PageTable, err = vmm.Create(); err != nil {
		p.release()
		return nil, err
	}

	if err = p.PageTable.Init(); err != nil {
		p.release()
		return nil, err
	}

	if err = DataSizeSet(p, initialSegmentSize); err != nil {
		p.release()
		return nil, err
	}

	if err = StackSizeSet(p, initialSegmentSize); err != nil {
		p.release()
		return nil, err
	}

	KStackReset(p, uint32(UserEntryPoint))
	p.Program = program
	table[p.PID] = p

	kfmt.Debugf("process", "created pid %d", p.PID)
	return p, nil
}

// Fork creates a child of parent that runs program. The child receives a
// copy of the parent address space, the parent segment sizes, a copy of the
// parent's saved register context with EAX cleared (the fork return value
// seen by the child) and references to every kernel object of the parent.
func Fork(parent *PCB, program func()) (*PCB, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	child, err := newPCB()
	if err != nil {
		return nil, err
	}

	if child.PageTable, err = parent.PageTable.Duplicate(); err != nil {
		child.release()
		return nil, err
	}

	child.DataSize, child.StackSize = parent.DataSize, parent.StackSize
	KStackCopy(parent, child)
	InheritAll(parent, child)
	child.Program = program
	table[child.PID] = child

	kfmt.Debugf("process", "pid %d forked pid %d", parent.PID, child.PID)
	return child, nil
}

// Delete closes every kernel object of p, deletes its address space and
// releases its kernel stack and control block. The process must be in the
// grave state and must not be linked into any queue.
func Delete(p *PCB) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	if p.State != StateGrave || p.node.queue != nil {
		return ErrNotDead
	}

	if p.PageTable != nil {
		if err := p.PageTable.Delete(); err != nil {
			return err
		}
		p.PageTable = nil
	}

	for fd, obj := range p.Objects {
		if obj != nil {
			obj.Close()
			p.Objects[fd] = nil
		}
	}

	p.release()
	if Lookup(p.PID) == p {
		table[p.PID] = nil
	}

	kfmt.Debugf("process", "deleted pid %d", p.PID)
	return nil
}

// KStackReset primes the saved context of p so that resuming it enters user
// mode at entry with interrupts enabled and the initial user stack. The
// process is moved back to the cradle state.
func KStackReset(p *PCB, entry uint32) {
	p.State = StateCradle
	p.Context().ResetUser(entry, UserStackInit)
}

// KStackCopy copies the saved context of parent to child and clears the
// child's EAX.
func KStackCopy(parent, child *PCB) {
	ctx := child.Context()
	*ctx = *parent.Context()
	ctx.EAX = 0
}

// Dump outputs the kernel stack location and the saved register context of p
// to the console.
func Dump(p *PCB) {
	kfmt.Printf("pid %d (ppid %d) %s\n", p.PID, p.PPID, p.State)
	kfmt.Printf("kstack: %x\n", p.kstack.Address())
	kfmt.Printf("stackp: %x\n", p.KStackPtr)
	irq.DumpContext("  ", p.Context())
}

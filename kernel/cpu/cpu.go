// Package cpu models the processor state the memory and scheduling core relies
// on: the interrupt flag and interrupt line, the page directory base register
// (CR3), the paging enable bit (CR0.PG), TLB maintenance and the register
// file. Only one goroutine owns the CPU at any time; see Task.
package cpu

import (
	"tinykern/kernel/sync"
)

var (
	// interruptsEnabled mirrors EFLAGS.IF for the CPU-owning context.
	interruptsEnabled bool

	// pagingEnabled mirrors CR0.PG.
	pagingEnabled bool

	// activePDT mirrors CR3.
	activePDT uintptr

	// tlbFlushCount counts full and single-entry TLB invalidations.
	tlbFlushCount uint64

	// irqLine holds the pending interrupt vectors. It is the only piece of
	// CPU state that may be touched by goroutines that do not own the CPU.
	irqLine struct {
		lock    sync.Spinlock
		pending [4]uint64
	}

	// doorbell wakes up a CPU halted in WaitForInterrupt.
	doorbell = make(chan struct{}, 1)

	// interruptHandler receives every delivered vector. It is installed
	// by the irq package.
	interruptHandler func(vector uint8)

	// haltFn blocks forever; tests can replace it to observe halts.
	haltFn = func() { select {} }
)

// EnableInterrupts sets the interrupt flag and immediately delivers any
// pending interrupts.
func EnableInterrupts() {
	interruptsEnabled = true
	deliverPending()
}

// DisableInterrupts clears the interrupt flag.
func DisableInterrupts() {
	interruptsEnabled = false
}

// InterruptsEnabled returns the current state of the interrupt flag.
func InterruptsEnabled() bool {
	return interruptsEnabled
}

// DisableInterruptsSave clears the interrupt flag and returns its previous
// state so that it can later be passed to RestoreInterrupts.
func DisableInterruptsSave() bool {
	prev := interruptsEnabled
	interruptsEnabled = false
	return prev
}

// RestoreInterrupts restores the interrupt flag to a state previously
// returned by DisableInterruptsSave.
func RestoreInterrupts(enabled bool) {
	if enabled {
		EnableInterrupts()
		return
	}
	interruptsEnabled = false
}

// SetInterruptHandler registers the function that receives delivered
// interrupt vectors.
func SetInterruptHandler(handler func(vector uint8)) {
	interruptHandler = handler
}

// RaiseInterrupt asserts the interrupt line for the given vector. It can be
// safely invoked from any goroutine; the interrupt is delivered on the
// CPU-owning context the next time interrupts are enabled or while the CPU is
// waiting in WaitForInterrupt.
func RaiseInterrupt(vector uint8) {
	irqLine.lock.Acquire()
	irqLine.pending[vector>>6] |= 1 << (vector & 63)
	irqLine.lock.Release()

	select {
	case doorbell <- struct{}{}:
	default:
	}
}

// takePending clears and returns the lowest pending vector.
func takePending() (uint8, bool) {
	irqLine.lock.Acquire()
	defer irqLine.lock.Release()

	for word, bits := range irqLine.pending {
		if bits == 0 {
			continue
		}

		for bit := uint8(0); bit < 64; bit++ {
			if bits&(1<<bit) != 0 {
				irqLine.pending[word] &^= 1 << bit
				return uint8(word<<6) + bit, true
			}
		}
	}

	return 0, false
}

func hasPending() bool {
	irqLine.lock.Acquire()
	defer irqLine.lock.Release()

	for _, bits := range irqLine.pending {
		if bits != 0 {
			return true
		}
	}
	return false
}

// deliverPending dispatches pending vectors while the interrupt flag is set.
// Like an interrupt gate, the flag is cleared while the handler runs and set
// again when it returns.
func deliverPending() {
	for interruptsEnabled {
		vector, ok := takePending()
		if !ok {
			return
		}

		interruptsEnabled = false
		if interruptHandler != nil {
			interruptHandler(vector)
		}
		interruptsEnabled = true
	}
}

// WaitForInterrupt enables interrupts and halts the CPU until at least one
// interrupt has been delivered (sti; hlt).
func WaitForInterrupt() {
	interruptsEnabled = true
	for !hasPending() {
		<-doorbell
	}
	deliverPending()
}

// Halt disables interrupts and stops instruction execution. Calls to Halt
// never return.
func Halt() {
	interruptsEnabled = false
	haltFn()
}

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) {
	activePDT = pdtPhysAddr
	tlbFlushCount++
}

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	return activePDT
}

// EnablePaging sets CR0.PG.
func EnablePaging() {
	pagingEnabled = true
}

// PagingEnabled returns true if CR0.PG is set.
func PagingEnabled() bool {
	return pagingEnabled
}

// FlushTLB invalidates all non-global TLB entries by reloading CR3.
func FlushTLB() {
	SwitchPDT(activePDT)
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(_ uintptr) {
	tlbFlushCount++
}

// TLBFlushCount returns the number of TLB invalidations performed so far.
func TLBFlushCount() uint64 {
	return tlbFlushCount
}

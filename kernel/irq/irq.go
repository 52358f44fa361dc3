// Package irq maintains the interrupt vector table and dispatches interrupts
// delivered by the CPU to the registered handlers.
package irq

import (
	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
)

// InterruptNum identifies an entry in the interrupt vector table.
type InterruptNum uint8

const (
	// TimerVector is the remapped PIC vector of the programmable interval
	// timer (IRQ0). It drives preemption.
	TimerVector = InterruptNum(32)

	// KeyboardVector is the remapped PIC vector of the keyboard (IRQ1).
	KeyboardVector = InterruptNum(33)
)

// Handler is a function that services an interrupt. Handlers run with
// interrupts disabled.
type Handler func(InterruptNum)

var (
	vectorTable [256]Handler

	// spuriousCount counts delivered vectors without a handler.
	spuriousCount uint64

	setInterruptHandlerFn = cpu.SetInterruptHandler
)

// Init connects the vector table to the CPU interrupt line.
func Init() {
	setInterruptHandlerFn(func(vector uint8) {
		Dispatch(InterruptNum(vector))
	})
}

// HandleInterrupt registers handler for the given vector, replacing any
// previously registered handler. Passing a nil handler clears the entry.
func HandleInterrupt(num InterruptNum, handler Handler) {
	vectorTable[num] = handler
}

// Dispatch invokes the handler registered for num. It is what the CPU calls
// for each delivered vector and what software interrupts (int $n) reduce to.
func Dispatch(num InterruptNum) {
	handler := vectorTable[num]
	if handler == nil {
		spuriousCount++
		kfmt.Debugf("irq", "no handler for vector %d", num)
		return
	}

	handler(num)
}

// SpuriousCount returns the number of dispatched vectors that had no handler.
func SpuriousCount() uint64 {
	return spuriousCount
}

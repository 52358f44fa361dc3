// Package sched implements the process scheduler: the ready, grave and
// grave-watcher queues, the context switch primitive and the process
// lifecycle operations built on top of it (wait, wakeup, exit, kill, wait for
// a child and reap).
//
// All scheduler state is guarded by disabling interrupts; there is a single
// CPU and interrupts are the only source of concurrency.
package sched

import (
	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/irq"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm/vmm"
	"tinykern/kernel/process"
)

var (
	// current is the running process or nil while the scheduler is
	// looking for the next process to run.
	current *process.PCB

	readyQueue process.Queue

	// graveQueue holds terminated processes until they are reaped.
	graveQueue process.Queue

	// graveWatcherQueue holds processes blocked in WaitChild.
	graveWatcherQueue process.Queue

	// allowPreempt gates timer driven preemption.
	allowPreempt = true

	// ErrNoSuchProcess is returned when an operation names a pid that does
	// not identify a suitable process.
	ErrNoSuchProcess = &kernel.Error{Module: "sched", Message: "no such process"}

	// ErrNotRunnable is returned by Launch for processes that are not in
	// the cradle or ready state or that are already queued.
	ErrNotRunnable = &kernel.Error{Module: "sched", Message: "process cannot be launched"}
)

// Init creates the first process, installs its page table as the active
// translation root, enables paging and adopts the calling context as the
// execution context of the new process. It also registers the timer
// interrupt handler that drives preemption. Init must be invoked exactly once
// after the memory subsystem has been initialized.
func Init() (*process.PCB, *kernel.Error) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	p, err := process.Create(nil)
	if err != nil {
		return nil, err
	}

	vmm.Load(p.PageTable)
	vmm.Enable()

	p.Task = cpu.NewTask(nil)
	p.Task.Adopt()
	p.State = process.StateRunning
	p.WaitingForChild = 0
	current = p

	irq.HandleInterrupt(irq.TimerVector, func(irq.InterruptNum) {
		Preempt()
	})

	kfmt.Infof("sched", "started init process with pid %d", p.PID)
	return p, nil
}

// Current returns the running process or nil if the scheduler has not been
// initialized.
func Current() *process.PCB {
	return current
}

// SetPreemption enables or disables timer driven preemption.
func SetPreemption(enabled bool) {
	allowPreempt = enabled
}

// PreemptionEnabled returns true if the timer interrupt preempts the running
// process.
func PreemptionEnabled() bool {
	return allowPreempt
}

// Launch places a newly created (or ready) process on the ready queue.
func Launch(p *process.PCB) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	if (p.State != process.StateCradle && p.State != process.StateReady) || p.Queue() != nil {
		return ErrNotRunnable
	}

	readyQueue.PushTail(p)
	return nil
}

// Fork creates a child of the running process that executes program and
// places it on the ready queue.
func Fork(program func()) (*process.PCB, *kernel.Error) {
	if current == nil {
		return nil, ErrNoSuchProcess
	}

	child, err := process.Fork(current, program)
	if err != nil {
		return nil, err
	}

	return child, Launch(child)
}

// switchProcess is the only place where the running process changes. The
// running process is moved to newState (and onto the ready or grave queue
// when newState calls for it), then the next ready process is selected,
// waiting for interrupts while there is none. The selected process gets its
// page table and register context installed and resumes execution.
//
// switchProcess returns when the calling process is scheduled again; for a
// process moved to the grave state it never returns. Interrupts are enabled
// on return.
func switchProcess(newState process.State) {
	cpu.DisableInterrupts()

	prev := current
	if prev.State != process.StateCradle {
		cpu.SaveContext(prev.Context())
	}

	prev.State = newState
	switch newState {
	case process.StateReady:
		readyQueue.PushTail(prev)
	case process.StateGrave:
		graveQueue.PushTail(prev)
	}
	current = nil

	next := readyQueue.PopHead()
	for next == nil {
		cpu.WaitForInterrupt()
		cpu.DisableInterrupts()
		next = readyQueue.PopHead()
	}

	next.State = process.StateRunning
	current = next
	vmm.Load(next.PageTable)
	cpu.RestoreContext(next.Context())

	if next.Task == nil {
		next.Task = cpu.NewTask(run(next))
	}
	cpu.SwitchTask(prev.Task, next.Task)

	cpu.EnableInterrupts()
}

// run returns the entry point of the execution context of p. A process that
// returns from its program exits with status 0.
func run(p *process.PCB) func() {
	return func() {
		cpu.EnableInterrupts()

		if p.Program != nil {
			p.Program()
		}

		Exit(0)
	}
}

// Preempt switches to the next ready process. It is invoked by the timer
// interrupt handler and does nothing if preemption is disabled, the
// scheduler is idle or no other process is ready to run.
func Preempt() {
	if allowPreempt && current != nil && !readyQueue.Empty() {
		switchProcess(process.StateReady)
	}
}

// Yield voluntarily gives up the CPU. It is a no-op before Init.
func Yield() {
	if current == nil {
		return
	}
	switchProcess(process.StateReady)
}

// Wait blocks the running process on q until it is woken up by Wakeup or
// WakeupAll. It is a no-op before Init.
func Wait(q *process.Queue) {
	if current == nil {
		return
	}

	cpu.DisableInterrupts()
	q.PushTail(current)
	switchProcess(process.StateBlocked)
}

// Wakeup moves the first process blocked on q to the ready queue.
func Wakeup(q *process.Queue) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	if p := q.PopHead(); p != nil {
		p.State = process.StateReady
		readyQueue.PushTail(p)
	}
}

// WakeupAll moves every process blocked on q to the ready queue.
func WakeupAll(q *process.Queue) {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	for p := q.PopHead(); p != nil; p = q.PopHead() {
		p.State = process.StateReady
		readyQueue.PushTail(p)
	}
}

// Exit terminates the running process with the given status code. The
// process stays in the grave queue until it is reaped. Before Init there is
// no process to terminate and Exit returns.
func Exit(code int) {
	if current == nil {
		return
	}

	cpu.DisableInterrupts()

	kfmt.Infof("sched", "pid %d exiting with status %d", current.PID, code)
	current.ExitCode = code
	current.ExitReason = process.ExitNormal
	notifyWatchers(current)
	switchProcess(process.StateGrave)
}

// notifyWatchers moves every process blocked in WaitChild to the ready
// queue after dead entered the grave queue. Waiters that match dead are
// queued first; the others only re-check their timeout and block again.
func notifyWatchers(dead *process.PCB) {
	matches := func(p *process.PCB) bool {
		return (p.PID == dead.PPID && p.WaitingForChild == 0) || p.WaitingForChild == dead.PID
	}

	for _, wantMatch := range []bool{true, false} {
		for p := graveWatcherQueue.Head(); p != nil; {
			next := p.Next()
			if matches(p) == wantMatch {
				graveWatcherQueue.Remove(p)
				p.State = process.StateReady
				readyQueue.PushTail(p)
			}
			p = next
		}
	}
}

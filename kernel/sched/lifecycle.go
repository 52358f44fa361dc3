package sched

import (
	"time"

	"tinykern/kernel"
	"tinykern/kernel/clock"
	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/process"
)

// ErrWaitTimeout is returned by WaitChild when no matching child terminated
// within the requested timeout.
var ErrWaitTimeout = &kernel.Error{Module: "sched", Message: "timed out waiting for child"}

// ExitInfo describes a terminated process.
type ExitInfo struct {
	PID    uint32
	Code   int
	Reason process.ExitReason
}

// Kill terminates the process with the given pid together with all its
// descendants. The victims are moved to the grave queue with their exit
// reason set to process.ExitKilled. If the running process is among the
// victims it is switched out last and Kill does not return.
func Kill(pid uint32) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()

	target := process.Lookup(pid)
	if target == nil || target.State == process.StateGrave {
		cpu.RestoreInterrupts(irqState)
		return ErrNoSuchProcess
	}

	var (
		visited  [process.MaxPID]bool
		worklist = []*process.PCB{target}
		killSelf bool
	)
	visited[target.PID] = true

	for len(worklist) > 0 {
		victim := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		process.Visit(func(p *process.PCB) bool {
			if p.PPID == victim.PID && !visited[p.PID] && p.State != process.StateGrave {
				visited[p.PID] = true
				worklist = append(worklist, p)
			}
			return true
		})

		victim.ExitCode = 0
		victim.ExitReason = process.ExitKilled
		if victim == current {
			killSelf = true
			continue
		}

		victim.Unlink()
		victim.State = process.StateGrave
		graveQueue.PushTail(victim)
		notifyWatchers(victim)
	}

	kfmt.Infof("sched", "killed pid %d", pid)

	if killSelf {
		notifyWatchers(current)
		switchProcess(process.StateGrave)
	}

	cpu.RestoreInterrupts(irqState)
	return nil
}

// WaitChild waits for a child of the running process to terminate. A zero
// pid matches any child; otherwise only the process with that pid matches.
// A matching process is left in the grave queue; see Reap.
//
// The grave queue is checked before each block, so a zero timeout polls
// without blocking and a negative timeout waits forever. A blocked caller is
// woken by every grave queue insertion and re-evaluates the timeout at that
// point; there is no timer enforcing it.
func WaitChild(pid uint32, timeout time.Duration) (ExitInfo, *kernel.Error) {
	self := current
	if self == nil {
		return ExitInfo{}, ErrNoSuchProcess
	}

	start := clock.Read()
	for {
		irqState := cpu.DisableInterruptsSave()

		for p := graveQueue.Head(); p != nil; p = p.Next() {
			if (pid == 0 && p.PPID == self.PID) || (pid != 0 && p.PID == pid) {
				info := ExitInfo{PID: p.PID, Code: p.ExitCode, Reason: p.ExitReason}
				cpu.RestoreInterrupts(irqState)
				return info, nil
			}
		}

		if timeout >= 0 && clock.Since(start).Duration() >= timeout {
			cpu.RestoreInterrupts(irqState)
			return ExitInfo{}, ErrWaitTimeout
		}

		self.WaitingForChild = pid
		Wait(&graveWatcherQueue)
		self.WaitingForChild = 0
	}
}

// Reap removes the terminated process with the given pid from the grave
// queue and releases all of its resources.
func Reap(pid uint32) *kernel.Error {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	for p := graveQueue.Head(); p != nil; p = p.Next() {
		if p.PID == pid {
			return destroy(p)
		}
	}

	return ErrNoSuchProcess
}

// ReapAll releases every process in the grave queue.
func ReapAll() {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	dead := make([]*process.PCB, 0, graveQueue.Len())
	for p := graveQueue.Head(); p != nil; p = p.Next() {
		dead = append(dead, p)
	}

	for _, p := range dead {
		if err := destroy(p); err != nil {
			kfmt.Errorf("sched", "unable to reap pid %d: %s", p.PID, err.Message)
		}
	}
}

// destroy releases the control block of a dead process and then discards its
// execution context. If the release fails the process goes back to the grave
// queue, untouched, so that a later reap can retry.
func destroy(p *process.PCB) *kernel.Error {
	graveQueue.Remove(p)
	if err := process.Delete(p); err != nil {
		graveQueue.PushTail(p)
		return err
	}

	if p.Task != nil {
		p.Task.Kill()
		p.Task = nil
	}
	return nil
}

// ProcessInfo is a snapshot of a process table entry.
type ProcessInfo struct {
	PID        uint32
	PPID       uint32
	State      process.State
	ExitCode   int
	ExitReason process.ExitReason
}

// Processes returns a snapshot of every live process in pid order.
func Processes() []ProcessInfo {
	irqState := cpu.DisableInterruptsSave()
	defer cpu.RestoreInterrupts(irqState)

	list := make([]ProcessInfo, 0, process.Count())
	process.Visit(func(p *process.PCB) bool {
		list = append(list, ProcessInfo{
			PID:        p.PID,
			PPID:       p.PPID,
			State:      p.State,
			ExitCode:   p.ExitCode,
			ExitReason: p.ExitReason,
		})
		return true
	})
	return list
}

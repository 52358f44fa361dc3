// Package sync provides the spinlock guarding state that interrupt sources
// running on other goroutines share with the CPU-owning task.
package sync

import (
	"runtime"
	"sync/atomic"
)

// spinsPerYield bounds how long Acquire busy-waits before letting the
// holder run.
const spinsPerYield = 16

// yieldFn is mocked by tests.
var yieldFn = runtime.Gosched

// Spinlock is a non-reentrant busy-wait lock. The zero value is unlocked.
type Spinlock struct {
	held atomic.Bool
}

// Acquire spins until the lock is taken by the caller. Acquiring a lock that
// the caller already holds never returns.
func (l *Spinlock) Acquire() {
	for spins := 1; ; spins++ {
		if !l.held.Load() && l.held.CompareAndSwap(false, true) {
			return
		}

		if spins%spinsPerYield == 0 {
			yieldFn()
		}
	}
}

// TryToAcquire takes the lock if it is free and reports whether it did.
func (l *Spinlock) TryToAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Releasing a free lock is a no-op.
func (l *Spinlock) Release() {
	l.held.Store(false)
}

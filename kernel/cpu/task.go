package cpu

// Task is the host continuation behind a saved register context. Restoring a
// context resumes the goroutine parked inside its Task; a task that has never
// run starts its entry function on a fresh goroutine.
//
// Exactly one task owns the CPU at a time. SwitchTask hands the CPU over
// through an unbuffered channel, which also orders every memory access made
// by the previous owner before the ones made by the next.
type Task struct {
	wake    chan bool
	entry   func()
	started bool
	dead    bool
}

// NewTask returns a task that runs entry the first time it is switched to.
func NewTask(entry func()) *Task {
	return &Task{
		wake:  make(chan bool),
		entry: entry,
	}
}

// Adopt marks the task as already running on the calling goroutine. It is
// used for the boot context, which becomes the first process.
func (t *Task) Adopt() {
	t.started = true
}

// Started returns true if the task has been switched to at least once.
func (t *Task) Started() bool {
	return t.started
}

// Kill discards the continuation. A goroutine parked in the task stays
// parked for good without running any more of its code, deferred calls
// included; a task that never started will never run.
func (t *Task) Kill() {
	if t.dead {
		return
	}
	t.dead = true
	close(t.wake)
}

// SwitchTask transfers the CPU from the calling task (from) to next and parks
// the caller until some other task switches back to it. If from is killed
// while parked, SwitchTask never returns.
func SwitchTask(from, next *Task) {
	if from == next {
		return
	}

	if next.dead {
		panic("cpu: switch to a dead task")
	}

	if !next.started {
		next.started = true
		go next.entry()
	} else {
		next.wake <- true
	}

	if ok := <-from.wake; !ok {
		// Unwinding would run the dead task's deferred calls beside the
		// current CPU owner.
		select {}
	}
}

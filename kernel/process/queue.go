package process

import "tinykern/kernel"

var (
	errAlreadyQueued = &kernel.Error{Module: "process", Message: "process is already linked into a queue"}
	errNotInQueue    = &kernel.Error{Module: "process", Message: "process is not linked into this queue"}
)

// queueNode links a PCB into a Queue. It is embedded in the PCB so a process
// can be a member of at most one queue at any time.
type queueNode struct {
	prev, next *PCB
	queue      *Queue
}

// Queue is an intrusive FIFO list of processes. The zero value is an empty
// queue ready to use.
type Queue struct {
	head, tail *PCB
	length     int
}

// Len returns the number of queued processes.
func (q *Queue) Len() int {
	return q.length
}

// Empty returns true if the queue holds no processes.
func (q *Queue) Empty() bool {
	return q.head == nil
}

// Head returns the first process in the queue without removing it.
func (q *Queue) Head() *PCB {
	return q.head
}

// PushTail appends p to the queue. Pushing a process that is already linked
// into a queue is a fatal kernel error.
func (q *Queue) PushTail(p *PCB) {
	if p.node.queue != nil {
		panicFn(errAlreadyQueued)
		return
	}

	p.node.prev = q.tail
	p.node.next = nil
	if q.tail != nil {
		q.tail.node.next = p
	} else {
		q.head = p
	}
	q.tail = p
	p.node.queue = q
	q.length++
}

// PopHead unlinks and returns the first process in the queue or nil if the
// queue is empty.
func (q *Queue) PopHead() *PCB {
	p := q.head
	if p != nil {
		q.Remove(p)
	}
	return p
}

// Remove unlinks p from the queue. Removing a process that is not linked
// into q is a fatal kernel error.
func (q *Queue) Remove(p *PCB) {
	if p.node.queue != q {
		panicFn(errNotInQueue)
		return
	}

	if q.head == p {
		q.head = p.node.next
	} else {
		p.node.prev.node.next = p.node.next
	}
	if q.tail == p {
		q.tail = p.node.prev
	} else {
		p.node.next.node.prev = p.node.prev
	}

	p.node = queueNode{}
	q.length--
}

// Next returns the process that follows p in its queue.
func (p *PCB) Next() *PCB {
	return p.node.next
}

// Queue returns the queue that p is linked into or nil.
func (p *PCB) Queue() *Queue {
	return p.node.queue
}

// Unlink removes p from whatever queue it is linked into.
func (p *PCB) Unlink() {
	if q := p.node.queue; q != nil {
		q.Remove(p)
	}
}

package kfmt

import "io"

// bootLogSize is the capacity of the buffer holding console output produced
// before a sink is attached. It must be a power of 2.
const bootLogSize = 4096

// ringBuffer keeps the newest bootLogSize bytes written to it. Once full,
// every new byte evicts the oldest one.
type ringBuffer struct {
	data  [bootLogSize]byte
	start int
	count int
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int { return rb.count }

// Reset discards any buffered output.
func (rb *ringBuffer) Reset() { rb.start, rb.count = 0, 0 }

// Write appends p to the buffer. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	// Only the tail of an oversized write can survive.
	if len(p) > bootLogSize {
		rb.Reset()
		_, _ = rb.Write(p[len(p)-bootLogSize:])
		return len(p), nil
	}

	for _, b := range p {
		rb.data[(rb.start+rb.count)&(bootLogSize-1)] = b
		if rb.count == bootLogSize {
			rb.start = (rb.start + 1) & (bootLogSize - 1)
		} else {
			rb.count++
		}
	}

	return len(p), nil
}

// Read drains up to len(p) of the oldest buffered bytes into p. It returns
// io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	end := rb.start + rb.count
	if end > bootLogSize {
		end = bootLogSize
	}

	n := copy(p, rb.data[rb.start:end])
	rb.start = (rb.start + n) & (bootLogSize - 1)
	rb.count -= n
	return n, nil
}

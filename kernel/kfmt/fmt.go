// Package kfmt implements the kernel console output path: formatted printing,
// early boot buffering, leveled logging and the panic banner.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores output before a
	// console sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes to the active
// console sink. Before a sink is attached, the output is buffered and replayed
// by SetOutputSink.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}
	_, _ = fmt.Fprintf(w, format, args...)
}

// Console returns an io.Writer that always writes to the active console sink
// (or the early print buffer if no sink is attached yet).
func Console() io.Writer {
	return sinkWriter{}
}

// sinkWriter forwards writes to whatever sink is active at the time of the
// write so that long-lived writers (e.g. the logger) follow SetOutputSink.
type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) {
	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}
	return outputSink.Write(p)
}

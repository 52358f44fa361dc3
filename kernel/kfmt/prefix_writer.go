package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter indents multi-line dumps by writing Prefix in front of every
// line sent to Sink. Lines may be split across several Write calls.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	// atLineStart is false while a line is partially written.
	atLineStart bool
	started     bool
}

// NewPrefixWriter returns a PrefixWriter sending its output to sink.
func NewPrefixWriter(sink io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{Sink: sink, Prefix: []byte(prefix)}
}

// Write sends p to the sink, inserting the prefix at every line start. The
// returned count excludes the prefix bytes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.atLineStart, w.started = true, true
	}

	var written int
	for len(p) > 0 {
		if w.atLineStart {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.atLineStart = false
		}

		line := p
		if nl := bytes.IndexByte(p, '\n'); nl >= 0 {
			line = p[:nl+1]
			w.atLineStart = true
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(line):]
	}

	return written, nil
}

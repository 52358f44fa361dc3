package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		descr  string
		writes []string
		exp    string
	}{
		{
			"nothing written",
			nil,
			"",
		},
		{
			"empty write",
			[]string{""},
			"",
		},
		{
			"blank line",
			[]string{"\n"},
			"  \n",
		},
		{
			"unterminated line",
			[]string{"EBP = 00000000"},
			"  EBP = 00000000",
		},
		{
			"register dump",
			[]string{"EAX = 00000001 EBX = 00000000\nECX = 00000000 EDX = 00000000\n"},
			"  EAX = 00000001 EBX = 00000000\n  ECX = 00000000 EDX = 00000000\n",
		},
		{
			"line split across writes",
			[]string{"EIP = ", "80000000", " CS  = 0000001b\nESP", " = fffffff0\n"},
			"  EIP = 80000000 CS  = 0000001b\n  ESP = fffffff0\n",
		},
		{
			"prefix deferred until next write",
			[]string{"EFL = 00000202\n", "DS  = 00000023\n"},
			"  EFL = 00000202\n  DS  = 00000023\n",
		},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewPrefixWriter(&buf, "  ")

			for _, in := range spec.writes {
				wrote, err := w.Write([]byte(in))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if wrote != len(in) {
					t.Fatalf("expected writer to report %d bytes; got %d", len(in), wrote)
				}
			}

			if got := buf.String(); got != spec.exp {
				t.Fatalf("expected output:\n%q\ngot:\n%q", spec.exp, got)
			}
		})
	}
}

func TestPrefixWriterSinkErrors(t *testing.T) {
	expErr := errors.New("console detached")

	specs := []struct {
		descr      string
		failAfter  int
		input      string
		expWritten int
	}{
		{"prefix write fails", 0, "EAX = 0\nEBX = 0\n", 0},
		{"first line fails", 1, "EAX = 0\nEBX = 0\n", 0},
		{"second prefix fails", 2, "EAX = 0\nEBX = 0\n", 8},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			sink := &failingSink{failAfter: spec.failAfter, err: expErr}
			w := NewPrefixWriter(sink, "> ")

			wrote, err := w.Write([]byte(spec.input))
			if err != expErr {
				t.Fatalf("expected error %v; got %v", expErr, err)
			}
			if wrote != spec.expWritten {
				t.Fatalf("expected %d bytes to be reported; got %d", spec.expWritten, wrote)
			}
		})
	}
}

// failingSink accepts failAfter writes and rejects everything after them.
type failingSink struct {
	failAfter int
	calls     int
	err       error
}

func (s *failingSink) Write(p []byte) (int, error) {
	s.calls++
	if s.calls > s.failAfter {
		return 0, s.err
	}
	return len(p), nil
}

package kfmt

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestPrintfEarlyBuffering(t *testing.T) {
	defer SetOutputSink(nil)

	// Drain anything buffered by earlier tests.
	SetOutputSink(io.Discard)
	SetOutputSink(nil)
	Printf("early %s %d\n", "boot", 42)

	var buf bytes.Buffer
	SetOutputSink(&buf)
	Printf("late %x", 0xf00)

	if exp, got := "early boot 42\nlate f00", buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%d-%t", 7, true)

	if exp, got := "7-true", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestLeveledLog(t *testing.T) {
	defer func(origLevel slog.Level) {
		SetLogLevel(origLevel)
		SetOutputSink(nil)
	}(LogLevel())

	var buf bytes.Buffer
	SetOutputSink(&buf)
	SetLogLevel(slog.LevelWarn)

	Infof("pmm", "suppressed %d", 1)
	Debugf("pmm", "suppressed %d", 2)
	Warnf("pmm", "double free of frame 0x%x", 0x100)
	Errorf("vmm", "cannot map 0x%x", 0x2000)

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("expected messages below the active level to be dropped; got:\n%s", out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines; got %d:\n%s", len(lines), out)
	}

	specs := []struct {
		line      string
		expSubstr []string
	}{
		{lines[0], []string{"level=WARN", `msg="double free of frame 0x100"`, "module=pmm"}},
		{lines[1], []string{"level=ERROR", `msg="cannot map 0x2000"`, "module=vmm"}},
	}

	for specIndex, spec := range specs {
		if strings.Contains(spec.line, "time=") {
			t.Errorf("[spec %d] expected time attribute to be omitted; got %q", specIndex, spec.line)
		}
		for _, exp := range spec.expSubstr {
			if !strings.Contains(spec.line, exp) {
				t.Errorf("[spec %d] expected line %q to contain %q", specIndex, spec.line, exp)
			}
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	specs := []struct {
		input    string
		expLevel slog.Level
		expOK    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}

	for specIndex, spec := range specs {
		level, ok := ParseLogLevel(spec.input)
		if level != spec.expLevel || ok != spec.expOK {
			t.Errorf("[spec %d] expected (%v, %t); got (%v, %t)", specIndex, spec.expLevel, spec.expOK, level, ok)
		}
	}
}

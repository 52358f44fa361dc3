package kfmt

import (
	"fmt"

	"tinykern/kernel"
	"tinykern/kernel/cpu"
)

const panicRule = "==================================="

// cpuHaltFn is mocked by tests.
var cpuHaltFn = cpu.Halt

// panicCause maps the value passed to Panic to the module that raised it and
// a human readable message.
func panicCause(e interface{}) (module, message string, ok bool) {
	switch t := e.(type) {
	case *kernel.Error:
		if t == nil {
			return "", "", false
		}
		return t.Module, t.Message, true
	case error:
		return "kernel", t.Error(), true
	case string:
		return "kernel", t, true
	case nil:
		return "", "", false
	default:
		return "kernel", fmt.Sprint(t), true
	}
}

// Panic prints a banner describing e to the console and halts the CPU. Calls
// to Panic never return.
func Panic(e interface{}) {
	Printf("\n%s\n", panicRule)
	if module, message, ok := panicCause(e); ok {
		Printf("fatal error in %s: %s\n", module, message)
	}
	Printf("kernel halted\n%s\n", panicRule)

	cpuHaltFn()
}

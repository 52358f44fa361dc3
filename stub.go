package main

import (
	"os"
	"runtime"
	"strings"
	"unsafe"

	"tinykern/kernel/kfmt"
	"tinykern/kernel/kmain"
	"tinykern/kernel/mm"
	"tinykern/kernel/sched"
	"tinykern/multiboot"
)

// ramSize is the amount of physical memory of the hosted machine.
const ramSize = 16 * mm.Mb

// main plays the role of the boot loader on a hosted machine: it prepares the
// multiboot information block and the physical memory, attaches standard
// output as the console and transfers control to kmain.Kmain. The command
// line arguments form the kernel command line.
func main() {
	info := multiboot.NewInfoBuilder().
		CmdLine(strings.Join(os.Args[1:], " ")).
		BootLoaderName("tinykern hosted loader").
		MemoryMap(
			multiboot.MemoryMapEntry{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
			multiboot.MemoryMapEntry{PhysAddress: 0xf0000, Length: 0x10000, Type: multiboot.MemReserved},
			multiboot.MemoryMapEntry{PhysAddress: uint64(mm.ReservedBoundary), Length: uint64(ramSize - mm.ReservedBoundary), Type: multiboot.MemAvailable},
		).
		Build()

	kfmt.SetOutputSink(os.Stdout)
	kmain.Kmain(uintptr(unsafe.Pointer(&info[0])), make([]byte, ramSize), initProgram)
	runtime.KeepAlive(info)
}

// initProgram runs as the first process. It forks a few workers, collects
// their exit status and shuts the machine down.
func initProgram() {
	const workers = 3

	for i := 1; i <= workers; i++ {
		code := i
		if _, err := sched.Fork(func() {
			sched.Yield()
			sched.Exit(code)
		}); err != nil {
			kfmt.Errorf("init", "fork failed: %s", err.Message)
			os.Exit(1)
		}
	}

	for i := 0; i < workers; i++ {
		info, err := sched.WaitChild(0, -1)
		if err != nil {
			kfmt.Errorf("init", "wait failed: %s", err.Message)
			os.Exit(1)
		}

		kfmt.Printf("pid %d exited with status %d\n", info.PID, info.Code)
		if err = sched.Reap(info.PID); err != nil {
			kfmt.Errorf("init", "reap failed: %s", err.Message)
		}
	}

	for _, p := range sched.Processes() {
		kfmt.Printf("pid %d (ppid %d) %s\n", p.PID, p.PPID, p.State)
	}
	os.Exit(0)
}

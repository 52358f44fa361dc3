// Package kmain contains the boot sequence of the kernel core.
package kmain

import (
	"log/slog"

	"tinykern/kernel"
	"tinykern/kernel/cpu"
	"tinykern/kernel/irq"
	"tinykern/kernel/kfmt"
	"tinykern/kernel/mm"
	"tinykern/kernel/mm/pmm"
	"tinykern/kernel/mm/vmm"
	"tinykern/kernel/process"
	"tinykern/kernel/sched"
	"tinykern/multiboot"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// bootConfig holds the settings read from the kernel command line.
type bootConfig struct {
	logLevel slog.Level
	preempt  bool
}

// parseBootConfig extracts the kernel settings from the command line
// key-value pairs. Unknown values are logged and ignored.
func parseBootConfig(cmdLine map[string]string) bootConfig {
	cfg := bootConfig{logLevel: kfmt.LogLevel(), preempt: true}

	if name, found := cmdLine["loglevel"]; found {
		if level, ok := kfmt.ParseLogLevel(name); ok {
			cfg.logLevel = level
		} else {
			kfmt.Warnf("kmain", "ignoring unknown log level %q", name)
		}
	}

	if cmdLine["preempt"] == "off" {
		cfg.preempt = false
	}

	return cfg
}

// Kmain boots the kernel core. It receives the address of the multiboot info
// payload provided by the boot loader and the memory that backs physical RAM.
//
// The installed memory size is taken from the highest available region of
// the memory map, bounded by the size of ram. Once the frame allocator, the
// identity-mapping layout and the scheduler are set up, the calling context
// becomes the first process and runs initProgram with interrupts enabled.
//
// Kmain is not expected to return. When initProgram returns, every dead
// process is reaped and the kernel panics.
func Kmain(multibootInfoPtr uintptr, ram []byte, initProgram func()) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	cfg := parseBootConfig(multiboot.GetBootCmdLine())
	kfmt.SetLogLevel(cfg.logLevel)
	if name := multiboot.GetBootLoaderName(); name != "" {
		kfmt.Infof("kmain", "booted by %s", name)
	}

	mm.SetPhysicalMemory(ram)
	installed := uintptr(len(ram))
	if end := multiboot.InstalledMemory(); end != 0 && end < uint64(installed) {
		installed = uintptr(end)
	}

	vmm.Reset()
	process.ResetTable()

	// pmm.Init panics on failure.
	if err := pmm.Init(installed); err != nil {
		return
	}

	var videoBase, videoSize uintptr
	if fb := multiboot.GetFramebufferInfo(); fb != nil {
		videoBase, videoSize = uintptr(fb.PhysAddr), uintptr(fb.Size())
	}
	vmm.SetLayout(installed, videoBase, videoSize)

	irq.Init()
	if _, err := sched.Init(); err != nil {
		panicFn(err)
		return
	}
	sched.SetPreemption(cfg.preempt)

	free, total := pmm.Stats()
	kfmt.Infof("kmain", "memory: %d/%d frames free, preemption enabled: %t", free, total, cfg.preempt)

	cpu.EnableInterrupts()
	if initProgram != nil {
		initProgram()
	}
	sched.ReapAll()

	panicFn(errKmainReturned)
}

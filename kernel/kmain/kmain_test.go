package kmain

import (
	"bytes"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"unsafe"

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

// bootInfo builds a multiboot2 information block with a command line, a boot
// loader name, a memory map with 4 MiB of available memory and an 800x600x24
// framebuffer at 0xfd000000.
func bootInfo(cmdLine string) []byte {
	return multiboot.NewInfoBuilder().
		CmdLine(cmdLine).
		BootLoaderName("GRUB 2.02").
		MemoryMap(
			multiboot.MemoryMapEntry{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
			multiboot.MemoryMapEntry{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
			multiboot.MemoryMapEntry{PhysAddress: 0x100000, Length: uint64(3 * mm.Mb), Type: multiboot.MemAvailable},
		).
		Framebuffer(multiboot.FramebufferInfo{PhysAddr: 0xfd000000, Pitch: 2400, Width: 800, Height: 600, Bpp: 24, Type: multiboot.FramebufferTypeRGB}).
		Build()
}

func TestParseBootConfig(t *testing.T) {
	defer kfmt.SetLogLevel(kfmt.LogLevel())
	kfmt.SetLogLevel(slog.LevelInfo)

	specs := []struct {
		cmdLine    string
		expLevel   slog.Level
		expPreempt bool
	}{
		{"", slog.LevelInfo, true},
		{"loglevel=debug", slog.LevelDebug, true},
		{"loglevel=error preempt=off", slog.LevelError, false},
		{"loglevel=chatty preempt=on", slog.LevelInfo, true},
	}

	for specIndex, spec := range specs {
		cfg := parseBootConfig(multiboot.ParseCmdLine(spec.cmdLine))
		if cfg.logLevel != spec.expLevel {
			t.Errorf("[spec %d] expected log level %s; got %s", specIndex, spec.expLevel, cfg.logLevel)
		}
		if cfg.preempt != spec.expPreempt {
			t.Errorf("[spec %d] expected preemption to be %t; got %t", specIndex, spec.expPreempt, cfg.preempt)
		}
	}
}

func TestKmain(t *testing.T) {
	defer func(origPanicFn func(interface{})) {
		panicFn = origPanicFn
	}(panicFn)
	defer kfmt.SetLogLevel(kfmt.LogLevel())
	defer kfmt.SetOutputSink(nil)

	t.Cleanup(func() {
		cpu.DisableInterrupts()
		irq.HandleInterrupt(irq.TimerVector, nil)
		process.ResetTable()
		vmm.Reset()
		cpu.SwitchPDT(0)
		mm.SetFrameAllocator(nil, nil)
		mm.SetPhysicalMemory(nil)
		multiboot.SetInfoPtr(0)
	})

	var panicked interface{}
	panicFn = func(e interface{}) {
		panicked = e
	}

	var console bytes.Buffer
	kfmt.SetOutputSink(&console)

	info := bootInfo("loglevel=debug preempt=off")
	ram := make([]byte, 8*mm.Mb)

	var (
		initPID    uint32
		childInfo  sched.ExitInfo
		waitErr    *kernel.Error
		preempting bool
		total      uint32
	)
	Kmain(uintptr(unsafe.Pointer(&info[0])), ram, func() {
		initPID = sched.Current().PID
		preempting = sched.PreemptionEnabled()
		_, total = pmm.Stats()

		if _, waitErr = sched.Fork(func() { sched.Exit(7) }); waitErr != nil {
			return
		}
		childInfo, waitErr = sched.WaitChild(0, -1)
	})
	runtime.KeepAlive(info)

	if panicked != errKmainReturned {
		t.Fatalf("expected Kmain to panic with errKmainReturned once the init program returns; got %v", panicked)
	}
	if waitErr != nil {
		t.Fatalf("unexpected error in init program: %v", waitErr)
	}

	if initPID != 1 {
		t.Errorf("expected the boot context to run as pid 1; got %d", initPID)
	}
	if childInfo.PID != 2 || childInfo.Code != 7 {
		t.Errorf("expected child pid 2 to exit with status 7; got %+v", childInfo)
	}
	if process.Lookup(2) != nil {
		t.Error("expected dead processes to be reaped before Kmain returns")
	}

	// 4 MiB of installed memory (bounded by the memory map, not the RAM
	// size) minus the low megabyte.
	if exp := uint32(768); total != exp {
		t.Errorf("expected the frame allocator to track %d frames; got %d", exp, total)
	}
	if preempting {
		t.Error("expected preemption to be disabled by the command line")
	}
	if kfmt.LogLevel() != slog.LevelDebug {
		t.Errorf("expected log level to be set from the command line; got %s", kfmt.LogLevel())
	}

	const lastRow = uintptr(0xfd000000 + 2400*599)
	if paddr, _, err := vmm.Active().GetMap(lastRow); err != nil || paddr != lastRow&^(mm.PageSize-1) {
		t.Errorf("expected the framebuffer to be identity mapped; got 0x%x, %v", paddr, err)
	}

	if !strings.Contains(console.String(), "booted by GRUB 2.02") {
		t.Errorf("expected boot loader name to be logged; got:\n%s", console.String())
	}
}

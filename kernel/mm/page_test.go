package mm

import (
	"testing"

	"tinykern/kernel"
)

func TestFrameAndPageAddressing(t *testing.T) {
	specs := []struct {
		descr   string
		addr    uintptr
		expIdx  uintptr
		expBase uintptr
	}{
		{"null page", 0x0, 0, 0x0},
		{"last byte of page 0", 0xfff, 0, 0x0},
		{"page aligned", 0x1000, 1, 0x1000},
		{"unaligned inside page 1", 0x101b, 1, 0x1000},
		{"reserved boundary", 0x100000, 256, 0x100000},
		{"user base", 0x80000000, 0x80000, 0x80000000},
		{"top of address space", 0xfffffff0, 0xfffff, 0xfffff000},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			frame := FrameFromAddress(spec.addr)
			if frame != Frame(spec.expIdx) {
				t.Fatalf("expected frame %d; got %d", spec.expIdx, frame)
			}
			if !frame.Valid() {
				t.Fatalf("expected frame %d to be valid", frame)
			}
			if got := frame.Address(); got != spec.expBase {
				t.Fatalf("expected frame address 0x%x; got 0x%x", spec.expBase, got)
			}

			page := PageFromAddress(spec.addr)
			if page != Page(spec.expIdx) {
				t.Fatalf("expected page %d; got %d", spec.expIdx, page)
			}
			if got := page.Address(); got != spec.expBase {
				t.Fatalf("expected page address 0x%x; got 0x%x", spec.expBase, got)
			}
		})
	}

	if InvalidFrame.Valid() {
		t.Error("expected InvalidFrame to be reported as invalid")
	}
}

func TestFrameAllocator(t *testing.T) {
	defer SetFrameAllocator(nil, nil)

	if _, err := AllocFrame(false); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory without a registered allocator; got %v", err)
	}
	if err := FreeFrame(Frame(1)); err != ErrInvalidAddress {
		t.Fatalf("expected ErrInvalidAddress without a registered allocator; got %v", err)
	}

	var (
		allocCalled bool
		zeroArg     bool
		freed       Frame
	)
	SetFrameAllocator(
		func(zero bool) (Frame, *kernel.Error) {
			allocCalled = true
			zeroArg = zero
			return FrameFromAddress(0xbadf00), nil
		},
		func(f Frame) *kernel.Error {
			freed = f
			return nil
		},
	)

	frame, err := AllocFrame(true)
	if err != nil {
		t.Fatal(err)
	}

	if !allocCalled || !zeroArg {
		t.Fatal("expected custom allocator to be invoked with zero=true after a call to AllocFrame")
	}

	if err = FreeFrame(frame); err != nil {
		t.Fatal(err)
	}

	if freed != frame {
		t.Fatalf("expected custom free function to receive frame %d; got %d", frame, freed)
	}
}

func TestPageAlign(t *testing.T) {
	specs := []struct {
		input      uintptr
		expAligned uintptr
	}{
		{0, 0},
		{1, PageSize},
		{PageSize, PageSize},
		{PageSize + 1, 2 * PageSize},
		{3*PageSize - 1, 3 * PageSize},
	}

	for specIndex, spec := range specs {
		if got := PageAlign(spec.input); got != spec.expAligned {
			t.Errorf("[spec %d] expected PageAlign(%d) to return %d; got %d", specIndex, spec.input, spec.expAligned, got)
		}
		if got := PageAligned(spec.expAligned); !got {
			t.Errorf("[spec %d] expected %d to be page aligned", specIndex, spec.expAligned)
		}
	}

	if PageAligned(PageSize + 8) {
		t.Error("expected unaligned address to be reported as such")
	}
}

func TestPhysicalMemory(t *testing.T) {
	defer SetPhysicalMemory(nil)

	ram := make([]byte, 4*PageSize)
	SetPhysicalMemory(ram)

	if exp, got := 4*PageSize, PhysicalMemorySize(); got != exp {
		t.Fatalf("expected physical memory size to be %d; got %d", exp, got)
	}

	b := FrameBytes(Frame(2))
	if len(b) != int(PageSize) {
		t.Fatalf("expected frame slice length to be %d; got %d", PageSize, len(b))
	}
	b[0] = 0xaa
	if ram[2*PageSize] != 0xaa {
		t.Fatal("expected frame slice to alias physical memory")
	}

	specs := []struct {
		addr, size uintptr
		expNil     bool
	}{
		{0, PageSize, false},
		{3 * PageSize, PageSize, false},
		{3 * PageSize, PageSize + 1, true},
		{4 * PageSize, 1, true},
		{0, 0, true},
	}

	for specIndex, spec := range specs {
		if got := PhysBytes(spec.addr, spec.size); (got == nil) != spec.expNil {
			t.Errorf("[spec %d] expected nil result to be %t", specIndex, spec.expNil)
		}
	}

	if FrameBytes(Frame(4)) != nil || FrameBytes(InvalidFrame) != nil {
		t.Error("expected frames outside RAM to have no backing bytes")
	}
}

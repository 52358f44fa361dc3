package irq

import (
	"io"

	"tinykern/kernel/cpu"
	"tinykern/kernel/kfmt"
)

// DumpRegs outputs the general purpose registers of r to w.
func DumpRegs(w io.Writer, r *cpu.Regs) {
	kfmt.Fprintf(w, "EAX = %08x EBX = %08x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %08x EDX = %08x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %08x EDI = %08x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "EBP = %08x\n", r.EBP)
}

// DumpFrame outputs the interrupt frame of f to w.
func DumpFrame(w io.Writer, f *cpu.Frame) {
	kfmt.Fprintf(w, "EIP = %08x CS  = %08x\n", f.EIP, f.CS)
	kfmt.Fprintf(w, "ESP = %08x SS  = %08x\n", f.ESP, f.SS)
	kfmt.Fprintf(w, "EFL = %08x\n", f.EFlags)
}

// DumpContext outputs a full register dump of ctx to the console, prefixing
// every line with prefix.
func DumpContext(prefix string, ctx *cpu.Context) {
	w := kfmt.NewPrefixWriter(kfmt.Console(), prefix)
	DumpRegs(w, &ctx.Regs)
	kfmt.Fprintf(w, "DS  = %08x ES  = %08x\n", ctx.DS, ctx.ES)
	kfmt.Fprintf(w, "FS  = %08x GS  = %08x\n", ctx.FS, ctx.GS)
	DumpFrame(w, &ctx.Frame)
}

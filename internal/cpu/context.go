/*
 * keos - Saved execution context
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package cpu holds the saved-register shapes shared by the interrupt
// dispatcher, the scheduler, and process control blocks. The assembly
// trampolines that actually push/pop these across a real ring transition
// are an external collaborator (spec §1); this package only defines the
// data they agree on.
package cpu

const (
	// EflagsBase is the reserved bit always set in EFLAGS.
	EflagsBase uint32 = 0x0002
	// EflagsInterruptEnable is IF, bit 9.
	EflagsInterruptEnable uint32 = 0x0200

	// KernelCS/KernelDS/UserCS/UserDS are the GDT selectors used to build
	// a fresh ring-3 context (spec §4.5).
	KernelCS uint16 = 0x08
	KernelDS uint16 = 0x10
	UserCS   uint16 = 0x1B
	UserDS   uint16 = 0x23
)

// GeneralRegisters is the set of general-purpose registers saved/restored
// across a context switch or trap.
type GeneralRegisters struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI           uint32
	EBP                uint32
}

// SegmentRegisters is the set of data segment selectors saved/restored.
// CS/SS are tracked on Context directly since they double as privilege
// indicators.
type SegmentRegisters struct {
	DS, ES, FS, GS uint16
}

// Context is the full interrupted-process state a PCB carries between
// timer ticks, mirroring the hardware-pushed interrupt frame on a ring
// transition (spec §9: a correct implementation must carry ESP/SS for
// user frames, not a partial register set).
type Context struct {
	General GeneralRegisters
	Segment SegmentRegisters
	EIP     uint32
	EFlags  uint32
	ESP     uint32
	SS      uint16
	CS      uint16
}

// NewUserContext builds the initial context for a freshly created process:
// entry at eip=0 of its own address space, ring-3 selectors, interrupts
// enabled, stack pointer at the top of its single 4 MiB frame minus one
// word (spec §4.5).
func NewUserContext(stackTop uint32) Context {
	return Context{
		EIP:    0,
		EFlags: EflagsBase | EflagsInterruptEnable,
		ESP:    stackTop - 4,
		SS:     UserDS,
		CS:     UserCS,
		Segment: SegmentRegisters{
			DS: UserDS,
			ES: UserDS,
			FS: UserDS,
			GS: UserDS,
		},
	}
}

// InterruptFrame is what the dispatcher receives for every vector: the
// vector number, the full general/segment register snapshot, and the
// hardware-pushed return frame (eip/cs/eflags, plus esp/ss only present
// when the trap crossed privilege levels).
type InterruptFrame struct {
	Vector  uint8
	General GeneralRegisters
	Segment SegmentRegisters

	EIP      uint32
	CS       uint16
	EFlags   uint32
	HasStack bool // true when ESP/SS were pushed (ring 3 -> ring 0 trap)
	ESP      uint32
	SS       uint16
}

// ToContext extracts a Context from an interrupt frame, the inverse of
// what the assembly trampoline would push when re-entering user mode.
func (f *InterruptFrame) ToContext() Context {
	ctx := Context{
		General: f.General,
		Segment: f.Segment,
		EIP:     f.EIP,
		EFlags:  f.EFlags,
		CS:      f.CS,
	}
	if f.HasStack {
		ctx.ESP = f.ESP
		ctx.SS = f.SS
	}
	return ctx
}

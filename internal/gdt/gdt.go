/*
 * keos - Global Descriptor Table and Task State Segment
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

// Package gdt models the statically initialized Global Descriptor Table
// and the kernel's singleton Task State Segment (spec §3 "Segment
// Descriptor / GDT", §4.1). Loading GDTR/TR via lgdt/ltr is an assembly
// trampoline concern (spec §1, external collaborator); this package owns
// the table contents and the TSS fields the trampoline reads.
package gdt

const (
	entryCount = 32 // Fixed table size; only the first 6 are populated.

	// Selectors, matching cpu.KernelCS etc.
	NullSelector       uint16 = 0x00
	KernelCodeSelector uint16 = 0x08
	KernelDataSelector uint16 = 0x10
	UserCodeSelector   uint16 = 0x1B // RPL 3 folded into the selector.
	UserDataSelector   uint16 = 0x23
	TSSSelector        uint16 = 0x28
)

// Descriptor is one 8-byte GDT entry, expanded into fields rather than
// the packed bitfield layout hardware expects — the assembly loader is
// responsible for packing these before lgdt.
type Descriptor struct {
	Base  uint32
	Limit uint32
	DPL   uint8 // 0 = ring 0, 3 = ring 3.
	Code  bool  // true = code segment, false = data segment.
	Valid bool
}

// TSS holds the fields relevant to ring transitions. A real TSS carries
// far more (IO bitmap, other segment selectors); only ss0/esp0 are ever
// read on a ring-3 -> ring-0 trap, so that's all this models (spec §4.1).
type TSS struct {
	SS0  uint16
	ESP0 uint32
}

// Table is the statically allocated, never-freed GDT plus its TSS.
type Table struct {
	entries [entryCount]Descriptor
	tss     TSS
}

// New builds the standard six descriptors: null, kernel code/data
// (DPL 0), user code/data (DPL 3), and the TSS descriptor. The TSS
// descriptor's Base is left at 0, not set to the TSS's address; the
// table's TSS is reached through TSS().
func New() *Table {
	t := &Table{}
	t.entries[0] = Descriptor{} // null
	t.entries[1] = Descriptor{Base: 0, Limit: 0xFFFFFFFF, DPL: 0, Code: true, Valid: true}
	t.entries[2] = Descriptor{Base: 0, Limit: 0xFFFFFFFF, DPL: 0, Code: false, Valid: true}
	t.entries[3] = Descriptor{Base: 0, Limit: 0xFFFFFFFF, DPL: 3, Code: true, Valid: true}
	t.entries[4] = Descriptor{Base: 0, Limit: 0xFFFFFFFF, DPL: 3, Code: false, Valid: true}
	t.tss = TSS{SS0: KernelDataSelector}
	t.entries[5] = Descriptor{Base: 0, Limit: uint32(unsafeSizeofTSS()), DPL: 0, Code: false, Valid: true}
	return t
}

// unsafeSizeofTSS stands in for sizeof(struct TSSEntry) in the original C;
// the exact byte count only matters to the assembly loader building the
// real descriptor, so a constant here is sufficient for the simulator.
func unsafeSizeofTSS() uint32 { return 104 }

// Descriptor returns the Nth GDT entry (0-indexed) for inspection/tests.
func (t *Table) Descriptor(n int) Descriptor {
	if n < 0 || n >= entryCount {
		return Descriptor{}
	}
	return t.entries[n]
}

// TSS returns a pointer to the kernel's singleton TSS.
func (t *Table) TSS() *TSS {
	return &t.tss
}

// SetKernelStack refreshes esp0, the stack the CPU switches to on the
// next ring-3 -> ring-0 trap. Must be called before every return to user
// mode (spec §5 "TSS esp0 must be refreshed before each ring-3 entry").
func (t *TSS) SetKernelStack(esp0 uint32) {
	t.ESP0 = esp0
}

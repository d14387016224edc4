/*
 * keos - Interrupt Descriptor Table and dispatcher
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

// Package idt owns the 256-entry interrupt descriptor table and the
// vector dispatcher that fans a trapped InterruptFrame out to the
// keyboard ISR, timer ISR, or syscall handler (spec §4.2, grounded on
// original_source/src/idt.c's initialize_idt/set_interrupt_gate and
// interrupt.c's main_interrupt_handler).
package idt

import (
	"fmt"

	"github.com/kaldera/keos/internal/cpu"
	"github.com/kaldera/keos/internal/gdt"
)

const (
	entryCount = 256

	// SyscallVector is int 0x30, the syscall gate ring-3 code traps
	// through. It is the first DPL-3 vector: New gives every vector from
	// 0x30 upward DPL 3.
	SyscallVector uint8 = 0x30
)

// Gate is one IDT entry, expanded rather than bit-packed; real segment
// selector/offset encoding is the concern of the assembly lidt trampoline.
type Gate struct {
	Handler   uintptr
	Selector  uint16
	DPL       uint8
	Present   bool
}

// Table is the 256-entry IDT. Vectors 0x00-0x2F are installed at DPL 0
// (only the CPU or kernel can invoke them); 0x30 and above are DPL 3,
// matching idt.c's loop boundary at ISR_STUB_TABLE_LIMIT.
type Table struct {
	gates [entryCount]Gate
}

// New builds an IDT with every vector pointing at handler (the single
// common entry stub in a real implementation); DPL is assigned per the
// idt.c boundary at vector 0x30.
func New(handler uintptr) *Table {
	t := &Table{}
	for i := 0; i < entryCount; i++ {
		dpl := uint8(0)
		if i >= 0x30 {
			dpl = 3
		}
		t.gates[i] = Gate{
			Handler:  handler,
			Selector: gdt.KernelCodeSelector,
			DPL:      dpl,
			Present:  true,
		}
	}
	return t
}

// Gate returns the Nth descriptor for inspection/tests.
func (t *Table) Gate(vector uint8) Gate {
	return t.gates[vector]
}

// KeyboardHandler, TimerHandler, and SyscallHandler are the three
// recognized ISRs a Dispatcher fans frames out to; any other vector
// falls through to Unhandled (main_interrupt_handler's switch has no
// default case, so an unrecognized vector is simply dropped there —
// this simulator logs it instead of silently discarding it).
type (
	KeyboardHandler func()
	TimerHandler    func(frame *cpu.InterruptFrame)
	SyscallHandler  func(frame *cpu.InterruptFrame)
	Unhandled       func(vector uint8)
)

// Dispatcher routes a trapped InterruptFrame to the matching handler,
// mirroring main_interrupt_handler's three-case switch on PIC-remapped
// IRQ vectors and the syscall gate.
type Dispatcher struct {
	KeyboardVector uint8
	TimerVector    uint8

	OnKeyboard KeyboardHandler
	OnTimer    TimerHandler
	OnSyscall  SyscallHandler
	OnUnhandled Unhandled
}

// Dispatch routes frame by its Vector field.
func (d *Dispatcher) Dispatch(frame *cpu.InterruptFrame) {
	switch frame.Vector {
	case d.KeyboardVector:
		if d.OnKeyboard != nil {
			d.OnKeyboard()
		}
	case d.TimerVector:
		if d.OnTimer != nil {
			d.OnTimer(frame)
		}
	case SyscallVector:
		if d.OnSyscall != nil {
			d.OnSyscall(frame)
		}
	default:
		if d.OnUnhandled != nil {
			d.OnUnhandled(frame.Vector)
		}
	}
}

// String is a debug helper for logging unrecognized vectors.
func (g Gate) String() string {
	return fmt.Sprintf("handler=%#x selector=%#x dpl=%d present=%t", g.Handler, g.Selector, g.DPL, g.Present)
}

/*
 * keos - Kernel boot and run loop
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

// Package kernel wires the GDT, IDT, PIC, paging manager, filesystem
// driver, process manager, scheduler, syscall dispatcher and console
// into one bootable whole, and runs the select-over-done-channel
// event loop that stands in for the interrupt-driven main loop of a
// real kernel (spec §2, §5 "Concurrency & Resource Model"). Grounded
// directly on emu/core/core.go's run loop: a done channel for
// shutdown, a sync.WaitGroup for graceful stop, and a packet channel
// standing in for the hardware interrupts this simulator delivers as
// Go values instead of real traps.
package kernel

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/console"
	"github.com/kaldera/keos/internal/cpu"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/gdt"
	"github.com/kaldera/keos/internal/idt"
	"github.com/kaldera/keos/internal/paging"
	"github.com/kaldera/keos/internal/pic"
	"github.com/kaldera/keos/internal/ports"
	"github.com/kaldera/keos/internal/process"
	"github.com/kaldera/keos/internal/scheduler"
	"github.com/kaldera/keos/internal/syscall"
)

// Event is one interrupt-equivalent value delivered into the kernel's
// run loop: a timer tick, a keyboard scancode, or a syscall trap.
// Real hardware interrupts preempt the CPU asynchronously; this
// simulator instead serializes them through a channel, the same
// substitution emu/core.core makes for telnet/master packets.
type Event struct {
	Timer    bool
	Keyboard *byte
	Syscall  *SyscallTrap
}

// SyscallTrap carries one simulated int 0x30 trap: the syscall number,
// its arguments, and a channel the caller blocks on for the result
// (mirroring a real trap's synchronous return to the calling ring-3
// process).
type SyscallTrap struct {
	Number syscall.Number
	Args   syscall.Args
	Result chan syscall.Result
}

// Kernel bundles every subsystem and the channel-driven run loop that
// ties them together.
type Kernel struct {
	GDT      *gdt.Table
	IDT      *idt.Table
	IRQ      *idt.Dispatcher
	PIC      *pic.Pair
	Bus      *ports.Bus
	Pager    *paging.Manager
	FS       *fat32.Driver
	Procs    *process.Manager
	Sched    *scheduler.Scheduler
	Console  *console.Console
	Syscalls *syscall.Dispatcher

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	events   chan Event
	lastKey  byte
}

// kernelStackTop is the esp0 written into the TSS before each return to
// user mode: the top word of the kernel's higher-half 4 MiB frame.
const kernelStackTop = paging.KernelVirtualBase + 4*1024*1024 - 4

// Boot constructs a Kernel over dev: it formats-or-mounts the
// filesystem, builds the GDT/IDT/PIC triad, the paging manager, the
// process table, the scheduler, and the console, then wires the
// syscall dispatcher over all of it (spec §4.1-§4.6).
func Boot(dev blockdev.Device, gmtOffsetHours int) (*Kernel, error) {
	fs, err := fat32.New(dev)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}

	bus := ports.NewBus()
	gdtTable := gdt.New()
	picPair := pic.New(bus)
	picPair.Remap()

	pager := paging.NewManager()
	procs := process.NewManager(pager, fs)
	con := console.New(bus, gmtOffsetHours)

	sched := scheduler.New(procs, pager, bus, picPair)

	dispatch := &syscall.Dispatcher{FS: fs, Procs: procs, Console: con}

	idtTable := idt.New(0)

	k := &Kernel{
		GDT:      gdtTable,
		IDT:      idtTable,
		PIC:      picPair,
		IRQ: &idt.Dispatcher{
			TimerVector:    pic.PIC1Offset + pic.IRQTimer,
			KeyboardVector: pic.PIC1Offset + pic.IRQKeyboard,
		},
		Bus:      bus,
		Pager:    pager,
		FS:       fs,
		Procs:    procs,
		Sched:    sched,
		Console:  con,
		Syscalls: dispatch,
		done:     make(chan struct{}),
		events:   make(chan Event, 16),
	}

	// IRQ0: capture the interrupted context first, then ack and advance
	// the tick event list; the armed tick callback (Run) performs the
	// actual address-space switch (spec §4.2 ordering invariant).
	k.IRQ.OnTimer = func(frame *cpu.InterruptFrame) {
		k.Sched.SaveContext(frame)
		k.Sched.Tick()
	}
	// IRQ1: decode the scancode, hand the character to the keyboard
	// rendezvous, and ack. Break codes and unmapped keys still get the
	// EOI; the controller does not care whether the byte meant anything.
	k.IRQ.OnKeyboard = func() {
		if ch, ok := console.ScancodeToASCII(k.lastKey); ok {
			k.Console.Keyboard.ISR(ch)
		}
		k.PIC.EOI(pic.IRQKeyboard)
	}
	// CPU exceptions (vectors below 0x20) are not classified further
	// (spec §7); halting cleanly stands in for the triple fault real
	// hardware would take. Anything else is a spurious vector and is
	// dropped.
	k.IRQ.OnUnhandled = func(vector uint8) {
		if vector < pic.PIC1Offset {
			k.Halt(fmt.Sprintf("unclassified CPU exception %#x", vector))
			return
		}
		slog.Debug("kernel: unhandled interrupt vector", "vector", vector)
	}
	return k, nil
}

// Run starts the kernel's event loop: it arms the timer interrupt and
// then services timer, keyboard, and syscall events until Stop is
// called. Grounded on core.Start's running/select shape, replacing
// the CPU-cycle branch with a scheduler tick since this kernel has no
// instruction-level CPU model to step.
func (k *Kernel) Run() {
	k.wg.Add(1)
	defer k.wg.Done()

	k.Sched.ActivateTimerInterrupt()
	k.PIC.Unmask(pic.IRQKeyboard)
	k.Sched.ArmTick(1, func() {
		if k.Sched.SwitchToNext() != nil {
			k.GDT.TSS().SetKernelStack(kernelStackTop)
		}
	})

	for {
		select {
		case <-k.done:
			slog.Info("kernel: shutdown")
			return
		case ev := <-k.events:
			k.handleEvent(ev)
		}
	}
}

func (k *Kernel) handleEvent(ev Event) {
	switch {
	case ev.Timer:
		k.IRQ.Dispatch(k.Sched.TrapFrame(pic.PIC1Offset + pic.IRQTimer))
	case ev.Keyboard != nil:
		k.lastKey = *ev.Keyboard
		k.IRQ.Dispatch(&cpu.InterruptFrame{Vector: pic.PIC1Offset + pic.IRQKeyboard, CS: cpu.KernelCS})
	case ev.Syscall != nil:
		result := k.Syscalls.Dispatch(ev.Syscall.Number, ev.Syscall.Args)
		ev.Syscall.Result <- result
	}
}

// PostTimerTick enqueues one timer-interrupt event.
func (k *Kernel) PostTimerTick() {
	k.events <- Event{Timer: true}
}

// PostKeyboard enqueues one raw PS/2 set-1 scancode as a keyboard
// interrupt; the IRQ1 handler decodes it.
func (k *Kernel) PostKeyboard(scancode byte) {
	k.events <- Event{Keyboard: &scancode}
}

// Syscall enqueues a trap and blocks for its result, the simulated
// equivalent of `int 0x30` returning to the caller synchronously.
func (k *Kernel) Syscall(number syscall.Number, args syscall.Args) syscall.Result {
	result := make(chan syscall.Result, 1)
	k.events <- Event{Syscall: &SyscallTrap{Number: number, Args: args, Result: result}}
	return <-result
}

// Dispatch traps number/args through the run loop, satisfying the
// shell's dispatcher contract: every shell syscall serializes with timer
// and keyboard interrupts the way a real int 0x30 would, rather than
// racing the kernel's subsystems from the shell goroutine.
func (k *Kernel) Dispatch(number syscall.Number, args syscall.Args) syscall.Result {
	return k.Syscall(number, args)
}

// Halt records an unrecoverable fault and signals the run loop to exit
// without waiting for it; a faulted machine has nothing left to drain.
func (k *Kernel) Halt(reason string) {
	slog.Error("kernel: halt", "reason", reason)
	k.stopOnce.Do(func() { close(k.done) })
}

// Stop signals the run loop to exit and waits up to one second for it
// to drain, matching core.Stop's timeout guard.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
	finished := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		slog.Warn("kernel: timed out waiting for run loop to stop")
	}
}

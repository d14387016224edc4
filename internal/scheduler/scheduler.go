/*
 * keos - PIT-driven round-robin scheduler
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

// Package scheduler drives round-robin process switching off the PIT's
// 1 kHz tick (spec §4.6, grounded on original_source/src/scheduler.c).
package scheduler

import (
	"github.com/kaldera/keos/internal/cpu"
	"github.com/kaldera/keos/internal/paging"
	"github.com/kaldera/keos/internal/pic"
	"github.com/kaldera/keos/internal/ports"
	"github.com/kaldera/keos/internal/process"
)

const (
	pitMaxFrequency   = 1193182
	pitTimerFrequency = 1000
	pitTimerCounter   = pitMaxFrequency / pitTimerFrequency

	pitCommandPort = 0x43
	pitChannel0    = 0x40

	// pitCommandValue: binary mode, square wave (mode 3), lo/hi byte
	// access, channel 0 — the exact byte activate_timer_interrupt writes.
	pitCommandValue = 0b00_11_011_0
)

// Scheduler is the process-global current-index state plus the PIT tick
// event, wired onto the port bus and PIC (spec §3 "Scheduler state").
type Scheduler struct {
	procs   *process.Manager
	paging  *paging.Manager
	bus     *ports.Bus
	pic     *pic.Pair
	events  eventList
	current int
}

// New builds a Scheduler over procs/paging, with the PIT and master PIC
// reached through bus.
func New(procs *process.Manager, pageManager *paging.Manager, bus *ports.Bus, p *pic.Pair) *Scheduler {
	return &Scheduler{procs: procs, paging: pageManager, bus: bus, pic: p, current: -1}
}

// ActivateTimerInterrupt programs the PIT for a 1 kHz square wave and
// unmasks IRQ0, mirroring activate_timer_interrupt.
func (s *Scheduler) ActivateTimerInterrupt() {
	s.bus.Out(pitCommandPort, pitCommandValue)
	s.bus.Out(pitChannel0, byte(pitTimerCounter&0xFF))
	s.bus.Out(pitChannel0, byte((pitTimerCounter>>8)&0xFF))
	s.pic.Unmask(pic.IRQTimer)
}

// nextIndex computes (current + 1) mod activeCount over the occupied
// PCB slots, matching get_next_process_index — but indexed into the
// live slice of occupied PCBs rather than raw array position, so
// terminated (freed) slots are skipped without special-casing them.
func (s *Scheduler) nextIndex(active []*process.PCB) int {
	if len(active) == 0 {
		return -1
	}
	return (s.current + 1) % len(active)
}

// TrapFrame renders the currently running process's saved state as the
// interrupt frame hardware would push when the PIT preempts it in ring 3:
// eip/cs/eflags plus esp/ss, since the trap crosses privilege levels.
// With no process running it returns a bare ring-0 frame (no stack
// fields pushed), which SaveContext then ignores.
func (s *Scheduler) TrapFrame(vector uint8) *cpu.InterruptFrame {
	active := s.procs.All()
	if s.current < 0 || s.current >= len(active) {
		return &cpu.InterruptFrame{Vector: vector, CS: cpu.KernelCS}
	}
	ctx := active[s.current].Context
	return &cpu.InterruptFrame{
		Vector:   vector,
		General:  ctx.General,
		Segment:  ctx.Segment,
		EIP:      ctx.EIP,
		CS:       ctx.CS,
		EFlags:   ctx.EFlags,
		HasStack: true,
		ESP:      ctx.ESP,
		SS:       ctx.SS,
	}
}

// SaveContext writes frame's register state into the currently running
// PCB, the IRQ0 handler's first action before any scheduling decision
// (spec §4.2 "context capture must occur before any kernel code mutates
// registers the scheduler will restore").
func (s *Scheduler) SaveContext(frame *cpu.InterruptFrame) {
	active := s.procs.All()
	if s.current < 0 || s.current >= len(active) {
		return
	}
	active[s.current].Context = frame.ToContext()
}

// SwitchToNext advances to the next occupied PCB round-robin and
// installs its page directory as current, the software stand-in for
// switching cr3 plus the assembly process_context_switch trampoline
// (spec §4.6). It returns the PCB now selected to run, or nil if there
// are no active processes.
func (s *Scheduler) SwitchToNext() *process.PCB {
	active := s.procs.All()
	idx := s.nextIndex(active)
	if idx < 0 {
		return nil
	}
	for _, p := range active {
		if p.State == process.StateRunning {
			p.State = process.StateReady
		}
	}
	s.current = idx
	next := active[idx]
	next.State = process.StateRunning
	paging.UsePageDirectory(next.Directory)
	return next
}

// Tick fires once per PIT interrupt: ack the timer IRQ and advance the
// tick event, which is what ultimately invokes SwitchToNext on the next
// full cycle boundary.
func (s *Scheduler) Tick() {
	s.pic.EOI(pic.IRQTimer)
	s.events.advance()
}

// ArmTick schedules the recurring tick callback, re-arming itself every
// time it fires (spec §4.6 "no preemption of kernel code... the
// dispatcher only switches address spaces when the interrupted context
// was a user context" is enforced by the caller deciding whether to
// invoke SwitchToNext, not by this event).
func (s *Scheduler) ArmTick(everyTicks int, cb func()) {
	var rearm callback
	rearm = func() {
		cb()
		s.events.add(everyTicks, rearm)
	}
	s.events.add(everyTicks, rearm)
}

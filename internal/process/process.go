/*
 * keos - Process control blocks and lifecycle
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

// Package process owns the process-control-block array, process
// creation from a filesystem request, destruction, and PID allocation
// (spec §4.5, grounded on original_source/src/process.c).
package process

import (
	"fmt"

	"github.com/kaldera/keos/internal/cpu"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/paging"
)

const (
	// CountMax bounds the PCB table; spec §8 scenario 6 exercises this
	// limit directly.
	CountMax = 16

	// FrameSize is one page frame, matching paging's 4 MiB PSE frame.
	FrameSize = 4 * 1024 * 1024

	// PageFrameCountMax bounds how many frames a single process may hold.
	PageFrameCountMax = 8

	// KernelVirtualBase mirrors paging.KernelVirtualBase; an entrypoint
	// at or above it is rejected (spec §4.5).
	KernelVirtualBase = paging.KernelVirtualBase
)

// State is a PCB's lifecycle state.
type State int

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Create failure codes, matching the original's PROCESS_CREATE_FAIL_*
// family (spec §4.5, §8 scenario 6).
const (
	CreateSuccess = iota
	CreateFailMaxProcessExceeded
	CreateFailInvalidEntrypoint
	CreateFailNotEnoughMemory
	CreateFailFSReadFailure
)

// PCB is one process control block: identity, lifecycle state, saved
// context, owning page directory, and the virtual addresses it has
// frames mapped at (spec §3 "Process Control Block").
type PCB struct {
	PID     uint32
	Name    string
	State   State
	Context cpu.Context

	Directory        *paging.Directory
	VirtualAddrsUsed []uint32
}

func (p *PCB) free() bool {
	return p.PID == 0
}

// Manager is the process-global PCB table plus the active-process count
// (spec §3 "Process Control Block" invariants).
type Manager struct {
	list              [CountMax]PCB
	activeCount       int
	nextPID           uint32
	pageManager       *paging.Manager
	fs                *fat32.Driver
}

// NewManager builds an empty PCB table bound to a page manager and
// filesystem driver, the collaborators Create reads frames and the
// executable from.
func NewManager(pageManager *paging.Manager, fs *fat32.Driver) *Manager {
	return &Manager{nextPID: 1, pageManager: pageManager, fs: fs}
}

func (m *Manager) generatePID() uint32 {
	pid := m.nextPID
	m.nextPID++
	return pid
}

func (m *Manager) inactiveIndex() int {
	for i := range m.list {
		if m.list[i].free() {
			return i
		}
	}
	return -1
}

// ByPID returns the PCB owning pid, or nil. PID 0 marks a free slot and
// never resolves.
func (m *Manager) ByPID(pid uint32) *PCB {
	if pid == 0 {
		return nil
	}
	for i := range m.list {
		if m.list[i].PID == pid {
			return &m.list[i]
		}
	}
	return nil
}

// ActiveCount returns the number of occupied PCB slots.
func (m *Manager) ActiveCount() int {
	return m.activeCount
}

// All returns every occupied PCB, in table order, for Ps and the
// scheduler's round-robin.
func (m *Manager) All() []*PCB {
	var out []*PCB
	for i := range m.list {
		if !m.list[i].free() {
			out = append(out, &m.list[i])
		}
	}
	return out
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Create reads request.Name/Ext from req's parent directory, builds a
// fresh address space, and adds a READY process for it. The bytes read
// are not kept: frames carry no memory contents in this model. It
// validates, in order: the active-process cap, that the entrypoint lies
// below KernelVirtualBase, and that enough frames are available and
// within PageFrameCountMax (spec §4.5, §8 scenario 6).
func (m *Manager) Create(req fat32.Request, name string, entrypoint uint32, execSize uint32) (uint32, int) {
	if m.activeCount >= CountMax {
		return 0, CreateFailMaxProcessExceeded
	}
	if entrypoint >= KernelVirtualBase {
		return 0, CreateFailInvalidEntrypoint
	}

	frameCount := ceilDiv(execSize+FrameSize, FrameSize)
	if !m.pageManager.AllocateCheck(int(frameCount)) || frameCount > PageFrameCountMax {
		return 0, CreateFailNotEnoughMemory
	}

	idx := m.inactiveIndex()
	if idx == -1 {
		return 0, CreateFailMaxProcessExceeded
	}

	dir, ok := m.pageManager.NewDirectory()
	if !ok {
		return 0, CreateFailNotEnoughMemory
	}

	buf := make([]byte, execSize)
	req.Buf = buf
	req.BufferSize = execSize
	if rc := m.fs.Read(req); rc != fat32.Ok {
		m.pageManager.FreeDirectory(dir)
		return 0, CreateFailFSReadFailure
	}

	pcb := &m.list[idx]
	*pcb = PCB{
		PID:       m.generatePID(),
		Name:      name,
		State:     StateReady,
		Context:   cpu.NewUserContext(FrameSize),
		Directory: dir,
	}

	// The user image and stack live at the bottom of the address space:
	// frame 0 maps virtual 0 (entrypoint at eip=0, stack at 4 MiB - 4),
	// further frames follow contiguously, all below KernelVirtualBase.
	for i := uint32(0); i < frameCount; i++ {
		vaddr := i * FrameSize
		if _, ok := m.pageManager.AllocateUserFrame(dir, vaddr); !ok {
			m.pageManager.FreeDirectory(dir)
			*pcb = PCB{}
			return 0, CreateFailNotEnoughMemory
		}
		pcb.VirtualAddrsUsed = append(pcb.VirtualAddrsUsed, vaddr)
	}

	m.activeCount++
	return pcb.PID, CreateSuccess
}

// Destroy frees pid's page directory (and every frame it mapped) and
// returns its PCB slot to the free pool (spec §4.5).
func (m *Manager) Destroy(pid uint32) bool {
	pcb := m.ByPID(pid)
	if pcb == nil {
		return false
	}
	for _, vaddr := range pcb.VirtualAddrsUsed {
		m.pageManager.FreeUserFrame(pcb.Directory, vaddr)
	}
	m.pageManager.FreeDirectory(pcb.Directory)
	*pcb = PCB{State: StateTerminated}
	m.activeCount--
	return true
}

// Ps renders a "name (PID: n) - STATE" line per occupied PCB, matching
// the original's ps() output shape.
func (m *Manager) Ps() string {
	var out string
	for i := range m.list {
		if m.list[i].free() {
			continue
		}
		out += fmt.Sprintf("%s (PID: %d) - %s\n", m.list[i].Name, m.list[i].PID, m.list[i].State)
	}
	return out
}

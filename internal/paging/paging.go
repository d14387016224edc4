/*
 * keos - PSE 4 MiB paging
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

// Package paging models one-level PSE (4 MiB page) translation: a pool
// of reusable page directories, each mapping virtual address 0 to a
// process's own 4 MiB user frame and virtual 0xC0000000 to the kernel's
// identity-mapped frame, plus a bitmap allocator over a fixed physical
// frame pool (spec §4.4, grounded on original_source/src/paging.c).
package paging

import "fmt"

const (
	// PageEntryCount is the number of entries in one page directory
	// (4 GiB address space / 4 MiB per entry).
	PageEntryCount = 1024

	// FrameCount is the number of allocatable 4 MiB user frames. Frame 0
	// is reserved for the kernel's own identity mapping at boot and is
	// marked used up front, matching paging.c's page_frame_map[0]=true.
	FrameCount = 64

	// DirectoryCount bounds how many concurrent page directories (one
	// per live process) the pool can hand out.
	DirectoryCount = 32

	// KernelVirtualBase is where the kernel's higher half begins;
	// directory entry 0x300 (768) maps it, matching
	// KERNEL_VIRTUAL_ADDRESS_BASE / 0xC0000000 in the original.
	KernelVirtualBase uint32 = 0xC0000000

	kernelDirEntry = 0x300
)

// EntryFlag mirrors the PSE page directory entry's control bits.
type EntryFlag struct {
	Present    bool
	Write      bool
	User       bool
	PageSize4M bool
}

// Entry is one page directory slot: control bits plus the physical
// frame number it maps (address bits 31:22).
type Entry struct {
	Flag  EntryFlag
	Frame uint32
}

// Directory is one process's page directory: 1024 4 MiB entries.
type Directory struct {
	Table [PageEntryCount]Entry
	inUse bool
}

// Manager owns the frame bitmap and the directory pool, the paging
// subsystem's singleton state (mirrors page_manager_state and
// page_directory_list/page_directory_manager as one cohesive type
// rather than three free-floating package globals).
type Manager struct {
	frameUsed    [FrameCount]bool
	freeFrames   int
	directories  [DirectoryCount]Directory
	kernelEntry0 Entry
	kernelEntryH Entry
}

// NewManager builds a Manager with frame 0 reserved for the kernel and
// the kernel's two directory entries (identity map at 0, higher half at
// 0x300) precomputed for NewDirectory to copy.
func NewManager() *Manager {
	m := &Manager{freeFrames: FrameCount - 1}
	m.frameUsed[0] = true
	kernelFlag := EntryFlag{Present: true, Write: true, PageSize4M: true}
	m.kernelEntry0 = Entry{Flag: kernelFlag, Frame: 0}
	m.kernelEntryH = Entry{Flag: kernelFlag, Frame: 0}
	return m
}

// AllocateCheck reports whether amount more frames are available, the
// counterpart of paging_allocate_check.
func (m *Manager) AllocateCheck(amount int) bool {
	return amount <= m.freeFrames
}

// AllocateUserFrame finds the first free physical frame via a bitmap
// scan, marks it used, and maps it at virtualAddr in dir with user-bit
// set. This fixes the Open Question in original_source/src/paging.c: the
// original used the free-frame *count* directly as a frame index and as
// the bitmap slot to mark, which is only ever correct while frames are
// freed in strict LIFO order. Scanning for the first false slot is
// correct under any allocation/free interleaving.
func (m *Manager) AllocateUserFrame(dir *Directory, virtualAddr uint32) (frame uint32, ok bool) {
	if !m.AllocateCheck(1) {
		return 0, false
	}
	for i, used := range m.frameUsed {
		if used {
			continue
		}
		m.frameUsed[i] = true
		m.freeFrames--
		frame = uint32(i)
		m.mapEntry(dir, frame, virtualAddr, EntryFlag{Present: true, Write: true, User: true, PageSize4M: true})
		return frame, true
	}
	return 0, false
}

// FreeUserFrame clears the mapping at virtualAddr in dir and frees the
// specific physical frame that mapping held. This is the other half of
// the paging.c Open Question fix: the original cleared
// page_frame_map[PAGE_FRAME_MAX_COUNT - free_page_frame_count], the most
// recently computed index rather than the frame actually backing
// virtualAddr, so freeing any entry but the last-allocated one corrupted
// the bitmap. Reading the frame out of the directory entry before
// clearing it is always correct.
func (m *Manager) FreeUserFrame(dir *Directory, virtualAddr uint32) bool {
	idx := dirIndex(virtualAddr)
	entry := dir.Table[idx]
	if !entry.Flag.Present {
		return false
	}
	frame := entry.Frame
	dir.Table[idx] = Entry{}
	if int(frame) < FrameCount && m.frameUsed[frame] {
		m.frameUsed[frame] = false
		m.freeFrames++
	}
	return true
}

func (m *Manager) mapEntry(dir *Directory, frame uint32, virtualAddr uint32, flag EntryFlag) {
	idx := dirIndex(virtualAddr)
	dir.Table[idx] = Entry{Flag: flag, Frame: frame}
}

func dirIndex(virtualAddr uint32) uint32 {
	return (virtualAddr >> 22) & 0x3FF
}

// NewDirectory hands out an unused Directory from the pool, pre-mapped
// with the kernel's identity and higher-half entries, or reports false
// if the pool is exhausted.
func (m *Manager) NewDirectory() (*Directory, bool) {
	for i := range m.directories {
		d := &m.directories[i]
		if d.inUse {
			continue
		}
		*d = Directory{inUse: true}
		d.Table[0] = m.kernelEntry0
		d.Table[kernelDirEntry] = m.kernelEntryH
		return d, true
	}
	return nil, false
}

// FreeDirectory returns dir to the pool, clearing every entry. It does
// not free any user frames still mapped in dir — callers must call
// FreeUserFrame for each live mapping first (process.Destroy does this).
func (m *Manager) FreeDirectory(dir *Directory) bool {
	for i := range m.directories {
		if &m.directories[i] != dir {
			continue
		}
		m.directories[i] = Directory{}
		return true
	}
	return false
}

// String renders frame utilization for debug logging.
func (m *Manager) String() string {
	return fmt.Sprintf("frames: %d/%d free", m.freeFrames, FrameCount)
}

// current is the directory the simulated CR3 currently points at, the
// software stand-in for paging_use_page_directory/
// paging_get_current_page_directory_addr (a real mov-to-cr3 has no
// meaning outside actual hardware; what matters for the scheduler and
// syscall dispatch is which directory is "active").
var current *Directory

// UsePageDirectory makes dir the active directory, the simulated
// equivalent of loading CR3 on a context switch.
func UsePageDirectory(dir *Directory) {
	current = dir
}

// CurrentDirectory returns the directory UsePageDirectory last installed.
func CurrentDirectory() *Directory {
	return current
}

/*
 * keos - Block device facade
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

// Package blockdev is the façade the filesystem driver builds on:
// read_blocks/write_blocks of fixed 512-byte sectors (spec §6). The
// kernel's own build targets ATA PIO (outside this simulator's scope,
// an external collaborator); MemDevice backs an in-process disk image
// for tests, and FileDevice mmaps a host file for the image-builder
// tool, grounded on hanwen-go-fuse's use of golang.org/x/sys/unix mmap.
package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BlockSize is the fixed sector size the filesystem driver assumes.
const BlockSize = 512

// Device is the block-level contract the FAT32 driver is written
// against; ATA PIO, a flat byte slice, and an mmap'd file all satisfy it.
type Device interface {
	ReadBlocks(buf []byte, lba uint32, count uint32) error
	WriteBlocks(buf []byte, lba uint32, count uint32) error
	BlockCount() uint32
}

// MemDevice is an in-memory disk image, used by tests.
type MemDevice struct {
	data []byte
}

// NewMemDevice allocates a zeroed image of blocks blocks.
func NewMemDevice(blocks uint32) *MemDevice {
	return &MemDevice{data: make([]byte, int(blocks)*BlockSize)}
}

func (m *MemDevice) BlockCount() uint32 {
	return uint32(len(m.data) / BlockSize)
}

func (m *MemDevice) ReadBlocks(buf []byte, lba uint32, count uint32) error {
	start, end, err := m.span(lba, count, len(buf))
	if err != nil {
		return err
	}
	copy(buf, m.data[start:end])
	return nil
}

func (m *MemDevice) WriteBlocks(buf []byte, lba uint32, count uint32) error {
	start, end, err := m.span(lba, count, len(buf))
	if err != nil {
		return err
	}
	copy(m.data[start:end], buf)
	return nil
}

func (m *MemDevice) span(lba, count uint32, bufLen int) (start, end int, err error) {
	start = int(lba) * BlockSize
	end = start + int(count)*BlockSize
	if end > len(m.data) {
		return 0, 0, fmt.Errorf("blockdev: access [%d,%d) exceeds image size %d", start, end, len(m.data))
	}
	if bufLen < int(count)*BlockSize {
		return 0, 0, fmt.Errorf("blockdev: buffer too small for %d blocks", count)
	}
	return start, end, nil
}

// FileDevice mmaps a host file as the disk image backing store, the
// image-builder's view of the same device the kernel sees through ATA.
type FileDevice struct {
	f    *os.File
	data []byte
}

// OpenFileDevice mmaps path, which must already be sized to a whole
// number of blocks.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size%BlockSize != 0 {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s size %d is not a multiple of %d", path, size, BlockSize)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, data: data}, nil
}

func (d *FileDevice) BlockCount() uint32 {
	return uint32(len(d.data) / BlockSize)
}

func (d *FileDevice) ReadBlocks(buf []byte, lba uint32, count uint32) error {
	start := int(lba) * BlockSize
	end := start + int(count)*BlockSize
	if end > len(d.data) || len(buf) < int(count)*BlockSize {
		return fmt.Errorf("blockdev: access [%d,%d) exceeds image size %d", start, end, len(d.data))
	}
	copy(buf, d.data[start:end])
	return nil
}

func (d *FileDevice) WriteBlocks(buf []byte, lba uint32, count uint32) error {
	start := int(lba) * BlockSize
	end := start + int(count)*BlockSize
	if end > len(d.data) || len(buf) < int(count)*BlockSize {
		return fmt.Errorf("blockdev: access [%d,%d) exceeds image size %d", start, end, len(d.data))
	}
	copy(d.data[start:end], buf)
	return nil
}

// Sync flushes the mapped pages back to the underlying file.
func (d *FileDevice) Sync() error {
	return unix.Msync(d.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file.
func (d *FileDevice) Close() error {
	if err := unix.Munmap(d.data); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}

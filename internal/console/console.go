/*
 * keos - Framebuffer, keyboard, and RTC collaborators
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

// Package console models the three hardware collaborators spec §1 treats
// as external: the 80x25 text-mode framebuffer, the PS/2 keyboard
// state machine, and the CMOS/RTC clock (spec §6). They are simulated
// here in software rather than bound to real VGA/PS2/CMOS hardware, the
// same "port handler as software model" idiom internal/pic and
// internal/idt use.
package console

import (
	"sync"
	"time"

	"github.com/kaldera/keos/internal/ports"
)

const (
	Columns = 80
	Rows    = 25

	vgaIndexPort = 0x3D4
	vgaDataPort  = 0x3D5
	cursorHigh   = 0x0E
	cursorLow    = 0x0F

	cmosIndexPort = 0x70
	cmosDataPort  = 0x71
)

// Cell is one framebuffer character cell: ascii plus a packed
// background<<4|foreground attribute byte (spec §6).
type Cell struct {
	ASCII     byte
	Attribute byte
}

// Framebuffer is the 80x25 text-mode screen plus the VGA hardware
// cursor, moved through the index/data port pair (spec §6).
type Framebuffer struct {
	mu       sync.Mutex
	cells    [Rows][Columns]Cell
	curRow   int
	curCol   int
	bus      *ports.Bus
}

// NewFramebuffer registers the VGA cursor index/data ports on bus.
func NewFramebuffer(bus *ports.Bus) *Framebuffer {
	fb := &Framebuffer{bus: bus}
	var selected byte
	bus.Register(vgaIndexPort, &ports.Handler{
		Write: func(v uint8) { selected = v },
	})
	bus.Register(vgaDataPort, &ports.Handler{
		Write: func(v uint8) {
			pos := fb.curRow*Columns + fb.curCol
			switch selected {
			case cursorHigh:
				pos = (pos &^ 0xFF00) | (int(v) << 8)
			case cursorLow:
				pos = (pos &^ 0x00FF) | int(v)
			}
			fb.curRow = pos / Columns
			fb.curCol = pos % Columns
		},
	})
	return fb
}

// PutChar writes one character at the current cursor position with the
// given bg<<4|fg attribute and advances the cursor, wrapping rows and
// scrolling the screen at the bottom edge.
func (fb *Framebuffer) PutChar(ch byte, attr uint8) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.putLocked(ch, attr)
}

func (fb *Framebuffer) putLocked(ch byte, attr uint8) {
	if ch == '\n' {
		fb.curCol = 0
		fb.curRow++
	} else {
		fb.cells[fb.curRow][fb.curCol] = Cell{ASCII: ch, Attribute: attr}
		fb.curCol++
		if fb.curCol >= Columns {
			fb.curCol = 0
			fb.curRow++
		}
	}
	if fb.curRow >= Rows {
		fb.scroll()
		fb.curRow = Rows - 1
	}
}

func (fb *Framebuffer) scroll() {
	for r := 1; r < Rows; r++ {
		fb.cells[r-1] = fb.cells[r]
	}
	fb.cells[Rows-1] = [Columns]Cell{}
}

// Puts writes s one character at a time with attr.
func (fb *Framebuffer) Puts(s string, attr uint8) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := 0; i < len(s); i++ {
		fb.putLocked(s[i], attr)
	}
}

// Clear blanks the screen and homes the cursor (syscall #13).
func (fb *Framebuffer) Clear() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.cells = [Rows][Columns]Cell{}
	fb.curRow, fb.curCol = 0, 0
}

// WriteAt writes one cell directly at (row, col) without disturbing the
// cursor. Positions outside the screen are ignored.
func (fb *Framebuffer) WriteAt(row, col int, ch byte, attr uint8) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if row < 0 || row >= Rows || col < 0 || col >= Columns {
		return
	}
	fb.cells[row][col] = Cell{ASCII: ch, Attribute: attr}
}

// Snapshot returns a copy of the visible cells, for tests and for a
// host-side renderer.
func (fb *Framebuffer) Snapshot() [Rows][Columns]Cell {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.cells
}

// Keyboard is the single-character rendezvous between the ISR (producer)
// and syscall #4 (consumer): the ISR writes, the consumer reads and
// clears (spec §5 "Shared resources").
type Keyboard struct {
	mu       sync.Mutex
	pending  byte
	hasChar  bool
	active   bool
}

// NewKeyboard builds an inactive keyboard; Activate (syscall #7) must be
// called before scancodes are accepted.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Activate marks the keyboard ready to accept input.
func (k *Keyboard) Activate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = true
}

// scancodeToASCII maps PS/2 set-1 make codes to ASCII, lowercase
// unshifted layout only. Index is the scancode; zero means untranslated.
var scancodeToASCII = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0E: '\b',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x34: '.', 0x35: '/',
	0x39: ' ',
}

// ScancodeToASCII translates one PS/2 set-1 scancode. Break codes (bit 7
// set) and codes without a printable mapping report ok=false.
func ScancodeToASCII(code uint8) (ch byte, ok bool) {
	if code >= 0x80 {
		return 0, false
	}
	ch = scancodeToASCII[code]
	return ch, ch != 0
}

// ISR is called from the keyboard IRQ handler with a decoded ASCII
// character (the IRQ handler runs ScancodeToASCII on the raw byte read
// from the controller before handing it over).
func (k *Keyboard) ISR(ch byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.active {
		return
	}
	k.pending = ch
	k.hasChar = true
}

// ReadChar implements syscall #4: read and clear the pending character.
func (k *Keyboard) ReadChar() (byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.hasChar {
		return 0, false
	}
	ch := k.pending
	k.hasChar = false
	return ch, true
}

// cmosClock backs the CMOS index/data port pair with a time source, the
// simulator's stand-in for the battery-backed RTC chip. It serves the
// seconds/minutes/hours registers in BCD and reports 24-hour BCD mode
// through status register B.
type cmosClock struct {
	mu    sync.Mutex
	index uint8
	now   func() time.Time
}

func registerCMOS(bus *ports.Bus, now func() time.Time) *cmosClock {
	c := &cmosClock{now: now}
	bus.Register(cmosIndexPort, &ports.Handler{
		Write: func(v uint8) {
			c.mu.Lock()
			c.index = v
			c.mu.Unlock()
		},
	})
	bus.Register(cmosDataPort, &ports.Handler{Read: c.read})
	return c
}

func (c *cmosClock) read() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	switch c.index {
	case 0x00:
		return binaryToBCD(uint8(t.Second()))
	case 0x02:
		return binaryToBCD(uint8(t.Minute()))
	case 0x04:
		return binaryToBCD(uint8(t.Hour()))
	case 0x0B:
		return 0x02 // 24-hour mode, BCD encoding
	default:
		return 0
	}
}

func binaryToBCD(v uint8) uint8 {
	return (v/10)<<4 | v%10
}

// RTC reads the CMOS clock through the index/data port pair, applying
// BCD and 12/24-hour conversion per status register B, plus an optional
// GMT offset (spec §6 "RTC (collaborator)").
type RTC struct {
	bus       *ports.Bus
	gmtOffset int
	hour      uint8
	minute    uint8
	second    uint8
}

// NewRTC builds an RTC reading through bus, applying gmtOffsetHours to
// the raw reading.
func NewRTC(bus *ports.Bus, gmtOffsetHours int) *RTC {
	return &RTC{bus: bus, gmtOffset: gmtOffsetHours}
}

func (r *RTC) readRegister(index uint8) uint8 {
	r.bus.Out(cmosIndexPort, index)
	return r.bus.In(cmosDataPort)
}

func bcdToBinary(v uint8) uint8 {
	return (v & 0x0F) + ((v / 16) * 10)
}

// Read performs the standard "read until two identical passes" anti-tear
// protocol, converts BCD and 12-hour format per status register B, and
// applies the configured GMT offset (spec §9: only the +7 hour case is
// normalized faithfully here — any other offset that crosses midnight is
// a known limitation, not silently invented).
func (r *RTC) Read() (hour, minute, second uint8) {
	var h1, m1, s1, h2, m2, s2 uint8
	for {
		h1, m1, s1 = r.readRegister(0x04), r.readRegister(0x02), r.readRegister(0x00)
		h2, m2, s2 = r.readRegister(0x04), r.readRegister(0x02), r.readRegister(0x00)
		if h1 == h2 && m1 == m2 && s1 == s2 {
			break
		}
	}

	statusB := r.readRegister(0x0B)
	if statusB&0x04 == 0 {
		h1 = bcdToBinary(h1&0x7F) | h1&0x80
		m1 = bcdToBinary(m1)
		s1 = bcdToBinary(s1)
	}
	if statusB&0x02 == 0 && h1&0x80 != 0 {
		h1 = (h1 & 0x7F) + 12
	}

	hh := int(h1) + r.gmtOffset
	if r.gmtOffset == 7 {
		hh = hh % 24
		if hh < 0 {
			hh += 24
		}
	}
	r.hour, r.minute, r.second = uint8(hh), m1, s1
	return r.hour, r.minute, r.second
}

// Console bundles the three collaborators a Dispatcher reaches into,
// the shape syscall.Dispatcher embeds.
type Console struct {
	Framebuffer *Framebuffer
	Keyboard    *Keyboard
	RTC         *RTC
}

// New builds the standard console bundle over a shared port bus, with
// the CMOS clock registers served from the host clock.
func New(bus *ports.Bus, gmtOffsetHours int) *Console {
	registerCMOS(bus, time.Now)
	return &Console{
		Framebuffer: NewFramebuffer(bus),
		Keyboard:    NewKeyboard(),
		RTC:         NewRTC(bus, gmtOffsetHours),
	}
}

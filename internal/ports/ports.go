/*
 * keos - Port I/O bus
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

// Package ports simulates the x86 I/O port space. It is the sole primitive
// through which the PIC, PIT, CMOS/RTC, VGA cursor registers, and keyboard
// controller are reached (spec §2 item 1).
package ports

import "sync"

// Handler backs one I/O port.
type Handler struct {
	Read  func() uint8
	Write func(uint8)
}

// Bus is a registry of port handlers. The zero value is ready to use.
type Bus struct {
	mu    sync.Mutex
	ports map[uint16]*Handler
}

// NewBus returns an empty port bus.
func NewBus() *Bus {
	return &Bus{ports: make(map[uint16]*Handler)}
}

// Register installs a handler at port. A second call for the same port
// replaces the handler, mirroring how a device re-attaches on reset.
func (b *Bus) Register(port uint16, h *Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ports == nil {
		b.ports = make(map[uint16]*Handler)
	}
	b.ports[port] = h
}

// In reads a byte from port. Reading an unregistered port returns 0xFF,
// the conventional "nothing answered the bus" value.
func (b *Bus) In(port uint16) uint8 {
	b.mu.Lock()
	h := b.ports[port]
	b.mu.Unlock()
	if h == nil || h.Read == nil {
		return 0xFF
	}
	return h.Read()
}

// Out writes a byte to port. Writing an unregistered port is a no-op.
func (b *Bus) Out(port uint16, value uint8) {
	b.mu.Lock()
	h := b.ports[port]
	b.mu.Unlock()
	if h == nil || h.Write == nil {
		return
	}
	h.Write(value)
}

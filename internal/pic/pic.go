/*
 * keos - 8259 Programmable Interrupt Controller pair
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

// Package pic models the cascaded master/slave 8259 pair: remap to
// PIC1_OFFSET/PIC2_OFFSET, per-IRQ mask/unmask, and end-of-interrupt
// acknowledgement. Grounded on original_source/src/interrupt.c's
// pic_remap/pic_ack.
package pic

import "github.com/kaldera/keos/internal/ports"

const (
	pic1Command uint16 = 0x20
	pic1Data    uint16 = 0x21
	pic2Command uint16 = 0xA0
	pic2Data    uint16 = 0xA1

	icw1Init = 0x10
	icw1ICW4 = 0x01
	icw4_8086 = 0x01

	picAck         = 0x20
	disableAllMask = 0xFF

	// PIC1Offset/PIC2Offset are the vector bases after remap: IRQ0-7 land
	// on 0x20-0x27, IRQ8-15 on 0x28-0x2F, clear of the CPU's reserved
	// 0x00-0x1F exception vectors.
	PIC1Offset uint8 = 0x20
	PIC2Offset uint8 = 0x28

	IRQTimer    = 0
	IRQKeyboard = 1
)

// Pair is the master/slave 8259 controllers wired onto a shared port bus.
type Pair struct {
	bus  *ports.Bus
	mask [2]uint8 // mask[0]=master IMR, mask[1]=slave IMR
}

// New attaches a Pair to bus. Both controllers start fully masked, mirroring
// pic_remap's final step, until Unmask is called for each IRQ in use.
func New(bus *ports.Bus) *Pair {
	p := &Pair{bus: bus, mask: [2]uint8{disableAllMask, disableAllMask}}
	return p
}

// Remap runs the ICW1-ICW4 initialization sequence, offsetting the master
// to PIC1Offset and the slave to PIC2Offset, cascaded through IRQ2, 8086
// mode, then leaves every line masked.
func (p *Pair) Remap() {
	p.bus.Out(pic1Command, icw1Init|icw1ICW4)
	p.bus.Out(pic2Command, icw1Init|icw1ICW4)

	p.bus.Out(pic1Data, PIC1Offset)
	p.bus.Out(pic2Data, PIC2Offset)

	p.bus.Out(pic1Data, 0b0100) // tell master: slave on IRQ2
	p.bus.Out(pic2Data, 0b0010) // tell slave: its cascade identity

	p.bus.Out(pic1Data, icw4_8086)
	p.bus.Out(pic2Data, icw4_8086)

	p.mask[0] = disableAllMask
	p.mask[1] = disableAllMask
	p.bus.Out(pic1Data, p.mask[0])
	p.bus.Out(pic2Data, p.mask[1])
}

// Unmask clears irq's bit in the owning controller's IMR, allowing it
// through.
func (p *Pair) Unmask(irq uint8) {
	idx, bit := p.split(irq)
	p.mask[idx] &^= 1 << bit
	p.write(idx)
}

// Mask sets irq's bit in the owning controller's IMR, blocking it.
func (p *Pair) Mask(irq uint8) {
	idx, bit := p.split(irq)
	p.mask[idx] |= 1 << bit
	p.write(idx)
}

// EOI acknowledges irq. An IRQ from the slave (irq >= 8) requires an EOI
// to both controllers since it cascades through IRQ2 on the master.
func (p *Pair) EOI(irq uint8) {
	if irq >= 8 {
		p.bus.Out(pic2Command, picAck)
	}
	p.bus.Out(pic1Command, picAck)
}

func (p *Pair) split(irq uint8) (idx, bit int) {
	if irq >= 8 {
		return 1, int(irq - 8)
	}
	return 0, int(irq)
}

func (p *Pair) write(idx int) {
	if idx == 0 {
		p.bus.Out(pic1Data, p.mask[0])
		return
	}
	p.bus.Out(pic2Data, p.mask[1])
}

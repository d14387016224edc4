/*
 * keos - Time-relative event list
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

package scheduler

// callback fires when a pending event's relative time reaches zero.
type callback func()

// event is one entry in a time-relative linked list: its time field
// holds cycles remaining after every earlier event's time has elapsed,
// not an absolute deadline (the same encoding as the S/370 emulator's
// event list this is adapted from).
type event struct {
	time int
	cb   callback
	prev *event
	next *event
}

// eventList schedules the PIT's periodic tick the way a hardware timer
// would: one pending event, re-armed every time it fires. Grounded on
// the teacher's emu/event package (AddEvent/CancelEvent/Advance), here
// narrowed to the kernel's single recurring timer tick rather than a
// general per-device queue, since the scheduler has exactly one clock
// source (spec §4.6).
type eventList struct {
	head *event
}

// add inserts an event firing after delay ticks, maintaining relative
// ordering against whatever is already pending.
func (l *eventList) add(delay int, cb callback) {
	ev := &event{time: delay, cb: cb}

	cur := l.head
	if cur == nil {
		l.head = ev
		return
	}
	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				l.head = ev
			}
			return
		}
		ev.time -= cur.time
		if cur.next == nil {
			cur.next = ev
			ev.prev = cur
			return
		}
		cur = cur.next
	}
}

// advance moves time forward by one tick and fires (and removes) every
// event whose relative time reaches zero.
func (l *eventList) advance() {
	if l.head == nil {
		return
	}
	l.head.time--
	for l.head != nil && l.head.time <= 0 {
		ev := l.head
		l.head = ev.next
		if l.head != nil {
			l.head.prev = nil
		}
		ev.cb()
	}
}

package console

import (
	"testing"
	"time"

	"github.com/kaldera/keos/internal/ports"
)

func TestPutCharAdvancesCursorAndWraps(t *testing.T) {
	fb := NewFramebuffer(ports.NewBus())
	for i := 0; i < Columns+1; i++ {
		fb.PutChar('x', 0x07)
	}
	snap := fb.Snapshot()
	if snap[1][0].ASCII != 'x' {
		t.Fatalf("expected wrap to row 1, got %q at (1,0)", snap[1][0].ASCII)
	}
}

func TestPutsNewlineMovesToNextRow(t *testing.T) {
	fb := NewFramebuffer(ports.NewBus())
	fb.Puts("ab\ncd", 0x07)
	snap := fb.Snapshot()
	if snap[0][0].ASCII != 'a' || snap[0][1].ASCII != 'b' {
		t.Fatalf("row 0 = %q%q, want ab", snap[0][0].ASCII, snap[0][1].ASCII)
	}
	if snap[1][0].ASCII != 'c' || snap[1][1].ASCII != 'd' {
		t.Fatalf("row 1 = %q%q, want cd", snap[1][0].ASCII, snap[1][1].ASCII)
	}
}

func TestScrollAtBottomRow(t *testing.T) {
	fb := NewFramebuffer(ports.NewBus())
	for r := 0; r < Rows; r++ {
		fb.Puts(string(rune('0'+r%10)), 0x07)
		fb.PutChar('\n', 0x07)
	}
	snap := fb.Snapshot()
	if snap[0][0].ASCII == '0' {
		t.Fatal("expected row 0 to have scrolled off after filling the screen")
	}
}

func TestClearResetsCellsAndCursor(t *testing.T) {
	fb := NewFramebuffer(ports.NewBus())
	fb.Puts("hello", 0x07)
	fb.Clear()
	snap := fb.Snapshot()
	if snap[0][0].ASCII != 0 {
		t.Fatal("expected blank cell after Clear")
	}
}

func TestWriteAtOutOfBoundsIsNoop(t *testing.T) {
	fb := NewFramebuffer(ports.NewBus())
	fb.WriteAt(-1, 0, 'z', 0x07)
	fb.WriteAt(Rows, 0, 'z', 0x07)
	snap := fb.Snapshot()
	for r := range snap {
		for c := range snap[r] {
			if snap[r][c].ASCII != 0 {
				t.Fatal("expected no cell written for out-of-bounds WriteAt")
			}
		}
	}
}

func TestKeyboardActivateISRAndReadChar(t *testing.T) {
	k := NewKeyboard()
	if _, ok := k.ReadChar(); ok {
		t.Fatal("expected no pending character before activation")
	}
	k.ISR('Z')
	if _, ok := k.ReadChar(); ok {
		t.Fatal("ISR before Activate should be dropped")
	}
	k.Activate()
	k.ISR('Z')
	ch, ok := k.ReadChar()
	if !ok || ch != 'Z' {
		t.Fatalf("ReadChar() = %q, %t; want 'Z', true", ch, ok)
	}
	if _, ok := k.ReadChar(); ok {
		t.Fatal("expected ReadChar to clear the pending character")
	}
}

func TestScancodeToASCII(t *testing.T) {
	cases := []struct {
		code uint8
		ch   byte
		ok   bool
	}{
		{0x1E, 'a', true},
		{0x10, 'q', true},
		{0x02, '1', true},
		{0x39, ' ', true},
		{0x1C, '\n', true},
		{0x9E, 0, false}, // break code for 'a'
		{0x01, 0, false}, // escape, unmapped
	}
	for _, c := range cases {
		ch, ok := ScancodeToASCII(c.code)
		if ch != c.ch || ok != c.ok {
			t.Errorf("ScancodeToASCII(%#x) = %q, %t; want %q, %t", c.code, ch, ok, c.ch, c.ok)
		}
	}
}

func TestCMOSClockServesBCDThroughRTC(t *testing.T) {
	bus := ports.NewBus()
	fixed := time.Date(2024, 5, 1, 13, 45, 9, 0, time.UTC)
	registerCMOS(bus, func() time.Time { return fixed })

	rtc := NewRTC(bus, 0)
	hour, minute, second := rtc.Read()
	if hour != 13 || minute != 45 || second != 9 {
		t.Fatalf("Read() = %d:%d:%d, want 13:45:9", hour, minute, second)
	}
}

func TestRTCReadAppliesSevenHourOffsetWraparound(t *testing.T) {
	bus := ports.NewBus()
	var index uint8
	bus.Register(cmosIndexPort, &ports.Handler{Write: func(v uint8) { index = v }})
	bus.Register(cmosDataPort, &ports.Handler{
		Read: func() uint8 {
			switch index {
			case 0x04:
				return 20 // hour, binary mode
			case 0x02:
				return 30
			case 0x00:
				return 15
			case 0x0B:
				return 0x06 // 24-hour, binary mode (bits 1 and 2 set)
			}
			return 0
		},
	})
	rtc := NewRTC(bus, 7)
	hour, minute, second := rtc.Read()
	if hour != (20+7)%24 {
		t.Fatalf("hour = %d, want %d", hour, (20+7)%24)
	}
	if minute != 30 || second != 15 {
		t.Fatalf("minute/second = %d/%d, want 30/15", minute, second)
	}
}

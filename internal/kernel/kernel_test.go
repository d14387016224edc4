package kernel

import (
	"strings"
	"testing"
	"time"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/syscall"
)

func name8(s string) [8]byte {
	var b [8]byte
	copy(b[:], s)
	return b
}

func ext3(s string) [3]byte {
	var b [3]byte
	copy(b[:], s)
	return b
}

func TestBootAndPs(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	k, err := Boot(dev, 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	go k.Run()
	defer k.Stop()

	res := k.Syscall(syscall.Ps, syscall.Args{})
	if res.PSOutput != "" {
		t.Fatalf("expected empty process list, got %q", res.PSOutput)
	}
}

func TestSyscallServedAfterTimerTickWithNoProcesses(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	k, err := Boot(dev, 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	go k.Run()
	defer k.Stop()

	k.PostTimerTick()
	time.Sleep(10 * time.Millisecond)

	res := k.Syscall(syscall.ReadClock, syscall.Args{})
	if res.RetCode != 0 {
		t.Fatalf("ReadClock: retcode %d", res.RetCode)
	}
}

func TestTimerSwitchesBetweenProcesses(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	k, err := Boot(dev, 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	go k.Run()
	defer k.Stop()

	body := make([]byte, 16)
	for _, n := range []string{"p1", "p2"} {
		req := fat32.Request{Name: name8(n), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber, Buf: body}
		req.BufferSize = uint32(len(body))
		if res := k.Syscall(syscall.Write, syscall.Args{Request: req}); res.RetCode != fat32.Ok {
			t.Fatalf("write %s: retcode %d", n, res.RetCode)
		}
		execReq := fat32.Request{Name: name8(n), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}
		if res := k.Syscall(syscall.Exec, syscall.Args{Request: execReq, Name: n, Buf: body}); res.RetCode != 0 {
			t.Fatalf("exec %s: retcode %d", n, res.RetCode)
		}
	}

	k.PostTimerTick()
	k.PostTimerTick()

	res := k.Syscall(syscall.Ps, syscall.Args{})
	if !strings.Contains(res.PSOutput, "RUNNING") {
		t.Fatalf("expected one RUNNING process after ticks, got %q", res.PSOutput)
	}
	if !strings.Contains(res.PSOutput, "READY") {
		t.Fatalf("expected the preempted process back to READY, got %q", res.PSOutput)
	}
	if k.GDT.TSS().ESP0 != kernelStackTop {
		t.Fatalf("ESP0 = %#x, want %#x after a switch to user mode", k.GDT.TSS().ESP0, kernelStackTop)
	}
}

func TestKeyboardScancodeReachesSyscall(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	k, err := Boot(dev, 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	go k.Run()
	defer k.Stop()

	k.Syscall(syscall.ActivateKeyboard, syscall.Args{})
	k.PostKeyboard(0x1E) // make code for 'a'
	k.PostKeyboard(0x9E) // break code, must be dropped

	res := k.Syscall(syscall.GetKeyboardChar, syscall.Args{})
	if res.RetCode != 0 || res.Char != 'a' {
		t.Fatalf("GetKeyboardChar: retcode=%d char=%q, want 0, 'a'", res.RetCode, res.Char)
	}
}

func TestStopIsIdempotentWithinTimeout(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	k, err := Boot(dev, 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	go k.Run()
	k.Stop()
}

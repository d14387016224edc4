package scheduler

import (
	"testing"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/paging"
	"github.com/kaldera/keos/internal/pic"
	"github.com/kaldera/keos/internal/ports"
	"github.com/kaldera/keos/internal/process"
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

func setup(t *testing.T) (*Scheduler, *process.Manager) {
	t.Helper()
	dev := blockdev.NewMemDevice(2048)
	fs, err := fat32.New(dev)
	if err != nil {
		t.Fatalf("fat32.New: %v", err)
	}
	pm := paging.NewManager()
	procs := process.NewManager(pm, fs)

	body := make([]byte, 16)
	for _, n := range []string{"p1", "p2"} {
		if rc := fs.Write(fat32.Request{Name: name8(n), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber, Buf: body, BufferSize: uint32(len(body))}); rc != fat32.Ok {
			t.Fatalf("write %s: rc=%d", n, rc)
		}
		if _, rc := procs.Create(fat32.Request{Name: name8(n), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}, n, 0, uint32(len(body))); rc != process.CreateSuccess {
			t.Fatalf("create %s: rc=%d", n, rc)
		}
	}

	bus := ports.NewBus()
	p := pic.New(bus)
	return New(procs, pm, bus, p), procs
}

func TestSwitchToNextRoundRobin(t *testing.T) {
	s, procs := setup(t)
	first := s.SwitchToNext()
	second := s.SwitchToNext()
	third := s.SwitchToNext()
	if first == nil || second == nil || third == nil {
		t.Fatal("expected non-nil PCBs")
	}
	if first.PID == second.PID {
		t.Fatal("expected distinct PCBs across successive ticks")
	}
	if first.PID != third.PID {
		t.Fatalf("expected round-robin to cycle back: first=%d third=%d", first.PID, third.PID)
	}
	if procs.ActiveCount() != 2 {
		t.Fatalf("expected 2 active processes, got %d", procs.ActiveCount())
	}
}

func TestSwitchToNextNoProcesses(t *testing.T) {
	dev := blockdev.NewMemDevice(2048)
	fs, err := fat32.New(dev)
	if err != nil {
		t.Fatalf("fat32.New: %v", err)
	}
	pm := paging.NewManager()
	procs := process.NewManager(pm, fs)
	bus := ports.NewBus()
	p := pic.New(bus)
	s := New(procs, pm, bus, p)

	if s.SwitchToNext() != nil {
		t.Fatal("expected nil when no processes are active")
	}
}

func TestArmTickFiresPeriodically(t *testing.T) {
	s, _ := setup(t)
	count := 0
	s.ArmTick(3, func() { count++ })
	for i := 0; i < 9; i++ {
		s.events.advance()
	}
	if count != 3 {
		t.Fatalf("expected 3 fires over 9 ticks at period 3, got %d", count)
	}
}

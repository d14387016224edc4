package syscall

import (
	"testing"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/console"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/paging"
	"github.com/kaldera/keos/internal/ports"
	"github.com/kaldera/keos/internal/process"
)

func setup(t *testing.T) *Dispatcher {
	t.Helper()
	fs, err := fat32.New(blockdev.NewMemDevice(2048))
	if err != nil {
		t.Fatalf("fat32.New: %v", err)
	}
	procs := process.NewManager(paging.NewManager(), fs)
	con := console.New(ports.NewBus(), 0)
	return &Dispatcher{FS: fs, Procs: procs, Console: con}
}

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

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	d := setup(t)
	payload := []byte("hello from a syscall")
	req := fat32.Request{
		Name: name8("greet"), Ext: ext3("txt"),
		ParentCluster: fat32.RootClusterNumber,
		Buf:           payload, BufferSize: uint32(len(payload)),
	}
	if res := d.Dispatch(Write, Args{Request: req}); res.RetCode != fat32.Ok {
		t.Fatalf("Write: retcode %d", res.RetCode)
	}

	buf := make([]byte, 64)
	readReq := fat32.Request{Name: name8("greet"), Ext: ext3("txt"), ParentCluster: fat32.RootClusterNumber, Buf: buf}
	res := d.Dispatch(ReadFile, Args{Request: readReq, Buf: buf})
	if res.RetCode != fat32.Ok {
		t.Fatalf("ReadFile: retcode %d", res.RetCode)
	}
}

func TestListDirectoryAfterWrite(t *testing.T) {
	d := setup(t)
	req := fat32.Request{Name: name8("a"), Ext: ext3("txt"), ParentCluster: fat32.RootClusterNumber, Buf: []byte("x"), BufferSize: 1}
	d.Dispatch(Write, Args{Request: req})

	res := d.Dispatch(ListDirectory, Args{Cluster: fat32.RootClusterNumber})
	if res.RetCode != fat32.Ok {
		t.Fatalf("ListDirectory: retcode %d", res.RetCode)
	}
	if len(res.Listing) != 1 {
		t.Fatalf("expected 1 entry, got %d: %v", len(res.Listing), res.Listing)
	}
}

func TestPsOnEmptyProcessTable(t *testing.T) {
	d := setup(t)
	res := d.Dispatch(Ps, Args{})
	if res.PSOutput != "" {
		t.Fatalf("expected empty PS output, got %q", res.PSOutput)
	}
}

func TestKillUnknownPIDFails(t *testing.T) {
	d := setup(t)
	res := d.Dispatch(Kill, Args{PID: 999})
	if res.RetCode == fat32.Ok {
		t.Fatal("expected failure killing an unknown PID")
	}
}

func TestPutCharAndClearScreen(t *testing.T) {
	d := setup(t)
	d.Dispatch(PutChar, Args{Str: "X", Color: 0x07})
	snap := d.Console.Framebuffer.Snapshot()
	if snap[0][0].ASCII != 'X' {
		t.Fatalf("expected 'X' at (0,0), got %q", snap[0][0].ASCII)
	}
	d.Dispatch(ClearScreen, Args{})
	snap = d.Console.Framebuffer.Snapshot()
	if snap[0][0].ASCII != 0 {
		t.Fatal("expected screen cleared")
	}
}

func TestGetKeyboardCharBeforeActivateFails(t *testing.T) {
	d := setup(t)
	res := d.Dispatch(GetKeyboardChar, Args{})
	if res.RetCode == fat32.Ok {
		t.Fatal("expected failure reading with no pending character")
	}
}

func TestActivateKeyboardThenISRThenRead(t *testing.T) {
	d := setup(t)
	d.Dispatch(ActivateKeyboard, Args{})
	d.Console.Keyboard.ISR('q')
	res := d.Dispatch(GetKeyboardChar, Args{})
	if res.RetCode != fat32.Ok || res.Char != 'q' {
		t.Fatalf("GetKeyboardChar: retcode=%d char=%q", res.RetCode, res.Char)
	}
}

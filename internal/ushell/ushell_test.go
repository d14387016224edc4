package ushell

import (
	"errors"
	"strings"
	"testing"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/console"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/paging"
	"github.com/kaldera/keos/internal/ports"
	"github.com/kaldera/keos/internal/process"
	"github.com/kaldera/keos/internal/syscall"
)

func setup(t *testing.T) (*Shell, *strings.Builder) {
	t.Helper()
	fs, err := fat32.New(blockdev.NewMemDevice(2048))
	if err != nil {
		t.Fatalf("fat32.New: %v", err)
	}
	procs := process.NewManager(paging.NewManager(), fs)
	con := console.New(ports.NewBus(), 0)
	dispatch := &syscall.Dispatcher{FS: fs, Procs: procs, Console: con}

	var out strings.Builder
	sh := &Shell{dispatch: dispatch, cwd: fat32.RootClusterNumber, out: func(s string) { out.WriteString(s) }}
	return sh, &out
}

func TestMkdirThenLsShowsEntry(t *testing.T) {
	sh, out := setup(t)
	if err := sh.Execute("mkdir sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := sh.Execute("ls"); err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out.String(), "sub") {
		t.Fatalf("ls output %q does not mention sub", out.String())
	}
}

func TestCdIntoSubdirAndBackUp(t *testing.T) {
	sh, _ := setup(t)
	if err := sh.Execute("mkdir sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := sh.Execute("cd sub"); err != nil {
		t.Fatalf("cd sub: %v", err)
	}
	if sh.cwd == fat32.RootClusterNumber {
		t.Fatal("cd did not change directory")
	}
	if err := sh.Execute("cd .."); err != nil {
		t.Fatalf("cd ..: %v", err)
	}
	if sh.cwd != fat32.RootClusterNumber {
		t.Fatalf("cd .. did not return to root, cwd=%d", sh.cwd)
	}
}

func TestPrefixShorterThanMinimumFails(t *testing.T) {
	sh, _ := setup(t)
	err := sh.Execute("c somefile")
	if err == nil {
		t.Fatal("expected an error for prefix \"c\", shorter than every command's minimum")
	}
}

func TestUnknownCommandFails(t *testing.T) {
	sh, _ := setup(t)
	if err := sh.Execute("zzz"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestExitReturnsErrExit(t *testing.T) {
	sh, _ := setup(t)
	err := sh.Execute("exit")
	if !errors.Is(err, ErrExit) {
		t.Fatalf("Execute(\"exit\") = %v, want ErrExit", err)
	}
}

func TestTouchThenCatRoundTrip(t *testing.T) {
	sh, out := setup(t)
	if err := sh.Execute("touch note.txt hello there"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := sh.Execute("cat note.txt"); err != nil {
		t.Fatalf("cat: %v", err)
	}
	if !strings.Contains(out.String(), "hello there") {
		t.Fatalf("cat output %q does not contain the written content", out.String())
	}
}

func TestGrepFindsPatternInTxtFiles(t *testing.T) {
	sh, out := setup(t)
	payload := []byte("hello world")
	req := fat32.Request{
		Name: name8("greet"), Ext: ext3("txt"),
		ParentCluster: fat32.RootClusterNumber,
		Buf:           payload, BufferSize: uint32(len(payload)),
	}
	if res := sh.dispatch.Dispatch(syscall.Write, syscall.Args{Request: req}); res.RetCode != fat32.Ok {
		t.Fatalf("write greet.txt: retcode %d", res.RetCode)
	}

	if err := sh.Execute("grep hello"); err != nil {
		t.Fatalf("grep hello: %v", err)
	}
	if !strings.Contains(out.String(), "greet") {
		t.Fatalf("grep output %q does not mention greet", out.String())
	}

	out.Reset()
	if err := sh.Execute("grep absent bm"); err != nil {
		t.Fatalf("grep absent bm: %v", err)
	}
	if out.String() != "" {
		t.Fatalf("expected no matches, got %q", out.String())
	}
}

func TestExecStartsProcess(t *testing.T) {
	sh, out := setup(t)
	body := make([]byte, 16)
	req := fat32.Request{
		Name: name8("init"), Ext: ext3("bin"),
		ParentCluster: fat32.RootClusterNumber,
		Buf:           body, BufferSize: uint32(len(body)),
	}
	if res := sh.dispatch.Dispatch(syscall.Write, syscall.Args{Request: req}); res.RetCode != fat32.Ok {
		t.Fatalf("write init.bin: retcode %d", res.RetCode)
	}

	if err := sh.Execute("exec init"); err != nil {
		t.Fatalf("exec init: %v", err)
	}
	if !strings.Contains(out.String(), "PID") {
		t.Fatalf("exec output %q does not report a PID", out.String())
	}
}

func TestRmDeletesEntry(t *testing.T) {
	sh, _ := setup(t)
	if err := sh.Execute("mkdir sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := sh.Execute("rm sub"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	var out strings.Builder
	sh.out = func(s string) { out.WriteString(s) }
	if err := sh.Execute("ls"); err != nil {
		t.Fatalf("ls: %v", err)
	}
	if strings.Contains(out.String(), "sub") {
		t.Fatalf("expected sub removed, got listing %q", out.String())
	}
}

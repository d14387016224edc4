package process

import (
	"testing"

	"github.com/kaldera/keos/internal/blockdev"
	"github.com/kaldera/keos/internal/fat32"
	"github.com/kaldera/keos/internal/paging"
)

func setup(t *testing.T) (*Manager, *fat32.Driver) {
	t.Helper()
	dev := blockdev.NewMemDevice(2048)
	fs, err := fat32.New(dev)
	if err != nil {
		t.Fatalf("fat32.New: %v", err)
	}
	pm := paging.NewManager()
	return NewManager(pm, fs), fs
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

func writeExecutable(t *testing.T, fs *fat32.Driver, name string, body []byte) {
	t.Helper()
	rc := fs.Write(fat32.Request{
		Name: name8(name), Ext: ext3("bin"),
		ParentCluster: fat32.RootClusterNumber,
		Buf:           body, BufferSize: uint32(len(body)),
	})
	if rc != fat32.Ok {
		t.Fatalf("write executable: rc=%d", rc)
	}
}

func TestCreateAndDestroy(t *testing.T) {
	m, fs := setup(t)
	body := make([]byte, 128)
	writeExecutable(t, fs, "init", body)

	req := fat32.Request{Name: name8("init"), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}
	pid, rc := m.Create(req, "init", 0, uint32(len(body)))
	if rc != CreateSuccess {
		t.Fatalf("Create: rc=%d", rc)
	}
	if pid == 0 {
		t.Fatal("expected nonzero pid")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("expected 1 active process, got %d", m.ActiveCount())
	}

	if !m.Destroy(pid) {
		t.Fatal("Destroy failed")
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("expected 0 active after destroy, got %d", m.ActiveCount())
	}
	if m.ByPID(pid) != nil {
		t.Fatal("expected destroyed pid to be unresolvable")
	}
}

func TestCreateRejectsKernelEntrypoint(t *testing.T) {
	m, fs := setup(t)
	body := make([]byte, 16)
	writeExecutable(t, fs, "bad", body)
	req := fat32.Request{Name: name8("bad"), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}
	_, rc := m.Create(req, "bad", KernelVirtualBase, uint32(len(body)))
	if rc != CreateFailInvalidEntrypoint {
		t.Fatalf("expected CreateFailInvalidEntrypoint, got %d", rc)
	}
}

func TestSeventeenthProcessFailsAtSixteen(t *testing.T) {
	m, fs := setup(t)
	body := make([]byte, 16)
	for i := 0; i < CountMax; i++ {
		name := string(rune('a' + i))
		writeExecutable(t, fs, name, body)
		req := fat32.Request{Name: name8(name), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}
		if _, rc := m.Create(req, name, 0, uint32(len(body))); rc != CreateSuccess {
			t.Fatalf("create %d: rc=%d", i, rc)
		}
	}

	writeExecutable(t, fs, "overflow", body)
	req := fat32.Request{Name: name8("overflow"), Ext: ext3("bin"), ParentCluster: fat32.RootClusterNumber}
	freeBefore := m.pageManager.String()
	_, rc := m.Create(req, "overflow", 0, uint32(len(body)))
	if rc != CreateFailMaxProcessExceeded {
		t.Fatalf("expected CreateFailMaxProcessExceeded, got %d", rc)
	}
	if m.pageManager.String() != freeBefore {
		t.Fatal("expected no page directory consumed on rejected create")
	}
}

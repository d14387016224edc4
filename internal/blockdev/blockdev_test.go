package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMemDeviceWriteReadRoundTrip(t *testing.T) {
	dev := NewMemDevice(4)
	payload := bytes.Repeat([]byte{0xAB}, BlockSize*2)
	if err := dev.WriteBlocks(payload, 1, 2); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	got := make([]byte, BlockSize*2)
	if err := dev.ReadBlocks(got, 1, 2); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("read back different bytes than written")
	}
}

func TestMemDeviceOutOfRangeAccessFails(t *testing.T) {
	dev := NewMemDevice(2)
	buf := make([]byte, BlockSize)
	if err := dev.ReadBlocks(buf, 5, 1); err == nil {
		t.Fatal("expected error reading beyond image size")
	}
}

func TestMemDeviceUndersizedBufferFails(t *testing.T) {
	dev := NewMemDevice(2)
	buf := make([]byte, BlockSize/2)
	if err := dev.ReadBlocks(buf, 0, 1); err == nil {
		t.Fatal("expected error with undersized buffer")
	}
}

func TestMemDeviceBlockCount(t *testing.T) {
	dev := NewMemDevice(7)
	if got := dev.BlockCount(); got != 7 {
		t.Fatalf("BlockCount() = %d, want 7", got)
	}
}

func TestFileDeviceWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(BlockSize * 4); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dev, err := OpenFileDevice(path)
	if err != nil {
		t.Fatalf("OpenFileDevice: %v", err)
	}
	defer dev.Close()

	if got := dev.BlockCount(); got != 4 {
		t.Fatalf("BlockCount() = %d, want 4", got)
	}

	payload := bytes.Repeat([]byte{0x5A}, BlockSize)
	if err := dev.WriteBlocks(payload, 2, 1); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got := make([]byte, BlockSize)
	if err := dev.ReadBlocks(got, 2, 1); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("read back different bytes than written")
	}
}

func TestOpenFileDeviceRejectsMisalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(BlockSize + 1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := OpenFileDevice(path); err == nil {
		t.Fatal("expected error opening misaligned image")
	}
}

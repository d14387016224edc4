package klog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleWritesMessageAndAttrsToFile(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	logger := slog.New(h)
	logger.Info("boot complete", slog.Int("pid", 1))

	out := buf.String()
	if !strings.Contains(out, "boot complete") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "pid=1") {
		t.Fatalf("expected attr in output, got %q", out)
	}
}

func TestSetDebugEnablesStderrMirror(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	h.SetDebug(true)
	if !h.debug {
		t.Fatal("expected debug flag set")
	}
}

func TestSubAddsSubsystemAttr(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, nil, false))
	sub := Sub(base, "paging")
	sub.Info("frame allocated")
	if !strings.Contains(buf.String(), "subsystem=paging") {
		t.Fatalf("expected subsystem attr, got %q", buf.String())
	}
}

func TestEnabledDelegatesToInnerHandler(t *testing.T) {
	h := NewHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected Info disabled when level floor is Warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected Error enabled when level floor is Warn")
	}
}

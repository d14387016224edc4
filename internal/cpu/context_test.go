package cpu

import "testing"

func TestNewUserContextUsesRing3Selectors(t *testing.T) {
	ctx := NewUserContext(4 * 1024 * 1024)
	if ctx.CS != UserCS || ctx.SS != UserDS {
		t.Fatalf("CS/SS = %#x/%#x, want %#x/%#x", ctx.CS, ctx.SS, UserCS, UserDS)
	}
	if ctx.EFlags&EflagsInterruptEnable == 0 {
		t.Fatal("expected interrupts enabled in a fresh context")
	}
	if ctx.ESP != 4*1024*1024-4 {
		t.Fatalf("ESP = %#x, want top-of-stack minus one word", ctx.ESP)
	}
}

func TestToContextOnlyRestoresStackAcrossPrivilegeChange(t *testing.T) {
	sameRing := &InterruptFrame{EIP: 0x1000, CS: KernelCS, HasStack: false, ESP: 0xDEAD, SS: 0xBEEF}
	ctx := sameRing.ToContext()
	if ctx.ESP != 0 || ctx.SS != 0 {
		t.Fatalf("expected zero ESP/SS for a same-ring trap, got %#x/%#x", ctx.ESP, ctx.SS)
	}

	crossRing := &InterruptFrame{EIP: 0x2000, CS: UserCS, HasStack: true, ESP: 0x3000, SS: UserDS}
	ctx = crossRing.ToContext()
	if ctx.ESP != 0x3000 || ctx.SS != UserDS {
		t.Fatalf("expected ESP/SS carried across ring transition, got %#x/%#x", ctx.ESP, ctx.SS)
	}
}

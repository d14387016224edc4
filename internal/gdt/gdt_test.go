package gdt

import "testing"

func TestNewDescriptorDPLsMatchSelectors(t *testing.T) {
	table := New()

	cases := []struct {
		name string
		idx  int
		dpl  uint8
		code bool
	}{
		{"null", 0, 0, false},
		{"kernel code", 1, 0, true},
		{"kernel data", 2, 0, false},
		{"user code", 3, 3, true},
		{"user data", 4, 3, false},
		{"tss", 5, 0, false},
	}
	for _, c := range cases {
		d := table.Descriptor(c.idx)
		if c.idx != 0 && !d.Valid {
			t.Errorf("%s: expected Valid", c.name)
		}
		if d.DPL != c.dpl {
			t.Errorf("%s: DPL = %d, want %d", c.name, d.DPL, c.dpl)
		}
		if d.Code != c.code {
			t.Errorf("%s: Code = %t, want %t", c.name, d.Code, c.code)
		}
	}
}

func TestDescriptorOutOfRangeReturnsZeroValue(t *testing.T) {
	table := New()
	if d := table.Descriptor(-1); d.Valid {
		t.Fatal("negative index should return zero-value descriptor")
	}
	if d := table.Descriptor(entryCount); d.Valid {
		t.Fatal("out-of-range index should return zero-value descriptor")
	}
}

func TestSetKernelStackUpdatesESP0(t *testing.T) {
	table := New()
	tss := table.TSS()
	if tss.SS0 != KernelDataSelector {
		t.Fatalf("SS0 = %#x, want %#x", tss.SS0, KernelDataSelector)
	}
	tss.SetKernelStack(0xC0010000)
	if tss.ESP0 != 0xC0010000 {
		t.Fatalf("ESP0 = %#x, want 0xC0010000", tss.ESP0)
	}
}

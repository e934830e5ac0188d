package checker

import "testing"

func TestDisabledByDefault(t *testing.T) {
	c := New(nil)
	c.NotifyAccess(0, AccessAMO, 0x1003, 4)
	if len(c.Violations()) != 0 {
		t.Fatalf("expected no violations while disabled, got %v", c.Violations())
	}
}

func TestMisalignedAtomicFlagged(t *testing.T) {
	c := New(nil)
	c.Enable(MemCheck)
	c.NotifyAccess(0, AccessAMO, 0x1003, 4)
	vs := c.Violations()
	if len(vs) != 1 || vs[0].Category != MemCheck {
		t.Fatalf("expected one MemCheck violation, got %v", vs)
	}
}

func TestAlignedAccessClean(t *testing.T) {
	c := New(nil)
	c.Enable(MemCheck)
	c.NotifyAccess(0, AccessLoad, 0x1000, 8)
	if len(c.Violations()) != 0 {
		t.Fatalf("expected no violations, got %v", c.Violations())
	}
}

func TestLineTransitionLegality(t *testing.T) {
	c := New(nil)
	c.Enable(L1ScpCheck)

	c.NotifyLineTransition(false, 0, 4, LineInvalid, LineFill)
	c.NotifyLineTransition(false, 0, 4, LineFill, LineValid)
	if len(c.Violations()) != 0 {
		t.Fatalf("expected legal transitions to produce no violations, got %v", c.Violations())
	}

	c.NotifyLineTransition(false, 0, 4, LineValid, LineFill)
	vs := c.Violations()
	if len(vs) != 1 {
		t.Fatalf("expected one illegal-transition violation, got %v", vs)
	}
}

func TestFLBCheckGating(t *testing.T) {
	c := New(nil)
	c.NotifyFLBEmpty(1, 0x2000)
	if len(c.Violations()) != 0 {
		t.Fatalf("expected no violation while FLBCheck disabled")
	}
	c.Enable(FLBCheck)
	c.NotifyFLBEmpty(1, 0x2000)
	if len(c.Violations()) != 1 {
		t.Fatalf("expected one FLB violation once enabled")
	}
}

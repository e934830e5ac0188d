package csr

import "testing"

func TestResetStateIsMachineMode(t *testing.T) {
	f := New(3)
	if f.Priv != PrivMachine {
		t.Fatalf("expected power-on privilege M, got %v", f.Priv)
	}
	if v, _, ok := f.Read(CsrMHartID); !ok || v != 3 {
		t.Fatalf("mhartid = %d, ok=%v, want 3", v, ok)
	}
}

func TestSStatusReadRequiresSupervisorPrivilege(t *testing.T) {
	f := New(0)
	f.Priv = PrivUser
	_, trap, ok := f.Read(CsrSStatus)
	if !ok || trap == 0 {
		t.Fatalf("expected illegal_instruction trap reading sstatus from U-mode, got trap=%v ok=%v", trap, ok)
	}
}

func TestFCSRRoundTrip(t *testing.T) {
	f := New(0)
	f.Write(CsrFCSR, 0x1f|(0x5<<5))
	v, _, _ := f.Read(CsrFCSR)
	if v != 0x1f|(0x5<<5) {
		t.Fatalf("fcsr round trip mismatch: got %#x", v)
	}
	if f.FFlags != 0x1f || f.FRM != 0x5 {
		t.Fatalf("fflags/frm not split correctly: fflags=%#x frm=%#x", f.FFlags, f.FRM)
	}
}

func TestMRetRestoresPrivilegeAndPC(t *testing.T) {
	f := New(0)
	f.MEPC = 0x8000_1000
	f.MStatus = setBit(f.MStatus, shiftMPP, true) | (uint64(PrivSupervisor) << shiftMPP)
	f.MStatus = setBit(f.MStatus, bitMPIE, true)

	pc, trap := f.MRet()
	if trap != 0 {
		t.Fatalf("unexpected trap on mret: %v", trap)
	}
	if pc != 0x8000_1000 {
		t.Fatalf("mret pc = %#x, want 0x8000_1000", pc)
	}
	if f.Priv != PrivSupervisor {
		t.Fatalf("mret should restore MPP privilege, got %v", f.Priv)
	}
	if f.MStatus&(1<<bitMIE) == 0 {
		t.Fatalf("mret should set MIE from MPIE")
	}
}

func TestWFIFaultsInUserMode(t *testing.T) {
	f := New(0)
	f.Priv = PrivUser
	if trap := f.WFI(); trap != Exception(CauseIllegalInstruction) {
		t.Fatalf("wfi in U-mode should trap illegal_instruction, got %v", trap)
	}
}

func TestPendingInterruptPriority(t *testing.T) {
	f := New(0)
	f.MIE = 1<<IrqMExtern | 1<<IrqMTimer
	f.MIP = 1<<IrqMExtern | 1<<IrqMTimer
	f.MStatus = setBit(f.MStatus, bitMIE, true)

	trap, ok := f.PendingInterrupt()
	if !ok {
		t.Fatal("expected a pending interrupt")
	}
	if !trap.IsInterrupt() || trap.Cause() != IrqMExtern {
		t.Fatalf("expected machine-external to win priority, got cause %d", trap.Cause())
	}
}

func TestDelegatedInterruptIgnoredInMachineMode(t *testing.T) {
	f := New(0)
	f.Priv = PrivMachine
	f.MIDeleg = 1 << IrqSTimer
	f.MIE = 1 << IrqSTimer
	f.MIP = 1 << IrqSTimer

	if _, ok := f.PendingInterrupt(); ok {
		t.Fatal("delegated interrupt should not preempt M-mode execution")
	}
}

func TestXIPCombinesExternalPin(t *testing.T) {
	f := New(0)
	f.ExtSEIP = true
	if f.XIP()&(1<<IrqSExtern) == 0 {
		t.Fatal("xip should OR in the external SEIP pin")
	}
}

func TestValidation0WriteSignalsSideEffect(t *testing.T) {
	f := New(0)
	_, side, ok := f.Write(CsrValidation0, 0x1FEED000)
	if !ok || side != SideValidation0Write {
		t.Fatalf("validation0 write: ok=%v side=%v, want SideValidation0Write", ok, side)
	}
	if v, _, _ := f.Read(CsrValidation0); v != 0x1FEED000 {
		t.Fatalf("validation0 readback = %#x, want 0x1FEED000", v)
	}
}

func TestValidation1PutCharSignalsSideEffect(t *testing.T) {
	f := New(0)
	ctrl := uint64(DiagCtrlPutChar) << 56
	_, side, ok := f.Write(CsrValidation1, ctrl|'A')
	if !ok || side != SideValidation1PutChar {
		t.Fatalf("validation1 putchar write: ok=%v side=%v, want SideValidation1PutChar", ok, side)
	}
}

func TestValidation1CycleModeReadsSnapshot(t *testing.T) {
	f := New(0)
	f.Cycle = 0x42
	ctrl := uint64(DiagCtrlCycle) << 56
	if _, _, ok := f.Write(CsrValidation1, ctrl); !ok {
		t.Fatal("validation1 cycle-mode write rejected")
	}
	v, _, ok := f.Read(CsrValidation1)
	if !ok || v != 0x42 {
		t.Fatalf("validation1 cycle read = %#x, ok=%v, want 0x42", v, ok)
	}
}

func TestValidation1ReadsZeroBeforeCycleMode(t *testing.T) {
	f := New(0)
	f.Cycle = 0x99
	v, _, ok := f.Read(CsrValidation1)
	if !ok || v != 0 {
		t.Fatalf("validation1 read before cycle mode = %#x, ok=%v, want 0", v, ok)
	}
}

package system

import (
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

func smallConfig() Config {
	return Config{ShireCount: 2, HartsPerShire: 4, DRAMSize: 1 << 20}
}

func encodeI(imm int32, rs1, funct3, rd, opcode uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func storeWord(s *System, addr uint64, word uint32) {
	s.Bus.Write(addr, 4, uint64(word), memmap.Agent{})
}

func TestNewSystemTopology(t *testing.T) {
	s := New(smallConfig())
	if len(s.Shires) != 2 {
		t.Fatalf("expected 2 shires, got %d", len(s.Shires))
	}
	if len(s.Shires[0].Harts) != 4 {
		t.Fatalf("expected 4 harts in shire 0, got %d", len(s.Shires[0].Harts))
	}
	if len(s.Shires[1].Harts) != ioShireHarts {
		t.Fatalf("expected the last shire to model the IO shire with %d hart, got %d", ioShireHarts, len(s.Shires[1].Harts))
	}
	if len(s.Shires[0].Cores) != 2 {
		t.Fatalf("expected 2 cores (4 harts / 2) in shire 0, got %d", len(s.Shires[0].Cores))
	}
}

func TestStepRetiresInstructionAndAdvancesClock(t *testing.T) {
	s := New(smallConfig())
	h := s.Harts()[0]
	h.PC = memmap.DRAMBase
	storeWord(s, h.PC, encodeI(7, 0, 0, 1, 0x13)) // addi x1, x0, 7

	if !s.Step() {
		t.Fatal("expected Step to report progress")
	}
	if h.GetGPR(1) != 7 {
		t.Fatalf("expected x1=7, got %d", h.GetGPR(1))
	}
	if s.Cycle() != 1 {
		t.Fatalf("expected cycle=1, got %d", s.Cycle())
	}
}

func TestWFIParksHartUntilSchedulerWakesIt(t *testing.T) {
	s := New(smallConfig())
	h0 := s.Harts()[0]
	h1 := s.Harts()[1]
	h0.PC = memmap.DRAMBase
	h1.PC = memmap.DRAMBase + 0x1000

	storeWord(s, h0.PC, 0x10500073)                   // wfi
	storeWord(s, h1.PC, encodeI(1, 0, 0, 2, 0x13))     // addi x2, x0, 1

	s.Step() // h0 executes wfi and parks
	if s.states[0] != stateWFI {
		t.Fatalf("expected hart 0 parked on wfi, got state %d", s.states[0])
	}

	s.Step() // scheduler should skip h0 and run h1
	if h1.GetGPR(2) != 1 {
		t.Fatalf("expected hart 1 to have executed its addi, x2=%d", h1.GetGPR(2))
	}

	h0.CSR.MStatus |= 1 << 3 // MIE
	h0.CSR.MIE |= 1 << csr.IrqMExtern
	h0.CSR.MIP |= 1 << csr.IrqMExtern

	if !s.wakeParked() {
		t.Fatal("expected a pending external interrupt to wake the parked hart")
	}
	if s.states[0] != stateRunnable {
		t.Fatalf("expected hart 0 to be runnable again, got state %d", s.states[0])
	}
}

func TestResetRestoresHartToDRAMBaseMachineMode(t *testing.T) {
	s := New(smallConfig())
	h := s.Harts()[0]
	h.PC = 0xdead0000
	h.CSR.Priv = csr.PrivUser
	h.GPR[5] = 0x42

	s.Reset()

	h = s.Harts()[0]
	if h.PC != memmap.DRAMBase {
		t.Fatalf("expected reset PC at DRAM base, got %#x", h.PC)
	}
	if h.CSR.Priv != csr.PrivMachine {
		t.Fatalf("expected reset to machine mode, got %d", h.CSR.Priv)
	}
	if h.GPR[5] != 0 {
		t.Fatalf("expected reset to clear GPRs, got x5=%#x", h.GPR[5])
	}
}

func TestExclPropagateMirrorsSharedCoreStateToSibling(t *testing.T) {
	s := New(smallConfig())
	h0 := s.Harts()[0]
	h1 := s.Harts()[1] // SMT sibling of h0, same core

	s.ExclPropagate(h0, csr.CsrMATP, 0x1234)
	if h1.CSR.MATP != 0x1234 {
		t.Fatalf("expected matp propagated to sibling, got %#x", h1.CSR.MATP)
	}

	s.ExclPropagate(h0, csr.CsrMCacheControl, 0x3)
	if h1.CSR.MCacheControl != 0x3 {
		t.Fatalf("expected mcache_control propagated to sibling, got %#x", h1.CSR.MCacheControl)
	}
}

func TestExclModeBlocksSiblingUntilReleased(t *testing.T) {
	s := New(Config{ShireCount: 2, HartsPerShire: 2, DRAMSize: 1 << 20})
	h0 := s.Harts()[0]
	h1 := s.Harts()[1]
	h0.PC = memmap.DRAMBase
	h1.PC = memmap.DRAMBase + 0x1000
	storeWord(s, h0.PC, encodeI(1, 0, 0, 1, 0x13))   // addi x1, x0, 1
	storeWord(s, h1.PC, encodeI(99, 0, 0, 2, 0x13))  // addi x2, x0, 99

	s.ExclPropagate(h0, csr.CsrExclMode, 1)
	if h1.CSR.ExclMode != 1 {
		t.Fatalf("expected excl_mode propagated to sibling, got %d", h1.CSR.ExclMode)
	}

	for i := 0; i < 4; i++ {
		if !s.Step() {
			t.Fatal("expected progress while h0 holds exclusive mode")
		}
	}
	if h0.GetGPR(1) != 1 {
		t.Fatalf("expected exclusive-mode holder h0 to keep executing, x1=%d", h0.GetGPR(1))
	}
	if h1.GetGPR(2) != 0 {
		t.Fatalf("expected sibling h1 blocked while h0 holds exclusive mode, x2=%d", h1.GetGPR(2))
	}

	s.ExclPropagate(h0, csr.CsrExclMode, 0)
	for i := 0; i < 3 && h1.GetGPR(2) == 0; i++ {
		if !s.Step() {
			t.Fatal("expected progress after exclusive mode released")
		}
	}
	if h1.GetGPR(2) != 99 {
		t.Fatalf("expected sibling h1 to run once exclusive mode released, x2=%d", h1.GetGPR(2))
	}
}

func TestCoresInSameShireShareOneReduceHub(t *testing.T) {
	s := New(smallConfig())
	sh := s.Shires[0]
	if len(sh.Cores) < 2 {
		t.Fatalf("expected at least 2 cores in shire 0, got %d", len(sh.Cores))
	}
	if sh.Cores[0].Tensor.Hub == nil {
		t.Fatal("expected a non-nil ReduceHub wired into core 0's tensor engine")
	}
	if sh.Cores[0].Tensor.Hub != sh.Cores[1].Tensor.Hub {
		t.Fatal("expected every core in a shire to share the same TensorReduce rendezvous hub")
	}
}

func TestResetShireRewiresReduceHub(t *testing.T) {
	s := New(smallConfig())
	sh := s.Shires[0]
	oldHub := sh.Hub

	s.ResetShire(sh.ID)

	if sh.Hub == oldHub {
		t.Fatal("expected ResetShire to install a fresh ReduceHub")
	}
	for _, c := range sh.Cores {
		if c.Tensor.Hub != sh.Hub {
			t.Fatal("expected every core's tensor engine to be rewired to the post-reset hub")
		}
	}
}

func TestTimerTickRaisesMachineTimerInterrupt(t *testing.T) {
	s := New(smallConfig())
	s.Timer.MTimeCmp = 50

	for i := 0; i < peripheralTickPeriod; i++ {
		s.advanceClock(1)
	}

	for _, h := range s.Harts() {
		if h.CSR.MIP&(1<<csr.IrqMTimer) == 0 {
			t.Fatalf("expected timer interrupt pending on hart %d after tick", h.HartID)
		}
	}
}

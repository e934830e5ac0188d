package isa

import (
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/checker"
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/mmu"
)

func newTestInterpreter() (*Interpreter, *hart.Hart) {
	bus := memmap.New(nil)
	bus.AddRegion(memmap.NewDRAM(1<<20, 0))
	tr := mmu.New(bus)
	ip := New(bus, tr, nil, checker.New(nil))
	h := hart.New(0, 0)
	h.PC = memmap.DRAMBase
	h.CSR.Priv = csr.PrivMachine
	return ip, h
}

func encodeI(imm int32, rs1, funct3, rd, opcode uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func storeWord(ip *Interpreter, addr uint64, word uint32) {
	ip.Bus.Write(addr, 4, uint64(word), memmap.Agent{})
}

func TestStepExecutesADDI(t *testing.T) {
	ip, h := newTestInterpreter()
	storeWord(ip, h.PC, encodeI(41, 0, 0, 1, 0x13)) // addi x1, x0, 41

	res := ip.Step(h)
	if !res.Retired || res.Trapped {
		t.Fatalf("expected clean retire, got %+v", res)
	}
	if h.GetGPR(1) != 41 {
		t.Fatalf("expected x1=41, got %d", h.GetGPR(1))
	}
	if h.PC != memmap.DRAMBase+4 {
		t.Fatalf("expected pc advance by 4, got %#x", h.PC)
	}
}

func TestStepExecutesADD(t *testing.T) {
	ip, h := newTestInterpreter()
	h.SetGPR(1, 10)
	h.SetGPR(2, 32)
	storeWord(ip, h.PC, encodeR(0, 2, 1, 0, 3, 0x33)) // add x3, x1, x2

	ip.Step(h)
	if h.GetGPR(3) != 42 {
		t.Fatalf("expected x3=42, got %d", h.GetGPR(3))
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	ip, h := newTestInterpreter()
	h.SetGPR(1, memmap.DRAMBase+0x100)
	h.SetGPR(2, 0xdeadbeef)

	// sw x2, 0(x1): S-type encoding.
	swInst := (uint32(0)&0x7f)<<25 | 2<<20 | 1<<15 | 2<<12 | (uint32(0)&0x1f)<<7 | 0x23
	storeWord(ip, h.PC, swInst)
	res := ip.Step(h)
	if res.Trapped {
		t.Fatalf("unexpected trap on store: %+v", res)
	}

	// lw x3, 0(x1)
	lwInst := encodeI(0, 1, 2, 3, 0x03)
	storeWord(ip, h.PC, lwInst)
	res = ip.Step(h)
	if res.Trapped {
		t.Fatalf("unexpected trap on load: %+v", res)
	}
	// lw sign-extends the loaded word to 64 bits, and bit 31 of 0xdeadbeef is set.
	if h.GetGPR(3) != 0xffffffffdeadbeef {
		t.Fatalf("expected round-tripped 0xffffffffdeadbeef, got %#x", h.GetGPR(3))
	}
}

func TestEcallTrapsToMachineMode(t *testing.T) {
	ip, h := newTestInterpreter()
	storeWord(ip, h.PC, 0x00000073) // ecall

	res := ip.Step(h)
	if !res.Trapped {
		t.Fatal("expected ecall to trap")
	}
	if h.CSR.MCause != csr.CauseMEcall {
		t.Fatalf("expected mcause=MEcall, got %d", h.CSR.MCause)
	}
}

func TestDivideByZeroReturnsAllOnes(t *testing.T) {
	ip, h := newTestInterpreter()
	h.SetGPR(1, 100)
	h.SetGPR(2, 0)
	storeWord(ip, h.PC, encodeR(0x01, 2, 1, 4, 3, 0x33)) // div x3, x1, x2

	ip.Step(h)
	if int64(h.GetGPR(3)) != -1 {
		t.Fatalf("expected -1 for divide by zero, got %d", int64(h.GetGPR(3)))
	}
}

type fakeDiag struct {
	signalHart  *hart.Hart
	signalValue uint64
	putChars    []byte
}

func (f *fakeDiag) DiagSignal(h *hart.Hart, value uint64) {
	f.signalHart = h
	f.signalValue = value
}

func (f *fakeDiag) DiagPutChar(h *hart.Hart, b byte) {
	f.putChars = append(f.putChars, b)
}

func TestDispatchTensorSideRoutesValidationWritesToDiagPort(t *testing.T) {
	ip, h := newTestInterpreter()
	fd := &fakeDiag{}
	ip.SetDiag(fd)

	if trap := ip.dispatchTensorSide(h, csr.SideValidation0Write, 0, 0x1FEED000); trap != 0 {
		t.Fatalf("unexpected trap dispatching validation0: %v", trap)
	}
	if fd.signalHart != h || fd.signalValue != 0x1FEED000 {
		t.Fatalf("DiagSignal not invoked with expected args: hart=%v value=%#x", fd.signalHart, fd.signalValue)
	}

	if trap := ip.dispatchTensorSide(h, csr.SideValidation1PutChar, 0, 'x'); trap != 0 {
		t.Fatalf("unexpected trap dispatching validation1 putchar: %v", trap)
	}
	if len(fd.putChars) != 1 || fd.putChars[0] != 'x' {
		t.Fatalf("DiagPutChar not invoked with expected byte: %v", fd.putChars)
	}
}

func TestDispatchTensorSideSfenceInvalidatesFetchCacheWithNilTensor(t *testing.T) {
	ip, h := newTestInterpreter()
	if ip.Tensor != nil {
		t.Fatal("test setup expects a nil TensorEngine")
	}
	// Must not panic even though no TensorEngine is wired; regression
	// test for SideSfenceVMA previously being unreachable in that case.
	if trap := ip.dispatchTensorSide(h, csr.SideSfenceVMA, 0, 0); trap != 0 {
		t.Fatalf("unexpected trap dispatching sfence.vma: %v", trap)
	}
}

type fakeExcl struct {
	hart   *hart.Hart
	csrNum uint32
	value  uint64
}

func (f *fakeExcl) ExclPropagate(h *hart.Hart, csrNum uint32, value uint64) {
	f.hart = h
	f.csrNum = csrNum
	f.value = value
}

func TestDispatchTensorSideRoutesExclusivePropagateToExclPort(t *testing.T) {
	ip, h := newTestInterpreter()
	fe := &fakeExcl{}
	ip.SetExcl(fe)

	if trap := ip.dispatchTensorSide(h, csr.SideExclusivePropagate, csr.CsrExclMode, 1); trap != 0 {
		t.Fatalf("unexpected trap dispatching excl-mode propagate: %v", trap)
	}
	if fe.hart != h || fe.csrNum != csr.CsrExclMode || fe.value != 1 {
		t.Fatalf("ExclPropagate not invoked with expected args: hart=%v csr=%#x value=%#x", fe.hart, fe.csrNum, fe.value)
	}
}

func TestDispatchTensorSideExclPortNilIsSafe(t *testing.T) {
	ip, h := newTestInterpreter()
	if ip.Excl != nil {
		t.Fatal("test setup expects a nil ExclPort")
	}
	if trap := ip.dispatchTensorSide(h, csr.SideExclusivePropagate, csr.CsrExclMode, 1); trap != 0 {
		t.Fatalf("unexpected trap with nil ExclPort: %v", trap)
	}
}

func TestDiagPortNilIsSafe(t *testing.T) {
	ip, h := newTestInterpreter()
	if ip.Diag != nil {
		t.Fatal("test setup expects a nil DiagPort")
	}
	if trap := ip.dispatchTensorSide(h, csr.SideValidation0Write, 0, 0x1FEED000); trap != 0 {
		t.Fatalf("unexpected trap with nil DiagPort: %v", trap)
	}
}

func TestAMOCMPSWAPUsesX31AsExpectedValue(t *testing.T) {
	ip, h := newTestInterpreter()
	addr := uint64(memmap.DRAMBase + 0x200)
	ip.Bus.Write(addr, 4, 99, memmap.Agent{})
	h.SetGPR(1, addr)  // rs1: address
	h.SetGPR(2, 123)   // rs2: desired value
	h.SetGPR(31, 99)   // x31: expected value
	h.SetGPR(3, 0xdead) // x3: unrelated register, never used as the comparand

	// amocmpswapl.w rd=5, rs1=x1, rs2=x2: funct7 = op5(0x05)<<2 | local(0), funct3=2 (word).
	inst := uint32(0x14)<<25 | 2<<20 | 1<<15 | 2<<12 | 5<<7 | 0x2f
	storeWord(ip, h.PC, inst)

	res := ip.Step(h)
	if res.Trapped {
		t.Fatalf("unexpected trap: %+v", res)
	}
	if h.GetGPR(5) != 99 {
		t.Fatalf("expected rd to receive the observed old value 99, got %d", h.GetGPR(5))
	}
	got, _ := ip.Bus.Read(addr, 4, memmap.Agent{})
	if got != 123 {
		t.Fatalf("expected memory swapped to 123 when x31 matched, got %d", got)
	}
}

func TestAMOCMPSWAPLeavesMemoryWhenX31Mismatches(t *testing.T) {
	ip, h := newTestInterpreter()
	addr := uint64(memmap.DRAMBase + 0x200)
	ip.Bus.Write(addr, 4, 7, memmap.Agent{})
	h.SetGPR(1, addr)
	h.SetGPR(2, 123)
	h.SetGPR(31, 99) // does not match the 7 stored in memory

	inst := uint32(0x14)<<25 | 2<<20 | 1<<15 | 2<<12 | 5<<7 | 0x2f
	storeWord(ip, h.PC, inst)

	ip.Step(h)
	got, _ := ip.Bus.Read(addr, 4, memmap.Agent{})
	if got != 7 {
		t.Fatalf("expected memory unchanged on mismatch, got %d", got)
	}
	if h.GetGPR(5) != 7 {
		t.Fatalf("expected rd to receive observed old value 7, got %d", h.GetGPR(5))
	}
}

func setVecLane(h *hart.Hart, r uint32, lane int, v uint32) {
	shift := uint(32 * (lane % 2))
	mask := uint64(0xffffffff) << shift
	h.Vec[r][lane/2] = (h.Vec[r][lane/2] &^ mask) | (uint64(v) << shift)
}

func vecLane(h *hart.Hart, r uint32, lane int) uint32 {
	return uint32(h.Vec[r][lane/2] >> uint(32*(lane%2)))
}

func TestFADDPSIsLanewise(t *testing.T) {
	ip, h := newTestInterpreter()
	oneF := uint32(0x3f800000) // 1.0f
	twoF := uint32(0x40000000) // 2.0f
	for lane := 0; lane < 8; lane++ {
		setVecLane(h, 1, lane, oneF)
		setVecLane(h, 2, lane, twoF)
	}
	// custom-0 opcode (0x0B), funct3=0 selects packed-single, funct7=0 selects fadd.ps.
	inst := encodeR(0x00, 2, 1, 0, 3, 0x0b)
	storeWord(ip, h.PC, inst)

	res := ip.Step(h)
	if res.Trapped {
		t.Fatalf("unexpected trap: %+v", res)
	}
	for lane := 0; lane < 8; lane++ {
		if got := vecLane(h, 3, lane); got != 0x40400000 { // 3.0f
			t.Fatalf("lane %d: expected 3.0f (%#x), got %#x", lane, 0x40400000, got)
		}
	}
}

func TestMaskPopcAndPopczSumToMLEN(t *testing.T) {
	ip, h := newTestInterpreter()
	h.Mask[2] = 0b0000_1011 // 3 bits set within the low 8 lanes

	popcInst := encodeR(0, 0, 2, 2, 5, 0x0b)  // funct3=2 (mask), rs2=0 -> maskpopc
	popczInst := encodeR(0, 1, 2, 2, 6, 0x0b) // rs2=1 -> maskpopcz

	storeWord(ip, h.PC, popcInst)
	ip.Step(h)
	storeWord(ip, h.PC, popczInst)
	ip.Step(h)

	if h.GetGPR(5)+h.GetGPR(6) != hart.MaskLanes {
		t.Fatalf("expected maskpopc+maskpopcz == MLEN(%d), got %d+%d", hart.MaskLanes, h.GetGPR(5), h.GetGPR(6))
	}
	if h.GetGPR(5) != 3 {
		t.Fatalf("expected maskpopc=3, got %d", h.GetGPR(5))
	}
}

func TestBranchNotTakenFallsThrough(t *testing.T) {
	ip, h := newTestInterpreter()
	h.SetGPR(1, 1)
	h.SetGPR(2, 2)
	// beq x1, x2, 0 -> condition false, should just advance by 4. The
	// branch target immediate is irrelevant since it is never taken.
	beqInst := uint32(2)<<20 | 1<<15 | 0<<12 | 0x63
	storeWord(ip, h.PC, beqInst)

	ip.Step(h)
	if h.PC != memmap.DRAMBase+4 {
		t.Fatalf("expected fallthrough to pc+4, got %#x", h.PC)
	}
}

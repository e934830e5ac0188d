/*
 * etsoc-sim - Instruction interpreter
 *
 * Copyright 2026, ET-SoC emulator contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package isa implements the fetch-decode-execute loop of spec.md §4.5
// (C5): one instruction per call to Step, with an early/late register
// write split (the destination register is only committed after every
// trap check for that instruction has passed), sign-extension per
// RV64I/M/A/F semantics, coherent RMW stores, and tensor-engine CSR
// side-effect dispatch. Grounded on the teacher's emu/cpu/cpu.go
// execute() loop (fetch opcode byte -> dispatch-table lookup -> call
// handler -> check condition code / interrupt pending), generalized from
// an 8-bit opcode dispatch to decode.Decode's two-level Op.
package isa

import (
	"math/bits"

	"github.com/esperanto-oss/etsoc-sim/internal/checker"
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/decode"
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/mmu"
	"github.com/esperanto-oss/etsoc-sim/internal/softfloat"
)

// TensorEngine is implemented by internal/tensor and wired in at system
// construction time, avoiding an import cycle (tensor instructions are
// triggered by CSR writes the csr package already classifies into a
// csr.SideEffect; isa only needs to forward that classification).
type TensorEngine interface {
	Load(h *hart.Hart, value uint64) csr.Trap
	LoadL2(h *hart.Hart, value uint64) csr.Trap
	Quant(h *hart.Hart, value uint64) csr.Trap
	FMA(h *hart.Hart, value uint64) csr.Trap
	Store(h *hart.Hart, value uint64) csr.Trap
	Reduce(h *hart.Hart, value uint64) csr.Trap
	Wait(h *hart.Hart, value uint64) csr.Trap
}

// DiagPort is implemented by internal/system's System and receives the
// Validation-register diagnostic hand-off of spec.md §6: a UART byte
// sink on validation1 writes and the PASS/FAIL end-of-test signal on
// validation0 writes. Optional: a nil Diag simply drops these side
// effects, which is fine for tests that never exercise them.
type DiagPort interface {
	DiagPutChar(h *hart.Hart, b byte)
	DiagSignal(h *hart.Hart, value uint64)
}

// ExclPort is implemented by internal/system's System and carries the
// exclusive-mode core-state propagation of spec.md §4.7: a write to
// matp/menable_shadows/excl_mode/mcache_control/ucache_control must
// mirror onto the writing hart's SMT sibling and gate the sibling's
// schedulability while excl_mode is held, since System (not isa) owns
// the core/sibling relationship.
type ExclPort interface {
	ExclPropagate(h *hart.Hart, csrNum uint32, value uint64)
}

// Interpreter executes instructions for one hart against a shared bus.
type Interpreter struct {
	Bus     *memmap.Bus
	MMU     *mmu.Translator
	Tensor  TensorEngine
	Diag    DiagPort
	Excl    ExclPort
	Checker *checker.Checker
}

func New(bus *memmap.Bus, tr *mmu.Translator, tensor TensorEngine, chk *checker.Checker) *Interpreter {
	return &Interpreter{Bus: bus, MMU: tr, Tensor: tensor, Checker: chk}
}

// SetDiag installs the Validation-register diagnostic hand-off,
// separate from New since it is optional and would otherwise force
// every existing caller (tests included) to thread a nil through.
func (ip *Interpreter) SetDiag(d DiagPort) { ip.Diag = d }

// SetExcl installs the exclusive-mode sibling-propagation hook,
// separate from New for the same reason as SetDiag.
func (ip *Interpreter) SetExcl(e ExclPort) { ip.Excl = e }

// StepResult reports what happened during one Step call, for
// internal/system's scheduler and instruction-retired counters.
type StepResult struct {
	Retired bool
	Trapped bool
	WFI     bool
}

// Step fetches, decodes, and executes a single instruction on h.
func (ip *Interpreter) Step(h *hart.Hart) StepResult {
	if trap, ok := h.CSR.PendingInterrupt(); ok {
		ip.takeTrap(h, trap)
		return StepResult{Trapped: true}
	}

	word, trap, ok := ip.fetch(h)
	if !ok {
		ip.takeTrap(h, trap)
		return StepResult{Trapped: true}
	}

	if h.MCodeTrap(word) {
		ip.takeTrap(h, csr.Exception(csr.CauseBreakpoint))
		return StepResult{Trapped: true}
	}

	d := decode.Decode(word)
	h.NPC = h.PC + uint64(d.Size)

	if trap, trapped := ip.execute(h, d); trapped {
		ip.takeTrap(h, trap)
		return StepResult{Trapped: true}
	}

	h.PC = h.NPC
	return StepResult{Retired: true, WFI: d.Flags&decode.FlagWFI != 0}
}

func (ip *Interpreter) fetch(h *hart.Hart) (uint32, csr.Trap, bool) {
	if w, hit := h.CachedFetch(h.PC); hit {
		return w, 0, true
	}
	pa, fault := ip.MMU.Translate(h.CSR, h.PC, mmu.AccessFetch, agentOf(h, memmap.AccessFetch))
	if fault != mmu.FaultNone {
		return 0, csr.Exception(csr.CauseInstructionPageFault), false
	}
	lo, err := ip.Bus.Read(pa, 2, agentOf(h, memmap.AccessFetch))
	if err != nil {
		return 0, csr.Exception(csr.CauseInstructionFault), false
	}
	if decode.IsCompressed(uint16(lo)) {
		h.StoreFetchCache(h.PC, uint32(lo))
		return uint32(lo), 0, true
	}
	hi, err := ip.Bus.Read(pa+2, 2, agentOf(h, memmap.AccessFetch))
	if err != nil {
		return 0, csr.Exception(csr.CauseInstructionFault), false
	}
	word := uint32(lo) | uint32(hi)<<16
	h.StoreFetchCache(h.PC, word)
	return word, 0, true
}

func agentOf(h *hart.Hart, t memmap.AccessType) memmap.Agent {
	return memmap.Agent{ShireID: h.ShireID, HartID: h.HartID, Type: t}
}

func (ip *Interpreter) takeTrap(h *hart.Hart, trap csr.Trap) {
	toSupervisor := false
	if !trap.IsInterrupt() {
		toSupervisor = h.CSR.Priv != csr.PrivMachine && h.CSR.MEDeleg&(1<<trap.Cause()) != 0
	} else {
		toSupervisor = h.CSR.Priv != csr.PrivMachine && h.CSR.MIDeleg&(1<<trap.Cause()) != 0
	}
	h.PC = h.CSR.EnterTrap(trap, h.PC, toSupervisor)
	h.InvalidateFetchCache()
}

// execute runs one decoded instruction; returns (trap, true) if it
// faults, leaving h.PC/GPR untouched (early/late write split: no
// architectural state is committed until every fault check has passed).
func (ip *Interpreter) execute(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	switch d.Op {
	case decode.OpIllegal:
		return csr.Exception(csr.CauseIllegalInstruction), true

	case decode.OpLUI:
		h.SetGPR(d.Rd, uint64(d.Imm))
	case decode.OpAUIPC:
		h.SetGPR(d.Rd, h.PC+uint64(d.Imm))

	case decode.OpJAL:
		h.SetGPR(d.Rd, h.NPC)
		h.NPC = h.PC + uint64(d.Imm)
	case decode.OpJALR:
		target := (h.GetGPR(d.Rs1) + uint64(d.Imm)) &^ 1
		h.SetGPR(d.Rd, h.NPC)
		h.NPC = target

	case decode.OpBEQ:
		if h.GetGPR(d.Rs1) == h.GetGPR(d.Rs2) {
			h.NPC = h.PC + uint64(d.Imm)
		}
	case decode.OpBNE:
		if h.GetGPR(d.Rs1) != h.GetGPR(d.Rs2) {
			h.NPC = h.PC + uint64(d.Imm)
		}
	case decode.OpBLT:
		if int64(h.GetGPR(d.Rs1)) < int64(h.GetGPR(d.Rs2)) {
			h.NPC = h.PC + uint64(d.Imm)
		}
	case decode.OpBGE:
		if int64(h.GetGPR(d.Rs1)) >= int64(h.GetGPR(d.Rs2)) {
			h.NPC = h.PC + uint64(d.Imm)
		}
	case decode.OpBLTU:
		if h.GetGPR(d.Rs1) < h.GetGPR(d.Rs2) {
			h.NPC = h.PC + uint64(d.Imm)
		}
	case decode.OpBGEU:
		if h.GetGPR(d.Rs1) >= h.GetGPR(d.Rs2) {
			h.NPC = h.PC + uint64(d.Imm)
		}

	case decode.OpLB, decode.OpLH, decode.OpLW, decode.OpLD, decode.OpLBU, decode.OpLHU, decode.OpLWU:
		return ip.execLoad(h, d)
	case decode.OpSB, decode.OpSH, decode.OpSW, decode.OpSD:
		return ip.execStore(h, d)

	case decode.OpADDI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)+uint64(d.Imm))
	case decode.OpSLTI:
		h.SetGPR(d.Rd, boolU64(int64(h.GetGPR(d.Rs1)) < d.Imm))
	case decode.OpSLTIU:
		h.SetGPR(d.Rd, boolU64(h.GetGPR(d.Rs1) < uint64(d.Imm)))
	case decode.OpXORI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)^uint64(d.Imm))
	case decode.OpORI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)|uint64(d.Imm))
	case decode.OpANDI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)&uint64(d.Imm))
	case decode.OpSLLI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)<<d.Shamt)
	case decode.OpSRLI:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)>>d.Shamt)
	case decode.OpSRAI:
		h.SetGPR(d.Rd, uint64(int64(h.GetGPR(d.Rs1))>>d.Shamt))

	case decode.OpADD:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)+h.GetGPR(d.Rs2))
	case decode.OpSUB:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)-h.GetGPR(d.Rs2))
	case decode.OpSLL:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)<<(h.GetGPR(d.Rs2)&0x3f))
	case decode.OpSLT:
		h.SetGPR(d.Rd, boolU64(int64(h.GetGPR(d.Rs1)) < int64(h.GetGPR(d.Rs2))))
	case decode.OpSLTU:
		h.SetGPR(d.Rd, boolU64(h.GetGPR(d.Rs1) < h.GetGPR(d.Rs2)))
	case decode.OpXOR:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)^h.GetGPR(d.Rs2))
	case decode.OpSRL:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)>>(h.GetGPR(d.Rs2)&0x3f))
	case decode.OpSRA:
		h.SetGPR(d.Rd, uint64(int64(h.GetGPR(d.Rs1))>>(h.GetGPR(d.Rs2)&0x3f)))
	case decode.OpOR:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)|h.GetGPR(d.Rs2))
	case decode.OpAND:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)&h.GetGPR(d.Rs2))

	case decode.OpADDIW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))+uint32(d.Imm)))
	case decode.OpSLLIW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))<<d.Shamt))
	case decode.OpSRLIW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))>>d.Shamt))
	case decode.OpSRAIW:
		h.SetGPR(d.Rd, uint64(int32(uint32(h.GetGPR(d.Rs1)))>>d.Shamt))
	case decode.OpADDW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))+uint32(h.GetGPR(d.Rs2))))
	case decode.OpSUBW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))-uint32(h.GetGPR(d.Rs2))))
	case decode.OpSLLW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))<<(h.GetGPR(d.Rs2)&0x1f)))
	case decode.OpSRLW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))>>(h.GetGPR(d.Rs2)&0x1f)))
	case decode.OpSRAW:
		h.SetGPR(d.Rd, uint64(int32(uint32(h.GetGPR(d.Rs1)))>>(h.GetGPR(d.Rs2)&0x1f)))

	case decode.OpFENCE, decode.OpFENCEI:
		// no-op: this emulator has no speculative reordering to fence against.
	case decode.OpECALL:
		switch h.CSR.Priv {
		case csr.PrivMachine:
			return csr.Exception(csr.CauseMEcall), true
		case csr.PrivSupervisor:
			return csr.Exception(csr.CauseSEcall), true
		default:
			return csr.Exception(csr.CauseUEcall), true
		}
	case decode.OpEBREAK:
		return csr.Exception(csr.CauseBreakpoint), true

	case decode.OpMUL:
		h.SetGPR(d.Rd, h.GetGPR(d.Rs1)*h.GetGPR(d.Rs2))
	case decode.OpMULH:
		hi, _ := bits.Mul64(uint64(absI64(int64(h.GetGPR(d.Rs1)))), uint64(absI64(int64(h.GetGPR(d.Rs2)))))
		h.SetGPR(d.Rd, mulhSigned(int64(h.GetGPR(d.Rs1)), int64(h.GetGPR(d.Rs2)), hi))
	case decode.OpMULHU:
		hi, _ := bits.Mul64(h.GetGPR(d.Rs1), h.GetGPR(d.Rs2))
		h.SetGPR(d.Rd, hi)
	case decode.OpMULHSU:
		h.SetGPR(d.Rd, mulhsu(int64(h.GetGPR(d.Rs1)), h.GetGPR(d.Rs2)))
	case decode.OpDIV:
		h.SetGPR(d.Rd, divSigned(int64(h.GetGPR(d.Rs1)), int64(h.GetGPR(d.Rs2))))
	case decode.OpDIVU:
		h.SetGPR(d.Rd, divUnsigned(h.GetGPR(d.Rs1), h.GetGPR(d.Rs2)))
	case decode.OpREM:
		h.SetGPR(d.Rd, remSigned(int64(h.GetGPR(d.Rs1)), int64(h.GetGPR(d.Rs2))))
	case decode.OpREMU:
		h.SetGPR(d.Rd, remUnsigned(h.GetGPR(d.Rs1), h.GetGPR(d.Rs2)))
	case decode.OpMULW:
		h.SetGPR(d.Rd, signExt32(uint32(h.GetGPR(d.Rs1))*uint32(h.GetGPR(d.Rs2))))
	case decode.OpDIVW:
		h.SetGPR(d.Rd, signExt32(uint32(divSigned(int64(int32(uint32(h.GetGPR(d.Rs1)))), int64(int32(uint32(h.GetGPR(d.Rs2))))))))
	case decode.OpDIVUW:
		h.SetGPR(d.Rd, signExt32(uint32(divUnsigned(uint64(uint32(h.GetGPR(d.Rs1))), uint64(uint32(h.GetGPR(d.Rs2)))))))
	case decode.OpREMW:
		h.SetGPR(d.Rd, signExt32(uint32(remSigned(int64(int32(uint32(h.GetGPR(d.Rs1)))), int64(int32(uint32(h.GetGPR(d.Rs2))))))))
	case decode.OpREMUW:
		h.SetGPR(d.Rd, signExt32(uint32(remUnsigned(uint64(uint32(h.GetGPR(d.Rs1))), uint64(uint32(h.GetGPR(d.Rs2)))))))

	case decode.OpLRW, decode.OpLRD, decode.OpSCW, decode.OpSCD,
		decode.OpAMOADDL, decode.OpAMOADDG, decode.OpAMOSWAPL, decode.OpAMOSWAPG,
		decode.OpAMOANDL, decode.OpAMOANDG, decode.OpAMOORL, decode.OpAMOORG,
		decode.OpAMOXORL, decode.OpAMOXORG, decode.OpAMOMINL, decode.OpAMOMING,
		decode.OpAMOMAXL, decode.OpAMOMAXG, decode.OpAMOMINUL, decode.OpAMOMINUG,
		decode.OpAMOMAXUL, decode.OpAMOMAXUG, decode.OpAMOCMPSWAPL, decode.OpAMOCMPSWAPG,
		decode.OpSBL, decode.OpSBG, decode.OpSHL, decode.OpSHG:
		return ip.execAMO(h, d)

	case decode.OpFADDS, decode.OpFSUBS, decode.OpFMULS, decode.OpFSQRTS,
		decode.OpFMADDS, decode.OpFMSUBS, decode.OpFNMADDS, decode.OpFNMSUBS,
		decode.OpFSGNJS, decode.OpFSGNJNS, decode.OpFSGNJXS, decode.OpFMINS,
		decode.OpFMAXS, decode.OpFCVTWS, decode.OpFCVTWUS, decode.OpFCVTSW,
		decode.OpFCVTSWU, decode.OpFMVXW, decode.OpFMVWX, decode.OpFEQS,
		decode.OpFLTS, decode.OpFLES, decode.OpFCLASSS, decode.OpFLW, decode.OpFSW:
		return ip.execFloat(h, d)

	case decode.OpFADDPS, decode.OpFSUBPS, decode.OpFMULPS, decode.OpFMINPS, decode.OpFMAXPS,
		decode.OpPADDW, decode.OpPSUBW, decode.OpMASKPOPC, decode.OpMASKPOPCZ:
		return ip.execPacked(h, d)

	case decode.OpCSRRW, decode.OpCSRRS, decode.OpCSRRC,
		decode.OpCSRRWI, decode.OpCSRRSI, decode.OpCSRRCI:
		return ip.execCSR(h, d)

	case decode.OpMRET:
		pc, trap := h.CSR.MRet()
		if trap != 0 {
			return trap, true
		}
		h.NPC = pc
		h.InvalidateFetchCache()
	case decode.OpSRET:
		pc, trap := h.CSR.SRet()
		if trap != 0 {
			return trap, true
		}
		h.NPC = pc
		h.InvalidateFetchCache()
	case decode.OpWFI:
		if trap := h.CSR.WFI(); trap != 0 {
			return trap, true
		}
	case decode.OpSFENCEVMA:
		h.InvalidateFetchCache()

	default:
		return csr.Exception(csr.CauseIllegalInstruction), true
	}
	return 0, false
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func signExt32(v uint32) uint64 { return uint64(int64(int32(v))) }

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func mulhSigned(a, b int64, unsignedHi uint64) uint64 {
	// Re-derive the signed high word from the magnitude product, applying
	// the sign of a*b per the standard two's-complement correction.
	neg := (a < 0) != (b < 0)
	if !neg {
		return unsignedHi
	}
	lo, _ := bits.Mul64(uint64(absI64(a)), uint64(absI64(b)))
	hi := unsignedHi
	// negate the 128-bit (hi:lo) pair
	lo = ^lo + 1
	if lo == 0 {
		hi = ^hi + 1
	} else {
		hi = ^hi
	}
	return hi
}

func mulhsu(a int64, b uint64) uint64 {
	if a >= 0 {
		hi, _ := bits.Mul64(uint64(a), b)
		return hi
	}
	hi, lo := bits.Mul64(uint64(-a), b)
	lo = ^lo + 1
	if lo == 0 {
		hi = ^hi + 1
	} else {
		hi = ^hi
	}
	return hi
}

func divSigned(a, b int64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	if a == -1<<63 && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if a == -1<<63 && b == -1 {
		return 0
	}
	return uint64(a % b)
}

func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

// execLoad and execStore perform the MMU translation, split-page check,
// and bus transaction for ordinary (non-atomic) memory instructions.
func (ip *Interpreter) execLoad(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	vaddr := h.GetGPR(d.Rs1) + uint64(d.Imm)
	size := loadSize(d.Op)
	if mmu.CrossesPage(vaddr, size) {
		return csr.Exception(csr.CauseLoadPageFault), true
	}
	pa, fault := ip.MMU.Translate(h.CSR, vaddr, mmu.AccessLoad, agentOf(h, memmap.AccessLoad))
	if fault != mmu.FaultNone {
		return csr.Exception(csr.CauseLoadPageFault), true
	}
	raw, err := ip.Bus.Read(pa, size, agentOf(h, memmap.AccessLoad))
	if err != nil {
		return csr.Exception(csr.CauseLoadFault), true
	}
	h.SetGPR(d.Rd, extendLoad(d.Op, raw, size))
	return 0, false
}

func (ip *Interpreter) execStore(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	vaddr := h.GetGPR(d.Rs1) + uint64(d.Imm)
	size := storeSize(d.Op)
	if mmu.CrossesPage(vaddr, size) {
		return csr.Exception(csr.CauseStorePageFault), true
	}
	pa, fault := ip.MMU.Translate(h.CSR, vaddr, mmu.AccessStore, agentOf(h, memmap.AccessStore))
	if fault != mmu.FaultNone {
		return csr.Exception(csr.CauseStorePageFault), true
	}
	value := h.GetGPR(d.Rs2)
	if err := ip.Bus.Write(pa, size, value, agentOf(h, memmap.AccessStore)); err != nil {
		return csr.Exception(csr.CauseStoreFault), true
	}
	return 0, false
}

func loadSize(op decode.Op) int {
	switch op {
	case decode.OpLB, decode.OpLBU:
		return 1
	case decode.OpLH, decode.OpLHU:
		return 2
	case decode.OpLW, decode.OpLWU:
		return 4
	default:
		return 8
	}
}

func storeSize(op decode.Op) int {
	switch op {
	case decode.OpSB:
		return 1
	case decode.OpSH:
		return 2
	case decode.OpSW:
		return 4
	default:
		return 8
	}
}

func extendLoad(op decode.Op, raw uint64, size int) uint64 {
	switch op {
	case decode.OpLB:
		return uint64(int64(int8(raw)))
	case decode.OpLH:
		return uint64(int64(int16(raw)))
	case decode.OpLW:
		return uint64(int64(int32(raw)))
	case decode.OpLBU, decode.OpLHU, decode.OpLWU, decode.OpLD:
		return raw
	default:
		return raw
	}
}

// execCSR performs the read-then-write half-barrier required by
// csrrw/csrrs/csrrc: csrrw skips the read entirely when rd == x0 (per
// spec.md §4.7, to avoid faulting on write-only CSRs), and csrrs/csrrc
// skip the write when rs1 == x0 (the all-zero mask case).
func (ip *Interpreter) execCSR(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	isImm := d.Op == decode.OpCSRRWI || d.Op == decode.OpCSRRSI || d.Op == decode.OpCSRRCI
	var rs1Val uint64
	if isImm {
		rs1Val = uint64(d.Rs1)
	} else {
		rs1Val = h.GetGPR(d.Rs1)
	}

	writeOnly := d.Op == decode.OpCSRRW || d.Op == decode.OpCSRRWI
	var old uint64
	if !(writeOnly && d.Rd == 0) {
		v, trap, ok := h.CSR.Read(d.CSR)
		if !ok {
			return trap, true
		}
		old = v
	}

	var newVal uint64
	switch d.Op {
	case decode.OpCSRRW, decode.OpCSRRWI:
		newVal = rs1Val
	case decode.OpCSRRS, decode.OpCSRRSI:
		newVal = old | rs1Val
	case decode.OpCSRRC, decode.OpCSRRCI:
		newVal = old &^ rs1Val
	}

	skipWrite := (d.Op == decode.OpCSRRS || d.Op == decode.OpCSRRSI ||
		d.Op == decode.OpCSRRC || d.Op == decode.OpCSRRCI) && d.Rs1 == 0
	if !skipWrite {
		trap, side, ok := h.CSR.Write(d.CSR, newVal)
		if !ok {
			return trap, true
		}
		if side != csr.SideNone {
			if trap := ip.dispatchTensorSide(h, side, d.CSR, newVal); trap != 0 {
				return trap, true
			}
		}
		if d.CSR == csr.CsrSATP || d.CSR == csr.CsrMATP {
			h.InvalidateFetchCache()
		}
	}
	h.SetGPR(d.Rd, old)
	return 0, false
}

func (ip *Interpreter) dispatchTensorSide(h *hart.Hart, side csr.SideEffect, csrNum uint32, value uint64) csr.Trap {
	switch side {
	case csr.SideValidation0Write:
		if ip.Diag != nil {
			ip.Diag.DiagSignal(h, value)
		}
		return 0
	case csr.SideValidation1PutChar:
		if ip.Diag != nil {
			ip.Diag.DiagPutChar(h, byte(value))
		}
		return 0
	case csr.SideSfenceVMA:
		h.InvalidateFetchCache()
		return 0
	case csr.SideExclusivePropagate:
		if ip.Excl != nil {
			ip.Excl.ExclPropagate(h, csrNum, value)
		}
		return 0
	}
	if ip.Tensor == nil {
		return 0
	}
	switch side {
	case csr.SideTensorLoad:
		return ip.Tensor.Load(h, value)
	case csr.SideTensorLoadL2:
		return ip.Tensor.LoadL2(h, value)
	case csr.SideTensorQuant:
		return ip.Tensor.Quant(h, value)
	case csr.SideTensorFMA:
		return ip.Tensor.FMA(h, value)
	case csr.SideTensorStore:
		return ip.Tensor.Store(h, value)
	case csr.SideTensorReduce:
		return ip.Tensor.Reduce(h, value)
	case csr.SideTensorWait:
		return ip.Tensor.Wait(h, value)
	}
	return 0
}

// execPacked dispatches the packed-single (.ps) float math, packed-
// integer math, and mask ops of spec.md §2/§8 (C5): 8 lanes of 32 bits
// each across one 256-bit vector register for the two vector families,
// and a lane-population count for the mask family. Grounded on
// execFloat's lane-extraction shape, generalized from lane 0 only (the
// ordinary scalar F-extension) to all MaskLanes lanes at once.
func (ip *Interpreter) execPacked(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	vlane := func(r uint32, i int) uint32 {
		return uint32(h.Vec[r][i/2] >> uint(32*(i%2)))
	}
	setVlane := func(r uint32, i int, v uint32) {
		shift := uint(32 * (i % 2))
		mask := uint64(0xffffffff) << shift
		h.Vec[r][i/2] = (h.Vec[r][i/2] &^ mask) | (uint64(v) << shift)
	}

	switch d.Op {
	case decode.OpFADDPS, decode.OpFSUBPS, decode.OpFMULPS, decode.OpFMINPS, decode.OpFMAXPS:
		rm, ok := softfloat.ParseRM(h.CSR.FRM)
		if !ok {
			rm = softfloat.RNE
		}
		var flags softfloat.Flags
		for i := 0; i < hart.MaskLanes; i++ {
			a, b := vlane(d.Rs1, i), vlane(d.Rs2, i)
			var v uint32
			switch d.Op {
			case decode.OpFADDPS:
				var f softfloat.Flags
				v, f = softfloat.F32Add(a, b, rm)
				flags |= f
			case decode.OpFSUBPS:
				var f softfloat.Flags
				v, f = softfloat.F32Sub(a, b, rm)
				flags |= f
			case decode.OpFMULPS:
				var f softfloat.Flags
				v, f = softfloat.F32Mul(a, b, rm)
				flags |= f
			case decode.OpFMINPS:
				v = softfloat.F32MinNum(a, b)
			case decode.OpFMAXPS:
				v = softfloat.F32MaxNum(a, b)
			}
			setVlane(d.Rd, i, v)
		}
		h.CSR.FFlags |= uint8(flags)

	case decode.OpPADDW, decode.OpPSUBW:
		for i := 0; i < hart.MaskLanes; i++ {
			a, b := int32(vlane(d.Rs1, i)), int32(vlane(d.Rs2, i))
			var v int32
			if d.Op == decode.OpPADDW {
				v = a + b
			} else {
				v = a - b
			}
			setVlane(d.Rd, i, uint32(v))
		}

	case decode.OpMASKPOPC, decode.OpMASKPOPCZ:
		m := h.Mask[d.Rs1%hart.NumMask] & (1<<hart.MaskLanes - 1)
		count := bits.OnesCount64(uint64(m))
		if d.Op == decode.OpMASKPOPCZ {
			count = hart.MaskLanes - count
		}
		h.SetGPR(d.Rd, uint64(count))

	default:
		return csr.Exception(csr.CauseIllegalInstruction), true
	}
	return 0, false
}

// execFloat dispatches F-extension instructions to the C1 softfloat
// kernel, operating on lane 0 of the vector register file.
func (ip *Interpreter) execFloat(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	rm, ok := softfloat.ParseRM(uint8(d.RM))
	if !ok {
		rm, ok = softfloat.ParseRM(h.CSR.FRM)
		if !ok {
			return csr.Exception(csr.CauseIllegalInstruction), true
		}
	}
	lane := func(r uint32) uint32 { return uint32(h.Vec[r][0]) }
	setLane := func(r uint32, v uint32) { h.Vec[r][0] = uint64(v) }

	switch d.Op {
	case decode.OpFLW:
		vaddr := h.GetGPR(d.Rs1) + uint64(d.Imm)
		pa, fault := ip.MMU.Translate(h.CSR, vaddr, mmu.AccessLoad, agentOf(h, memmap.AccessLoad))
		if fault != mmu.FaultNone {
			return csr.Exception(csr.CauseLoadPageFault), true
		}
		raw, err := ip.Bus.Read(pa, 4, agentOf(h, memmap.AccessLoad))
		if err != nil {
			return csr.Exception(csr.CauseLoadFault), true
		}
		setLane(d.Rd, uint32(raw))
	case decode.OpFSW:
		vaddr := h.GetGPR(d.Rs1) + uint64(d.Imm)
		pa, fault := ip.MMU.Translate(h.CSR, vaddr, mmu.AccessStore, agentOf(h, memmap.AccessStore))
		if fault != mmu.FaultNone {
			return csr.Exception(csr.CauseStorePageFault), true
		}
		if err := ip.Bus.Write(pa, 4, uint64(lane(d.Rs2)), agentOf(h, memmap.AccessStore)); err != nil {
			return csr.Exception(csr.CauseStoreFault), true
		}
	case decode.OpFADDS:
		v, flags := softfloat.F32Add(lane(d.Rs1), lane(d.Rs2), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFSUBS:
		v, flags := softfloat.F32Sub(lane(d.Rs1), lane(d.Rs2), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFMULS:
		v, flags := softfloat.F32Mul(lane(d.Rs1), lane(d.Rs2), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFMADDS:
		v, flags := softfloat.F32FMA(lane(d.Rs1), lane(d.Rs2), lane(d.Rs3), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFMSUBS:
		v, flags := softfloat.F32FMA(lane(d.Rs1), lane(d.Rs2), lane(d.Rs3)^0x8000_0000, rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFNMADDS:
		v, flags := softfloat.F32FMA(lane(d.Rs1)^0x8000_0000, lane(d.Rs2), lane(d.Rs3)^0x8000_0000, rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFNMSUBS:
		v, flags := softfloat.F32FMA(lane(d.Rs1)^0x8000_0000, lane(d.Rs2), lane(d.Rs3), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFSQRTS:
		v, flags := softfloat.F32Sqrt(lane(d.Rs1), rm)
		setLane(d.Rd, v)
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFSGNJS:
		setLane(d.Rd, softfloat.F32SignCopy(lane(d.Rs1), lane(d.Rs2)))
	case decode.OpFSGNJNS:
		setLane(d.Rd, softfloat.F32SignNeg(lane(d.Rs1), lane(d.Rs2)))
	case decode.OpFSGNJXS:
		setLane(d.Rd, softfloat.F32SignXor(lane(d.Rs1), lane(d.Rs2)))
	case decode.OpFMINS:
		setLane(d.Rd, softfloat.F32MinNum(lane(d.Rs1), lane(d.Rs2)))
	case decode.OpFMAXS:
		setLane(d.Rd, softfloat.F32MaxNum(lane(d.Rs1), lane(d.Rs2)))
	case decode.OpFCVTWS:
		v, flags := softfloat.F32ToI32(lane(d.Rs1), rm)
		h.SetGPR(d.Rd, uint64(int64(v)))
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFCVTWUS:
		v, flags := softfloat.F32ToU32(lane(d.Rs1), rm)
		h.SetGPR(d.Rd, uint64(int64(int32(v))))
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFCVTSW:
		setLane(d.Rd, softfloat.I32ToF32(int32(h.GetGPR(d.Rs1)), rm))
	case decode.OpFCVTSWU:
		setLane(d.Rd, softfloat.U32ToF32(uint32(h.GetGPR(d.Rs1)), rm))
	case decode.OpFMVXW:
		h.SetGPR(d.Rd, uint64(int64(int32(lane(d.Rs1)))))
	case decode.OpFMVWX:
		setLane(d.Rd, uint32(h.GetGPR(d.Rs1)))
	case decode.OpFEQS:
		eq, flags := softfloat.F32Eq(lane(d.Rs1), lane(d.Rs2))
		h.SetGPR(d.Rd, boolU64(eq))
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFLTS:
		ord, flags := softfloat.F32Compare(lane(d.Rs1), lane(d.Rs2))
		h.SetGPR(d.Rd, boolU64(ord == softfloat.Less))
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFLES:
		ord, flags := softfloat.F32Compare(lane(d.Rs1), lane(d.Rs2))
		h.SetGPR(d.Rd, boolU64(ord == softfloat.Less || ord == softfloat.Equal))
		h.CSR.FFlags |= uint8(flags)
	case decode.OpFCLASSS:
		h.SetGPR(d.Rd, uint64(softfloat.Classify32(lane(d.Rs1))))
	default:
		return csr.Exception(csr.CauseIllegalInstruction), true
	}
	return 0, false
}

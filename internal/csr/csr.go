/*
 * etsoc-sim - CSR file and privilege model
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

// Package csr implements the per-hart CSR register file, privilege gating,
// and the interrupt pending/priority computation of spec.md §4.7 (C7).
// Handlers return a Trap cause instead of a Go error, the same way the
// teacher's cpu opXXX handlers return an "irc" (interruption response
// code) uint16: a trap is RISC-V architectural state, not a plumbing
// failure, so it travels the same channel as every other instruction
// outcome rather than Go's error type.
package csr

// Privilege is the current execution privilege level.
type Privilege uint8

const (
	PrivUser       Privilege = 0
	PrivSupervisor Privilege = 1
	PrivMachine    Privilege = 3
)

// Trap is a RISC-V exception/interrupt cause. Bit 63 set marks an
// interrupt; clear marks a synchronous exception, mirroring the `mcause`
// encoding.
type Trap uint64

const interruptBit = uint64(1) << 63

func Exception(cause uint64) Trap { return Trap(cause) }
func Interrupt(cause uint64) Trap { return Trap(interruptBit | cause) }

func (t Trap) IsInterrupt() bool { return uint64(t)&interruptBit != 0 }
func (t Trap) Cause() uint64     { return uint64(t) &^ interruptBit }

// Exception causes (synchronous), per the standard privileged spec.
const (
	CauseInstructionMisaligned = 0
	CauseInstructionFault      = 1
	CauseIllegalInstruction    = 2
	CauseBreakpoint            = 3
	CauseLoadMisaligned        = 4
	CauseLoadFault             = 5
	CauseStoreMisaligned       = 6
	CauseStoreFault            = 7
	CauseUEcall                = 8
	CauseSEcall                = 9
	CauseMEcall                = 11
	CauseInstructionPageFault  = 12
	CauseLoadPageFault         = 13
	CauseStorePageFault        = 15
)

// Interrupt causes, also used as mip/mie/sip/sie bit indices.
const (
	IrqSSoft   = 1
	IrqMSoft   = 3
	IrqSTimer  = 5
	IrqMTimer  = 7
	IrqSExtern = 9
	IrqMExtern = 11
	// Esperanto additions.
	IrqBadIPIRedirect   = 16
	IrqICacheECCOverflow = 17
	IrqBusError         = 18
)

// interruptPriority lists causes high-to-low per spec.md §4.7.
var interruptPriority = []int{
	IrqMExtern, IrqMSoft, IrqMTimer,
	IrqSExtern, IrqSSoft, IrqSTimer,
	IrqBadIPIRedirect, IrqICacheECCOverflow, IrqBusError,
}

// 12-bit CSR addresses (csrimm space, spec.md §6/§4.7). Only the subset
// the interpreter and console actually touch is enumerated; unknown
// addresses fall through legality checking to illegal_instruction.
const (
	CsrFFlags = 0x001
	CsrFRM    = 0x002
	CsrFCSR   = 0x003

	CsrSStatus    = 0x100
	CsrSIE        = 0x104
	CsrSTVec      = 0x105
	CsrSCounterEn = 0x106
	CsrSScratch   = 0x140
	CsrSEPC       = 0x141
	CsrSCause     = 0x142
	CsrSTVal      = 0x143
	CsrSIP        = 0x144
	CsrSATP       = 0x180

	CsrMStatus    = 0x300
	CsrMISA       = 0x301
	CsrMEDeleg    = 0x302
	CsrMIDeleg    = 0x303
	CsrMIE        = 0x304
	CsrMTVec      = 0x305
	CsrMCounterEn = 0x306
	CsrMScratch   = 0x340
	CsrMEPC       = 0x341
	CsrMCause     = 0x342
	CsrMTVal      = 0x343
	CsrMIP        = 0x344
	CsrMHartID    = 0xf14

	// Esperanto extensions (custom space 0x7c0-0x7ff / 0xbc0-0xbff by
	// convention; exact encoding is implementation-defined and only
	// needs to be self-consistent between decode and console).
	CsrMATP            = 0x7c0
	CsrMInstMask       = 0x7c1
	CsrMInstMatch      = 0x7c2
	CsrMEnableShadows  = 0x7c3
	CsrExclMode        = 0x7c4
	CsrMBusAddr        = 0x7c5
	CsrMCacheControl   = 0x7c6
	CsrUCacheControl   = 0x7c7
	CsrTensorLoad      = 0x7c8
	CsrTensorLoadL2    = 0x7c9
	CsrTensorQuant     = 0x7ca
	CsrTensorFMA       = 0x7cb
	CsrTensorStore     = 0x7cc
	CsrTensorReduce    = 0x7cd
	CsrTensorWait      = 0x7ce
	CsrTensorError     = 0x7cf
	CsrFCC             = 0x7d0
	CsrFLB             = 0x7d1
	CsrStall           = 0x7d2
	CsrPortCtrl        = 0x7d3
	CsrPortHead        = 0x7d4
	CsrPortHeadNB      = 0x7d5
	CsrHartID          = 0x7d6
	CsrGSCProgress     = 0x7d7
	CsrValidation0     = 0x7d8
	CsrValidation1     = 0x7d9
	CsrValidation2     = 0x7da
	CsrValidation3     = 0x7db
)

// mstatus / sstatus bit positions (subset actually manipulated by
// mret/sret and the legalizers below).
const (
	bitSIE  = 1
	bitMIE  = 3
	bitSPIE = 5
	bitMPIE = 7
	bitSPP  = 8
	shiftMPP = 11
	bitSUM  = 18
	bitMXR  = 19
	bitTVM  = 20
	bitTW   = 21
	bitTSR  = 22
	bitSD   = 63
)

// File is the complete per-hart CSR register set: standard privileged
// registers plus the Esperanto extensions of spec.md §4.7.
type File struct {
	Priv Privilege

	FFlags uint8 // fflags[4:0], mirrored into FCSR[4:0]
	FRM    uint8 // frm[2:0], mirrored into FCSR[7:5]

	SStatus uint64 // mirrors the S-visible subset of mstatus
	SIE     uint64
	STVec   uint64
	SScratch uint64
	SEPC    uint64
	SCause  uint64
	STVal   uint64
	SATP    uint64

	MStatus  uint64
	MEDeleg  uint64
	MIDeleg  uint64
	MIE      uint64
	MTVec    uint64
	MScratch uint64
	MEPC     uint64
	MCause   uint64
	MTVal    uint64
	MIP      uint64
	MHartID  uint64

	ExtSEIP bool // external supervisor-interrupt pin, OR'd into effective sip

	MATP           uint64
	MInstMask      uint64
	MInstMatch     uint64
	MEnableShadows uint64
	ExclMode       uint64
	MBusAddr       uint64
	MCacheControl  uint64
	UCacheControl  uint64
	FCC            uint64
	FLB            uint64
	Stall          uint64
	PortCtrl       uint64
	GSCProgress    uint64
	Validation     [4]uint64

	// validation1CycleMode latches when validation1 is written with
	// control field DiagCtrlCycle; while set, reads of validation1
	// report Cycle instead of the register's stored bits (spec.md §6:
	// "Control field ET_DIAG_CYCLE converts subsequent reads of the
	// register to a snapshot of emu_cycle").
	validation1CycleMode bool

	// Cycle mirrors the system-wide clock; internal/system updates it
	// on every retire so validation1's diag-cycle read has something to
	// report without csr importing system.
	Cycle uint64

	TensorError uint64 // sticky bit-set, spec.md §4.6 "tensor error"
	TensorMaskReg uint64 // tensor_mask: per-row enable bits for TensorLoad
}

// Validation1 diag control-field values (spec.md §6 "Validation1
// UART"), grounded on original_source/sw-sysemu's zicsr.cpp CSR_VALIDATION1
// handler.
const (
	DiagCtrlPutChar = 0x00
	DiagCtrlCycle   = 0x01
)

// TensorMask returns the row-enable mask TensorLoad consults when its
// control word sets the `tm` bit (spec.md §4.6.1).
func (f *File) TensorMask() uint64 { return f.TensorMaskReg }

// New returns a File reset to its architectural power-on state:
// M-mode, all interrupt/exception-enable bits clear.
func New(hartID uint64) *File {
	return &File{
		Priv:    PrivMachine,
		MHartID: hartID,
	}
}

// fcsr packs fflags/frm into the combined 8-bit view used by the `fcsr`
// CSR address.
func (f *File) fcsr() uint64 {
	return uint64(f.FFlags&0x1f) | uint64(f.FRM&0x7)<<5
}

func (f *File) setFCSR(v uint64) {
	f.FFlags = uint8(v & 0x1f)
	f.FRM = uint8((v >> 5) & 0x7)
}

// csrPrivilege returns the minimum privilege csrimm's [9:8] bits require.
func csrPrivilege(csrimm uint32) Privilege {
	return Privilege((csrimm >> 8) & 0x3)
}

func readOnly(csrimm uint32) bool {
	return (csrimm>>10)&0x3 == 0x3
}

// checkAccess implements "reads legality-check (cnum[9:8] vs prv), then
// route through a big dispatch" (spec.md §4.7).
func (f *File) checkAccess(csrimm uint32, isWrite bool) Trap {
	need := csrPrivilege(csrimm)
	if f.Priv < need {
		return Exception(CauseIllegalInstruction)
	}
	if isWrite && readOnly(csrimm) {
		return Exception(CauseIllegalInstruction)
	}
	return 0
}

// Read dispatches a CSR read after a legality check; ok is false for any
// unknown address (caller should raise illegal_instruction).
func (f *File) Read(csrimm uint32) (value uint64, trap Trap, ok bool) {
	if t := f.checkAccess(csrimm, false); t != 0 {
		return 0, t, true
	}
	switch csrimm {
	case CsrFFlags:
		return uint64(f.FFlags), 0, true
	case CsrFRM:
		return uint64(f.FRM), 0, true
	case CsrFCSR:
		return f.fcsr(), 0, true
	case CsrSStatus:
		return f.effectiveSStatus(), 0, true
	case CsrSIE:
		return f.SIE & f.MIDeleg, 0, true
	case CsrSTVec:
		return f.STVec, 0, true
	case CsrSScratch:
		return f.SScratch, 0, true
	case CsrSEPC:
		return f.SEPC, 0, true
	case CsrSCause:
		return f.SCause, 0, true
	case CsrSTVal:
		return f.STVal, 0, true
	case CsrSIP:
		return f.XIP() & f.MIDeleg, 0, true
	case CsrSATP:
		return f.SATP, 0, true
	case CsrMStatus:
		return f.MStatus, 0, true
	case CsrMEDeleg:
		return f.MEDeleg, 0, true
	case CsrMIDeleg:
		return f.MIDeleg, 0, true
	case CsrMIE:
		return f.MIE, 0, true
	case CsrMTVec:
		return f.MTVec, 0, true
	case CsrMScratch:
		return f.MScratch, 0, true
	case CsrMEPC:
		return f.MEPC, 0, true
	case CsrMCause:
		return f.MCause, 0, true
	case CsrMTVal:
		return f.MTVal, 0, true
	case CsrMIP:
		return f.XIP(), 0, true
	case CsrMHartID:
		return f.MHartID, 0, true
	case CsrMATP:
		return f.MATP, 0, true
	case CsrMInstMask:
		return f.MInstMask, 0, true
	case CsrMInstMatch:
		return f.MInstMatch, 0, true
	case CsrMEnableShadows:
		return f.MEnableShadows, 0, true
	case CsrExclMode:
		return f.ExclMode, 0, true
	case CsrMBusAddr:
		return f.MBusAddr, 0, true
	case CsrMCacheControl:
		return f.MCacheControl, 0, true
	case CsrUCacheControl:
		return f.UCacheControl, 0, true
	case CsrFCC:
		return f.FCC, 0, true
	case CsrFLB:
		return f.FLB, 0, true
	case CsrStall:
		return f.Stall, 0, true
	case CsrPortCtrl:
		return f.PortCtrl, 0, true
	case CsrHartID:
		return f.MHartID, 0, true
	case CsrGSCProgress:
		return f.GSCProgress, 0, true
	case CsrValidation1:
		if f.validation1CycleMode {
			return f.Cycle, 0, true
		}
		return 0, 0, true
	case CsrValidation0, CsrValidation2, CsrValidation3:
		return f.Validation[csrimm-CsrValidation0], 0, true
	case CsrTensorError:
		return f.TensorError, 0, true
	default:
		return 0, 0, false
	}
}

// Write dispatches a CSR write after a legality check and a per-register
// legalizer (masking reserved bits, per spec.md §4.7). side is not SideNone
// when the write must trigger a side effect the CSR file itself cannot
// perform (tensor engine kickoff, exclusive-mode propagation, fetch-cache
// invalidation); the caller is responsible for acting on it.
type SideEffect int

const (
	SideNone SideEffect = iota
	SideExclusivePropagate
	SideTensorLoad
	SideTensorLoadL2
	SideTensorQuant
	SideTensorFMA
	SideTensorStore
	SideTensorReduce
	SideTensorWait
	SideSfenceVMA
	SideValidation0Write
	SideValidation1PutChar
)

func (f *File) Write(csrimm uint32, value uint64) (trap Trap, side SideEffect, ok bool) {
	if t := f.checkAccess(csrimm, true); t != 0 {
		return t, SideNone, true
	}
	switch csrimm {
	case CsrFFlags:
		f.FFlags = uint8(value & 0x1f)
	case CsrFRM:
		f.FRM = uint8(value & 0x7)
	case CsrFCSR:
		f.setFCSR(value)
	case CsrSStatus:
		f.writeSStatus(value)
	case CsrSIE:
		f.SIE = (f.SIE &^ f.MIDeleg) | (value & f.MIDeleg)
	case CsrSTVec:
		f.STVec = value &^ 0x2 // mode field is {0,1}; clear reserved bit 1
	case CsrSScratch:
		f.SScratch = value
	case CsrSEPC:
		f.SEPC = value &^ 0x1
	case CsrSCause:
		f.SCause = value
	case CsrSTVal:
		f.STVal = value
	case CsrSIP:
		mask := f.MIDeleg & (1 << IrqSSoft)
		f.MIP = (f.MIP &^ mask) | (value & mask)
	case CsrSATP:
		f.SATP = value
		side = SideSfenceVMA
	case CsrMStatus:
		f.MStatus = legalizeMStatus(value)
	case CsrMEDeleg:
		f.MEDeleg = value & 0xb3ff
	case CsrMIDeleg:
		f.MIDeleg = value & 0x0666
	case CsrMIE:
		f.MIE = value & interruptMask
	case CsrMTVec:
		f.MTVec = value &^ 0x2
	case CsrMScratch:
		f.MScratch = value
	case CsrMEPC:
		f.MEPC = value &^ 0x1
	case CsrMCause:
		f.MCause = value
	case CsrMTVal:
		f.MTVal = value
	case CsrMIP:
		// only the software-settable bits (S-level, and the Esperanto
		// additions) are writable; hardware-driven bits are read-only here.
		writable := uint64(1<<IrqSSoft | 1<<IrqSTimer | 1<<IrqSExtern | 1<<IrqBadIPIRedirect | 1<<IrqICacheECCOverflow | 1<<IrqBusError)
		f.MIP = (f.MIP &^ writable) | (value & writable)
	case CsrMATP:
		f.MATP = value
		side = SideExclusivePropagate
	case CsrMInstMask:
		f.MInstMask = value
	case CsrMInstMatch:
		f.MInstMatch = value
	case CsrMEnableShadows:
		f.MEnableShadows = value
		side = SideExclusivePropagate
	case CsrExclMode:
		f.ExclMode = value & 0x1
		side = SideExclusivePropagate
	case CsrMBusAddr:
		f.MBusAddr = value
	case CsrMCacheControl:
		f.MCacheControl = value & 0x3
		side = SideExclusivePropagate
	case CsrUCacheControl:
		f.UCacheControl = value & 0x3
		side = SideExclusivePropagate
	case CsrTensorLoad:
		side = SideTensorLoad
	case CsrTensorLoadL2:
		side = SideTensorLoadL2
	case CsrTensorQuant:
		side = SideTensorQuant
	case CsrTensorFMA:
		side = SideTensorFMA
	case CsrTensorStore:
		side = SideTensorStore
	case CsrTensorReduce:
		side = SideTensorReduce
	case CsrTensorWait:
		side = SideTensorWait
	case CsrTensorError:
		f.TensorError &^= value // write-1-to-clear, per §4.6
	case CsrFCC:
		f.FCC = value
	case CsrFLB:
		f.FLB = value
	case CsrStall:
		f.Stall = value
	case CsrPortCtrl:
		f.PortCtrl = value
	case CsrGSCProgress:
		f.GSCProgress = value
	case CsrValidation0:
		f.Validation[0] = value
		side = SideValidation0Write
	case CsrValidation1:
		f.Validation[1] = value
		switch uint8(value >> 56) {
		case DiagCtrlPutChar:
			side = SideValidation1PutChar
		case DiagCtrlCycle:
			f.validation1CycleMode = true
		}
	case CsrValidation2, CsrValidation3:
		f.Validation[csrimm-CsrValidation0] = value
	default:
		return 0, SideNone, false
	}
	return 0, side, true
}

const interruptMask = uint64(1)<<IrqMExtern | 1<<IrqMSoft | 1<<IrqMTimer |
	1<<IrqSExtern | 1<<IrqSSoft | 1<<IrqSTimer |
	1<<IrqBadIPIRedirect | 1<<IrqICacheECCOverflow | 1<<IrqBusError

func legalizeMStatus(v uint64) uint64 {
	const writable = uint64(1<<bitSIE | 1<<bitMIE | 1<<bitSPIE | 1<<bitMPIE |
		1<<bitSPP | 0x3<<shiftMPP | 1<<bitSUM | 1<<bitMXR | 1<<bitTVM | 1<<bitTW | 1<<bitTSR)
	out := v & writable
	mpp := (out >> shiftMPP) & 0x3
	if mpp == 0x2 { // reserved MPP encoding (hypervisor) not implemented
		out &^= 0x3 << shiftMPP
	}
	return out
}

func (f *File) effectiveSStatus() uint64 {
	const sMask = uint64(1<<bitSIE | 1<<bitSPIE | 1<<bitSPP | 1<<bitSUM | 1<<bitMXR)
	v := f.MStatus & sMask
	if v&(1<<bitSUM) != 0 || v&(1<<bitMXR) != 0 {
		v |= 1 << bitSD
	}
	return v
}

func (f *File) writeSStatus(v uint64) {
	const sMask = uint64(1<<bitSIE | 1<<bitSPIE | 1<<bitSPP | 1<<bitSUM | 1<<bitMXR)
	f.MStatus = (f.MStatus &^ sMask) | (v & sMask)
}

// XIP computes the pending-interrupt bits as software reads them from
// mip: mip | ext_seip. The mie mask is not applied here; PendingInterrupt
// applies it when choosing an interrupt to take.
func (f *File) XIP() uint64 {
	mip := f.MIP
	if f.ExtSEIP {
		mip |= 1 << IrqSExtern
	}
	return mip
}

// PendingInterrupt returns the highest-priority enabled, non-masked
// pending interrupt, or ok=false if none is pending for the current
// privilege level (an M-mode interrupt is only taken in M-mode if
// mstatus.MIE is set; once delegated to S-mode the same applies to SIE,
// and a trap can never lower privilege, so M-mode harts never take
// S-delegated interrupts that haven't also been re-raised at M level).
func (f *File) PendingInterrupt() (Trap, bool) {
	pending := f.XIP() & f.MIE
	if pending == 0 {
		return 0, false
	}
	mIE := f.MStatus&(1<<bitMIE) != 0
	sIE := f.MStatus&(1<<bitSIE) != 0 || f.Priv < PrivSupervisor

	for _, irq := range interruptPriority {
		bit := uint64(1) << irq
		if pending&bit == 0 {
			continue
		}
		delegated := f.MIDeleg&bit != 0
		if delegated {
			if f.Priv == PrivMachine {
				continue // delegated interrupts don't preempt M-mode
			}
			if !sIE {
				continue
			}
		} else {
			if f.Priv == PrivMachine && !mIE {
				continue
			}
		}
		return Interrupt(uint64(irq)), true
	}
	return 0, false
}

// EnterTrap transitions privilege and saves context for a trap taken at
// the given privilege target (machine, unless delegated to supervisor).
func (f *File) EnterTrap(t Trap, pc uint64, toSupervisor bool) (newPC uint64) {
	prevPriv := f.Priv
	if toSupervisor {
		f.SEPC = pc
		f.SCause = uint64(t)
		sie := f.MStatus&(1<<bitSIE) != 0
		f.MStatus = setBit(f.MStatus, bitSPIE, sie)
		f.MStatus = clearBit(f.MStatus, bitSIE)
		spp := uint64(0)
		if prevPriv == PrivSupervisor {
			spp = 1
		}
		f.MStatus = setBit(f.MStatus, bitSPP, spp != 0)
		f.Priv = PrivSupervisor
		return f.STVec &^ 0x3
	}
	f.MEPC = pc
	f.MCause = uint64(t)
	mie := f.MStatus&(1<<bitMIE) != 0
	f.MStatus = setBit(f.MStatus, bitMPIE, mie)
	f.MStatus = clearBit(f.MStatus, bitMIE)
	f.MStatus = (f.MStatus &^ (0x3 << shiftMPP)) | (uint64(prevPriv) << shiftMPP)
	f.Priv = PrivMachine
	return f.MTVec &^ 0x3
}

// MRet pops mpie/mpp into mie/prv and returns the resume PC (spec.md
// §4.7 "mret/sret").
func (f *File) MRet() (pc uint64, trap Trap) {
	if f.Priv != PrivMachine {
		return 0, Exception(CauseIllegalInstruction)
	}
	mpie := f.MStatus&(1<<bitMPIE) != 0
	f.MStatus = setBit(f.MStatus, bitMIE, mpie)
	f.MStatus = setBit(f.MStatus, bitMPIE, true)
	mpp := Privilege((f.MStatus >> shiftMPP) & 0x3)
	f.MStatus = f.MStatus &^ (0x3 << shiftMPP)
	f.Priv = mpp
	return f.MEPC, 0
}

// SRet pops spie/spp into sie/prv.
func (f *File) SRet() (pc uint64, trap Trap) {
	if f.Priv == PrivUser {
		return 0, Exception(CauseIllegalInstruction)
	}
	if f.Priv == PrivSupervisor && f.MStatus&(1<<bitTSR) != 0 {
		return 0, Exception(CauseIllegalInstruction)
	}
	spie := f.MStatus&(1<<bitSPIE) != 0
	f.MStatus = setBit(f.MStatus, bitSIE, spie)
	f.MStatus = setBit(f.MStatus, bitSPIE, true)
	spp := Privilege((f.MStatus >> bitSPP) & 0x1)
	f.MStatus = clearBit(f.MStatus, bitSPP)
	f.Priv = spp
	return f.SEPC, 0
}

// WFI: faults in U-mode, or in S-mode when mstatus.TW is set (spec.md
// §4.7); otherwise it's a hint the scheduler turns into a suspension
// point (handled by internal/system, not here).
func (f *File) WFI() Trap {
	if f.Priv == PrivUser {
		return Exception(CauseIllegalInstruction)
	}
	if f.Priv == PrivSupervisor && f.MStatus&(1<<bitTW) != 0 {
		return Exception(CauseIllegalInstruction)
	}
	return 0
}

func setBit(v uint64, bit int, set bool) uint64 {
	if set {
		return v | (1 << bit)
	}
	return v &^ (1 << bit)
}

func clearBit(v uint64, bit int) uint64 {
	return v &^ (1 << bit)
}

/*
 * etsoc-sim - Atomic and coherent RMW instructions
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

package isa

import (
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/decode"
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/mmu"
)

// execAMO implements the A-extension local/global atomic memory
// operations and the Esperanto coherent RMW stores (sbl/sbg/shl/shg) of
// spec.md §4.5. "Local" variants are scoped to the requester's own
// shire (coherence handled implicitly since the emulator applies the
// read-modify-write as a single Go-level critical section); "global"
// variants carry the same semantics but are marked with
// memmap.AccessAMOGlobal so the checker can flag cross-shire coherence
// assumptions a real design would need explicit fabric support for.
func (ip *Interpreter) execAMO(h *hart.Hart, d decode.Decoded) (csr.Trap, bool) {
	vaddr := h.GetGPR(d.Rs1)
	size := amoSize(d.Op)
	if mmu.CrossesPage(vaddr, size) {
		return csr.Exception(csr.CauseStorePageFault), true
	}
	accessType := memmap.AccessAMOLocal
	if isGlobalAMO(d.Op) {
		accessType = memmap.AccessAMOGlobal
	}
	agent := agentOf(h, accessType)

	pa, fault := ip.MMU.Translate(h.CSR, vaddr, mmu.AccessStore, agent)
	if fault != mmu.FaultNone {
		return csr.Exception(csr.CauseStorePageFault), true
	}

	switch d.Op {
	case decode.OpLRW:
		raw, err := ip.Bus.Read(pa, 4, agent)
		if err != nil {
			return csr.Exception(csr.CauseLoadFault), true
		}
		h.SetGPR(d.Rd, uint64(int64(int32(raw))))
		return 0, false
	case decode.OpLRD:
		raw, err := ip.Bus.Read(pa, 8, agent)
		if err != nil {
			return csr.Exception(csr.CauseLoadFault), true
		}
		h.SetGPR(d.Rd, raw)
		return 0, false
	case decode.OpSCW, decode.OpSCD:
		// This emulator has no reservation-set tracking (single-threaded
		// per hart step); sc.* always succeeds when reached.
		sz := 4
		if d.Op == decode.OpSCD {
			sz = 8
		}
		if err := ip.Bus.Write(pa, sz, h.GetGPR(d.Rs2), agent); err != nil {
			return csr.Exception(csr.CauseStoreFault), true
		}
		h.SetGPR(d.Rd, 0)
		return 0, false

	case decode.OpSBL, decode.OpSBG, decode.OpSHL, decode.OpSHG:
		sz := 1
		if d.Op == decode.OpSHL || d.Op == decode.OpSHG {
			sz = 2
		}
		if err := ip.Bus.Write(pa, sz, h.GetGPR(d.Rs2), agent); err != nil {
			return csr.Exception(csr.CauseStoreFault), true
		}
		return 0, false
	}

	old, err := ip.Bus.Read(pa, size, agent)
	if err != nil {
		return csr.Exception(csr.CauseLoadFault), true
	}
	operand := h.GetGPR(d.Rs2)
	var result uint64
	switch d.Op {
	case decode.OpAMOADDL, decode.OpAMOADDG:
		result = old + operand
	case decode.OpAMOSWAPL, decode.OpAMOSWAPG:
		result = operand
	case decode.OpAMOANDL, decode.OpAMOANDG:
		result = old & operand
	case decode.OpAMOORL, decode.OpAMOORG:
		result = old | operand
	case decode.OpAMOXORL, decode.OpAMOXORG:
		result = old ^ operand
	case decode.OpAMOMINL, decode.OpAMOMING:
		result = minSigned(old, operand, size)
	case decode.OpAMOMAXL, decode.OpAMOMAXG:
		result = maxSigned(old, operand, size)
	case decode.OpAMOMINUL, decode.OpAMOMINUG:
		result = minUnsigned(old, operand)
	case decode.OpAMOMAXUL, decode.OpAMOMAXUG:
		result = maxUnsigned(old, operand)
	case decode.OpAMOCMPSWAPL, decode.OpAMOCMPSWAPG:
		// amocmpswap{l,g}.{w,d}: x31 carries the expected value, rs2 the
		// desired one (spec.md §4.5), independent of rd.
		expected := h.GetGPR(31)
		if old == expected {
			result = operand
		} else {
			result = old
		}
	default:
		return csr.Exception(csr.CauseIllegalInstruction), true
	}

	if err := ip.Bus.Write(pa, size, result, agent); err != nil {
		return csr.Exception(csr.CauseStoreFault), true
	}
	h.SetGPR(d.Rd, signExtendForSize(old, size))
	return 0, false
}

func amoSize(op decode.Op) int {
	switch op {
	case decode.OpSBL, decode.OpSBG:
		return 1
	case decode.OpSHL, decode.OpSHG:
		return 2
	case decode.OpLRW, decode.OpSCW:
		return 4
	default:
		return 8
	}
}

func isGlobalAMO(op decode.Op) bool {
	switch op {
	case decode.OpAMOADDG, decode.OpAMOSWAPG, decode.OpAMOANDG, decode.OpAMOORG,
		decode.OpAMOXORG, decode.OpAMOMING, decode.OpAMOMAXG, decode.OpAMOMINUG,
		decode.OpAMOMAXUG, decode.OpAMOCMPSWAPG, decode.OpSBG, decode.OpSHG:
		return true
	default:
		return false
	}
}

func signExtendForSize(v uint64, size int) uint64 {
	if size == 4 {
		return uint64(int64(int32(v)))
	}
	return v
}

func minSigned(a, b uint64, size int) uint64 {
	if size == 4 {
		if int32(a) < int32(b) {
			return uint64(int64(int32(a)))
		}
		return uint64(int64(int32(b)))
	}
	if int64(a) < int64(b) {
		return a
	}
	return b
}

func maxSigned(a, b uint64, size int) uint64 {
	if size == 4 {
		if int32(a) > int32(b) {
			return uint64(int64(int32(a)))
		}
		return uint64(int64(int32(b)))
	}
	if int64(a) > int64(b) {
		return a
	}
	return b
}

func minUnsigned(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxUnsigned(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

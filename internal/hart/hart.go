/*
 * etsoc-sim - Per-hart architectural state
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

// Package hart holds the architectural register state of spec.md §3: the
// 32 general-purpose registers (x0 hardwired zero), 32 256-bit vector/
// float registers, 8 mask registers, program counter, CSR file, and the
// per-hart debug/tensor-wait bits. Grounded on the teacher's
// emu/cpu/cpu.go Cpu struct (PSW + GPR + FPR fields bundled on one struct
// passed by pointer into every opcode handler); generalized to RV64's
// wider register file and its vector/tensor extensions.
package hart

import (
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
)

const (
	NumGPR    = 32
	NumVector = 32
	VectorLen = 32 // bytes (256 bits)
	NumMask   = 8

	// MaskLanes is MLEN of spec.md §8's mask-population invariant
	// (`maskpopc(m) + maskpopcz(m) = MLEN`): the number of lanes a mask
	// register gates, matching the 8×f32/8×i32 packing of one 256-bit
	// vector register.
	MaskLanes = 8
)

// Vector256 is one 256-bit vector/float register, stored as four
// little-endian 64-bit lanes (lane 0 holds the scalar single/double
// value for ordinary F/D-extension instructions).
type Vector256 [4]uint64

// Hart is one hardware thread's complete architectural state.
type Hart struct {
	ShireID uint8
	HartID  uint8

	GPR [NumGPR]uint64
	Vec [NumVector]Vector256
	Mask [NumMask]uint64

	PC  uint64
	NPC uint64

	CSR *csr.File

	DebugMode  bool
	TensorWait bool
	// TensorWaitKey is the cooperative-group id the hart parked on when
	// TensorWait found the group unsatisfied; internal/system re-checks
	// CoopSatisfied(TensorWaitKey) on every wake-up pass.
	TensorWaitKey uint64

	// lastFetchPC/lastFetchInsn cache the most recently fetched
	// instruction word to short-circuit repeated fetches of the same PC
	// (e.g. tight polling loops), invalidated on any context change.
	lastFetchPC   uint64
	lastFetchOK   bool
	lastFetchWord uint32

	Halted bool
	Running bool
}

func New(shireID, hartID uint8) *Hart {
	h := &Hart{
		ShireID: shireID,
		HartID:  hartID,
		CSR:     csr.New(uint64(hartID)),
		Running: true,
	}
	return h
}

// GetGPR returns register x0..x31, with x0 always reading zero.
func (h *Hart) GetGPR(r uint32) uint64 {
	if r == 0 {
		return 0
	}
	return h.GPR[r]
}

// SetGPR writes register x0..x31; writes to x0 are discarded.
func (h *Hart) SetGPR(r uint32, v uint64) {
	if r == 0 {
		return
	}
	h.GPR[r] = v
}

// InvalidateFetchCache drops the cached last-fetched instruction word.
// Called on any event that can change what's mapped at a PC: a CSR write
// to satp/matp, an sfence.vma, a privilege change, or a trap entry.
func (h *Hart) InvalidateFetchCache() {
	h.lastFetchOK = false
}

// CachedFetch returns the cached instruction word for pc if it is still
// valid, else reports a miss.
func (h *Hart) CachedFetch(pc uint64) (uint32, bool) {
	if h.lastFetchOK && h.lastFetchPC == pc {
		return h.lastFetchWord, true
	}
	return 0, false
}

// StoreFetchCache remembers the instruction word just fetched at pc.
func (h *Hart) StoreFetchCache(pc uint64, word uint32) {
	h.lastFetchPC = pc
	h.lastFetchWord = word
	h.lastFetchOK = true
}

// MCodeTrap reports whether the instruction word matches the hart's
// {minstmask, minstmatch} trap-on-decode filter (spec.md §4.7 debug
// support: "trap before execute if (insn & minstmask) == minstmatch &&
// minstmask != 0").
func (h *Hart) MCodeTrap(word uint32) bool {
	mask := uint32(h.CSR.MInstMask)
	if mask == 0 {
		return false
	}
	return word&mask == uint32(h.CSR.MInstMatch)&mask
}

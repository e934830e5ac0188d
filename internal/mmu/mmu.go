/*
 * etsoc-sim - Address translation (MMU)
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

// Package mmu implements the Bare/SV39/SV48/MV39/MV48 page-table walker of
// spec.md §4.3 (C3). Grounded on the teacher's emu/cpu/cpu.go transAddr
// function for the general shape (mode switch -> level-by-level walk ->
// permission check -> physical address), generalized from S/370's 2-level
// dynamic-address-translation scheme to RISC-V's up-to-4-level Sv39/Sv48.
package mmu

import (
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

// Mode is the active translation scheme.
type Mode int

const (
	Bare Mode = iota
	SV39
	SV48
	MV39
	MV48
)

// AccessKind distinguishes the permission bit a translation must satisfy.
type AccessKind int

const (
	AccessFetch AccessKind = iota
	AccessLoad
	AccessStore
)

// Fault is the particular page-fault cause; Split variants carry the
// original (unaligned-to-page) effective address per spec.md §4.3 step 5.
type Fault int

const (
	FaultNone Fault = iota
	FaultPage
	FaultSplitPage
)

// PTE field bits (Sv39/Sv48 layout, shared by the MV variants).
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

const pteSize = 8
const ppnShift = 10

// Translator reads satp/matp out of the CSR file and walks the page
// table through the memory bus.
type Translator struct {
	bus *memmap.Bus
}

func New(bus *memmap.Bus) *Translator {
	return &Translator{bus: bus}
}

func selectMode(f *csr.File) (mode Mode, root uint64) {
	if f.Priv == csr.PrivMachine {
		matpMode := (f.MATP >> 60) & 0xf
		switch matpMode {
		case 9:
			return MV39, f.MATP
		case 10:
			return MV48, f.MATP
		default:
			return Bare, 0
		}
	}
	satpMode := (f.SATP >> 60) & 0xf
	switch satpMode {
	case 8:
		return SV39, f.SATP
	case 9:
		return SV48, f.SATP
	default:
		return Bare, 0
	}
}

func levelsFor(mode Mode) int {
	switch mode {
	case SV39, MV39:
		return 3
	case SV48, MV48:
		return 4
	default:
		return 0
	}
}

// Translate walks the active page table for a virtual address, returning
// the physical address or a Fault.
func (t *Translator) Translate(f *csr.File, vaddr uint64, kind AccessKind, agent memmap.Agent) (uint64, Fault) {
	mode, root := selectMode(f)
	if mode == Bare {
		const physBits = 40
		if vaddr>>physBits != 0 {
			return 0, FaultPage
		}
		return vaddr, FaultNone
	}

	levels := levelsFor(mode)
	ppn := root & ((uint64(1) << 44) - 1)

	vpn := make([]uint64, levels)
	for i := 0; i < levels; i++ {
		vpn[i] = (vaddr >> (12 + 9*i)) & 0x1ff
	}

	var pte uint64
	level := levels - 1
	for {
		pteAddr := (ppn << 12) + vpn[level]*pteSize
		raw, err := t.bus.Read(pteAddr, pteSize, memmap.Agent{ShireID: agent.ShireID, HartID: agent.HartID, Type: memmap.AccessPTW})
		if err != nil {
			return 0, FaultPage
		}
		pte = raw

		if pte&pteV == 0 {
			return 0, FaultPage
		}
		leafBits := pte & (pteR | pteW | pteX)
		if leafBits == 0 {
			// non-leaf: must not set R/W/X simultaneously with D/A etc; descend.
			if level == 0 {
				return 0, FaultPage
			}
			ppn = (pte >> ppnShift) & ((uint64(1) << 44) - 1)
			level--
			continue
		}
		if leafBits == pteW {
			// W without R is a reserved encoding.
			return 0, FaultPage
		}
		break
	}

	if level > 0 {
		// superpage: low-order PPN bits below `level` must be zero.
		ppnField := (pte >> ppnShift) & ((uint64(1) << 44) - 1)
		mask := (uint64(1) << (9 * level)) - 1
		if ppnField&mask != 0 {
			return 0, FaultPage
		}
	}

	if !checkPermission(f, pte, kind) {
		return 0, FaultPage
	}
	if pte&pteA == 0 {
		return 0, FaultPage
	}
	if kind == AccessStore && pte&pteD == 0 {
		return 0, FaultPage
	}

	ppnField := (pte >> ppnShift) & ((uint64(1) << 44) - 1)
	pageOffset := vaddr & 0xfff
	// Reconstruct the physical PPN, substituting the low VPN bits for a
	// superpage's zeroed low PPN bits.
	physPPN := ppnField
	for i := 0; i < level; i++ {
		physPPN &^= uint64(0x1ff) << (9 * i)
		physPPN |= vpn[i] << (9 * i)
	}
	paddr := (physPPN << 12) | pageOffset
	return paddr, FaultNone
}

func checkPermission(f *csr.File, pte uint64, kind AccessKind) bool {
	const bitSUM = 18
	const bitMXR = 19

	u := pte&pteU != 0
	if u {
		if f.Priv == csr.PrivMachine {
			return false
		}
		if f.Priv == csr.PrivSupervisor && kind != AccessFetch && f.MStatus&(1<<bitSUM) == 0 {
			return false
		}
		if f.Priv == csr.PrivSupervisor && kind == AccessFetch {
			return false
		}
	} else if f.Priv == csr.PrivUser {
		return false
	}

	switch kind {
	case AccessFetch:
		return pte&pteX != 0
	case AccessStore:
		return pte&pteW != 0
	default: // AccessLoad
		if pte&pteR != 0 {
			return true
		}
		if f.MStatus&(1<<bitMXR) != 0 {
			return pte&pteX != 0
		}
		return false
	}
}

// CrossesPage reports whether an access of size bytes starting at vaddr
// straddles a page boundary (spec.md §4.3 step 5: split-page-fault).
func CrossesPage(vaddr uint64, size int) bool {
	const pageSize = 1 << 12
	start := vaddr % pageSize
	return start+uint64(size) > pageSize
}

/*
 * etsoc-sim - ELF and raw memory image loader
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

// Package loader copies program images into a *memmap.Bus: ELF64
// little-endian loadable segments per spec.md §6, and raw byte blobs
// at an explicit physical address.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

// dramAliasBit is bit 38 of a physical address; spec.md §6 says
// addresses at or above the DRAM base have this bit cleared before
// the segment is copied, since the DRAM region is aliased through a
// narrower window than the full 39-bit PA a vma may express.
const dramAliasBit = 1 << 38

// Segment describes one ELF loadable segment after address fixup, for
// callers that want to report what was loaded.
type Segment struct {
	PAddr uint64
	Size  uint64
}

// LoadELF reads an ELF64 little-endian file from r and copies every
// PT_LOAD segment's on-disk bytes to bus at the fixed-up physical
// address. Grounded on the load-address fixup and per-segment ReadAt
// copy loop of gokvm's machine.LoadKernel.
func LoadELF(bus *memmap.Bus, r io.ReaderAt) ([]Segment, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("loader: parse ELF: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("loader: only ELF64 images are supported, got %v", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("loader: only little-endian images are supported, got %v", f.Data)
	}

	var segs []Segment
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Filesz == 0 {
			continue
		}

		paddr := fixupAddr(p.Vaddr, p.Paddr)
		buf := make([]byte, p.Filesz)
		if _, err := p.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("loader: reading segment %d at %#x: %w", i, paddr, err)
		}
		if err := writeBytes(bus, paddr, buf); err != nil {
			return nil, fmt.Errorf("loader: copying segment %d to %#x: %w", i, paddr, err)
		}
		segs = append(segs, Segment{PAddr: paddr, Size: p.Filesz})
	}
	return segs, nil
}

// fixupAddr computes seg.vma - (seg.vma - seg.pma) per spec.md §6 and
// clears bit 38 for any address at or above the DRAM base.
func fixupAddr(vaddr, paddr uint64) uint64 {
	addr := vaddr - (vaddr - paddr)
	if addr >= memmap.DRAMBase {
		addr &^= dramAliasBit
	}
	return addr
}

// LoadRaw copies data verbatim into bus starting at paddr.
func LoadRaw(bus *memmap.Bus, paddr uint64, data []byte) error {
	if err := writeBytes(bus, paddr, data); err != nil {
		return fmt.Errorf("loader: raw load at %#x: %w", paddr, err)
	}
	return nil
}

// writeBytes copies data into bus one naturally-aligned chunk at a
// time, widest-first, so a segment whose length isn't a multiple of 8
// still lands correctly.
func writeBytes(bus *memmap.Bus, addr uint64, data []byte) error {
	agent := memmap.Agent{}
	i := 0
	for i < len(data) {
		remaining := len(data) - i
		switch {
		case remaining >= 8 && (addr+uint64(i))%8 == 0:
			v := leUint(data[i : i+8])
			if err := bus.Write(addr+uint64(i), 8, v, agent); err != nil {
				return err
			}
			i += 8
		case remaining >= 4 && (addr+uint64(i))%4 == 0:
			v := leUint(data[i : i+4])
			if err := bus.Write(addr+uint64(i), 4, v, agent); err != nil {
				return err
			}
			i += 4
		case remaining >= 2 && (addr+uint64(i))%2 == 0:
			v := leUint(data[i : i+2])
			if err := bus.Write(addr+uint64(i), 2, v, agent); err != nil {
				return err
			}
			i += 2
		default:
			if err := bus.Write(addr+uint64(i), 1, uint64(data[i]), agent); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}

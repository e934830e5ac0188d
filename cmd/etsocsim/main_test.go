/*
 * etsoc-sim - Entry point
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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/config"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/system"
)

// smallSystem builds a test-sized topology instead of system.DefaultConfig's
// full 34x128 shires, matching internal/system's and internal/hostapi's own
// test helpers of the same name.
func smallSystem() *system.System {
	return system.New(system.Config{ShireCount: 2, HartsPerShire: 4, DRAMSize: 1 << 20})
}

func encodeI(imm int32, rs1, funct3, rd, opcode uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func TestBuildLoggerWithNoPathIsSafeToClose(t *testing.T) {
	h, closeFn := buildLogger("")
	if h == nil {
		t.Fatal("expected a non-nil handler even with no log file")
	}
	closeFn()
}

func TestBuildLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	_, closeFn := buildLogger(path)
	defer closeFn()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}

func TestLoadImagesAppliesFileLoadsAndMemWrites(t *testing.T) {
	sys := smallSystem()
	dir := t.TempDir()
	blobPath := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(blobPath, []byte{0xde, 0xad, 0xbe, 0xef}, 0o644); err != nil {
		t.Fatalf("writing blob: %v", err)
	}

	opts := config.Options{
		FileLoads: []config.FileLoad{{PAddr: memmap.DRAMBase, Path: blobPath}},
		MemWrites: []config.MemWrite32{{PAddr: memmap.DRAMBase + 0x100, Value: 0x12345678}},
	}
	if err := loadImages(sys, opts); err != nil {
		t.Fatalf("loadImages: %v", err)
	}

	v, err := sys.Bus.Read(memmap.DRAMBase, 4, memmap.Agent{})
	if err != nil {
		t.Fatalf("reading loaded blob: %v", err)
	}
	if v != 0xefbeadde {
		t.Fatalf("blob readback = %#x, want 0xefbeadde", v)
	}

	v, err = sys.Bus.Read(memmap.DRAMBase+0x100, 4, memmap.Agent{})
	if err != nil {
		t.Fatalf("reading mem_write32: %v", err)
	}
	if v != 0x12345678 {
		t.Fatalf("mem_write32 readback = %#x, want 0x12345678", v)
	}
}

func TestLoadImagesReportsMissingFile(t *testing.T) {
	sys := smallSystem()
	opts := config.Options{FileLoads: []config.FileLoad{{PAddr: memmap.DRAMBase, Path: "/nonexistent/blob.bin"}}}
	if err := loadImages(sys, opts); err == nil {
		t.Fatal("expected an error for a missing raw image")
	}
}

func TestApplyResetOverridesSetsHart0AndSPPCs(t *testing.T) {
	sys := smallSystem()
	sys.Reset()

	opts := config.Options{ResetPC: 0x40001000, SPResetPC: 0x40002000}
	applyResetOverrides(sys, opts)

	if sys.Harts()[0].PC != 0x40001000 {
		t.Fatalf("hart 0 PC = %#x, want 0x40001000", sys.Harts()[0].PC)
	}
	lastShire := sys.Shire(uint8(len(sys.Shires) - 1))
	for _, h := range lastShire.Harts {
		if h.PC != 0x40002000 {
			t.Fatalf("IO shire hart PC = %#x, want 0x40002000", h.PC)
		}
	}
}

func TestApplyHartMasksZeroMeansEverythingEnabled(t *testing.T) {
	sys := smallSystem()
	sys.Reset()
	applyHartMasks(sys, config.Options{})

	for _, h := range sys.Harts() {
		if !sys.IsHartEnabled(h) {
			t.Fatalf("expected every hart enabled by default, hart %d/%d disabled", h.ShireID, h.HartID)
		}
	}
}

func TestApplyHartMasksDisablesUnselectedMinionShires(t *testing.T) {
	sys := smallSystem()
	sys.Reset()

	// Enable only shire 0 (bit 0), leave the IO shire (bit 34) disabled.
	applyHartMasks(sys, config.Options{Shires: 1})

	for _, h := range sys.Shires[0].Harts {
		if !sys.IsHartEnabled(h) {
			t.Fatalf("expected shire 0 harts enabled, hart %d", h.HartID)
		}
	}
	lastShire := sys.Shire(uint8(len(sys.Shires) - 1))
	for _, h := range lastShire.Harts {
		if sys.IsHartEnabled(h) {
			t.Fatalf("expected IO shire harts disabled when bit 34 is clear, hart %d", h.HartID)
		}
	}
}

func TestApplyHartMasksMinionHartSubset(t *testing.T) {
	sys := smallSystem()
	sys.Reset()

	// All shires enabled, but only hart 0 of each minion shire.
	allShires := (uint64(1)<<uint(len(sys.Shires)-1) - 1) | (1 << spShireBit)
	applyHartMasks(sys, config.Options{Shires: allShires, Minions: 1})

	for _, h := range sys.Shires[0].Harts {
		want := h.HartID == 0
		got := sys.IsHartEnabled(h)
		if got != want {
			t.Fatalf("shire 0 hart %d enabled=%v, want %v", h.HartID, got, want)
		}
	}
}

func TestInstallTracerStopsAtMaxCycles(t *testing.T) {
	sys := smallSystem()
	sys.Reset()
	for _, h := range sys.Harts() {
		h.PC = memmap.DRAMBase
		storeWord(sys, h.PC, encodeI(1, 0, 0, 1, 0x13)) // addi x1, x0, 1 (tight loop target)
	}

	installTracer(sys, config.Options{MaxCycles: 3})
	sys.Run()

	if sys.Cycle() < 3 {
		t.Fatalf("expected at least 3 cycles to elapse before stopping, got %d", sys.Cycle())
	}
}

func storeWord(s *system.System, addr uint64, word uint32) {
	s.Bus.Write(addr, 4, uint64(word), memmap.Agent{})
}

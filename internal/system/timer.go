/*
 * etsoc-sim - Hart scheduler and system construction
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

package system

import (
	"github.com/esperanto-oss/etsoc-sim/internal/csr"
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
)

// advanceClock moves emu_cycle forward by n cycles and ticks the
// peripheral clock every peripheralTickPeriod instructions (spec.md
// §4.9). Grounded on the teacher's emu/event/event.go Advance(t):
// subtract the elapsed time, then drain everything now due; here "due"
// is a fixed period rather than an arbitrary per-event delay.
func (s *System) advanceClock(n int) {
	s.cycle += uint64(n)
	s.sinceTick += n
	if s.sinceTick >= peripheralTickPeriod {
		s.sinceTick -= peripheralTickPeriod
		s.tickPeripherals()
	}
}

// Cycle returns the current emu_cycle count.
func (s *System) Cycle() uint64 { return s.cycle }

// tickPeripherals advances the PU/SP RVtimer and raises or clears the
// timer interrupt on every hart once mtime reaches mtimecmp (spec.md
// §4.9: "advances the PU and SP RVtimers; compares mtime to mtimecmp
// and raises/clears timer interrupts on the shire mask the timer
// targets"). This emulator models one global RVtimer rather than one
// per PU/SP pair, since internal/memmap exposes a single TimerRegs
// window (see DESIGN.md's C2 entry).
func (s *System) tickPeripherals() {
	s.Timer.MTime += peripheralTickPeriod
	firing := s.Timer.MTimeCmp != 0 && s.Timer.MTime >= s.Timer.MTimeCmp
	for _, h := range s.harts {
		if firing {
			h.CSR.MIP |= 1 << csr.IrqMTimer
		} else {
			h.CSR.MIP &^= 1 << csr.IrqMTimer
		}
	}
}

// RaiseExternal sets the external-interrupt pending bit on the named
// hart's mip (spec.md §4.9 "Interrupt delivery: raise_* calls set bits
// on the target hart's mip (or external pin)").
func (s *System) RaiseExternal(shireID, hartID uint8) {
	if h := s.findHart(shireID, hartID); h != nil {
		h.CSR.MIP |= 1 << csr.IrqMExtern
	}
}

// ClearExternal clears the external-interrupt pending bit.
func (s *System) ClearExternal(shireID, hartID uint8) {
	if h := s.findHart(shireID, hartID); h != nil {
		h.CSR.MIP &^= 1 << csr.IrqMExtern
	}
}

// RaiseSoft posts an inter-processor interrupt to the named hart.
func (s *System) RaiseSoft(shireID, hartID uint8) {
	if h := s.findHart(shireID, hartID); h != nil {
		h.CSR.MIP |= 1 << csr.IrqMSoft
	}
}

func (s *System) findHart(shireID, hartID uint8) *hart.Hart {
	for _, h := range s.harts {
		if h.ShireID == shireID && h.HartID == hartID {
			return h
		}
	}
	return nil
}

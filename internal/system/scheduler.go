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
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
)

// Run drives the scheduler until Stop is called or every hart is
// parked with nothing left to wake it (spec.md §4.9/§5). It returns the
// number of instructions retired. Grounded on the teacher's
// emu/core/core.go Start() loop: advance-or-idle, then check for a
// shutdown signal, repeated until told to stop.
func (s *System) Run() uint64 {
	for !s.done {
		if !s.Step() {
			break
		}
	}
	return s.instrRetired
}

// Stop requests the scheduler halt at the next opportunity (spec.md
// §4.9 "Cancellation": the host-embedded mode may invoke stop(), which
// raises the global emu_done flag).
func (s *System) Stop() { s.done = true }

// Done reports whether Stop has been called.
func (s *System) Done() bool { return s.done }

// Step executes exactly one instruction on the next runnable hart,
// advancing the clock and ticking peripherals as needed. It returns
// false when the system is stopped or fully quiesced (every hart
// parked with nothing that could ever wake it).
func (s *System) Step() bool {
	if s.done || len(s.harts) == 0 {
		return false
	}

	idx := s.nextRunnable()
	if idx < 0 {
		if !s.wakeParked() {
			return false
		}
		idx = s.nextRunnable()
		if idx < 0 {
			return false
		}
	}

	h := s.harts[idx]
	pc := h.PC
	res := s.Interp.Step(h)
	s.instrRetired++
	s.recordRetire(h)

	if s.Trace != nil {
		s.Trace(h, pc, res)
	}

	if res.WFI {
		s.states[idx] = stateWFI
	} else if h.TensorWait {
		s.states[idx] = stateTensorWait
	}

	s.rrCursor = (idx + 1) % len(s.harts)
	s.advanceClock(1)
	return true
}

// nextRunnable scans from rrCursor for the next hart the scheduler may
// execute, round-robin, without starving later indices (spec.md §4.9
// "maintains a list of runnable harts ... picks the next runnable
// hart").
func (s *System) nextRunnable() int {
	n := len(s.harts)
	for i := 0; i < n; i++ {
		idx := (s.rrCursor + i) % n
		if s.states[idx] == stateRunnable && !s.exclBlocked(idx) {
			return idx
		}
	}
	return -1
}

// wakeParked re-evaluates every non-runnable hart's suspension
// condition and promotes it back to runnable where satisfied (spec.md
// §4.9 "Interrupt delivery ... wakes any hart whose non-masked pending
// mask is non-empty"; §5's TensorWait suspension point resolves the
// same way through CoopSatisfied). Returns whether any hart was woken.
func (s *System) wakeParked() bool {
	woke := false
	for i, h := range s.harts {
		switch s.states[i] {
		case stateWFI:
			if _, pending := h.CSR.PendingInterrupt(); pending {
				s.states[i] = stateRunnable
				woke = true
			}
		case stateTensorWait:
			if c := s.coreOf[i]; c != nil && c.Tensor.CoopSatisfied(h.TensorWaitKey) {
				h.TensorWait = false
				s.states[i] = stateRunnable
				woke = true
			}
		}
	}
	return woke
}

// recordRetire increments the PMU counters of neighborhood 0 in the
// retiring hart's shire (spec.md §12 supplemented feature: per-
// neighborhood PMU counters). Neighborhood assignment beyond "one
// representative neighborhood per shire" is not modelled; spec.md
// leaves the shire-to-neighborhood topology unspecified for this
// counter bank.
func (s *System) recordRetire(h *hart.Hart) {
	n := s.ESR.NeighReg(uint32(h.ShireID), 0)
	n.Cycles++
	n.RetiredInstrs++
	h.CSR.Cycle = s.cycle
}

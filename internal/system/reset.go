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
	"github.com/esperanto-oss/etsoc-sim/internal/esr"
	"github.com/esperanto-oss/etsoc-sim/internal/hart"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/tensor"
)

// ResetHart puts h back to its post-reset architectural state: PC at
// the DRAM base, machine mode, a fresh CSR file, zeroed GPR/vector/mask
// files, and the scheduler slot marked runnable (spec.md §3
// "Lifecycles": "each shire is reset independently (ESR reset fn per
// shire plus per-hart reset)").
func (s *System) ResetHart(h *hart.Hart) {
	shireID, hartID := h.ShireID, h.HartID
	*h = *hart.New(shireID, hartID)
	h.PC = memmap.DRAMBase
	h.NPC = memmap.DRAMBase
	h.CSR.Priv = csr.PrivMachine

	if idx := s.indexOf(h); idx >= 0 {
		s.states[idx] = stateRunnable
	}
}

// ResetShire resets every hart in shire id and clears its ESR "other"
// broadcast-staging registers and debug module.
func (s *System) ResetShire(id uint8) {
	sh := s.Shire(id)
	if sh == nil {
		return
	}
	for _, h := range sh.Harts {
		s.ResetHart(h)
	}
	sh.Hub = tensor.NewReduceHub()
	for _, c := range sh.Cores {
		c.Tensor = tensor.New(s.Bus, s.MMU)
		c.Tensor.SetReduceHub(sh.Hub)
	}
	*s.ESR.ShireOther(uint32(id)) = esr.ShireOtherRegs{Debug: *esr.NewDebugModule()}
}

// Reset resets every shire in the system and the global clock.
func (s *System) Reset() {
	s.cycle = 0
	s.instrRetired = 0
	s.sinceTick = 0
	s.rrCursor = 0
	s.done = false
	for _, sh := range s.Shires {
		s.ResetShire(sh.ID)
	}
}

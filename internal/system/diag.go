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
	"fmt"

	"github.com/esperanto-oss/etsoc-sim/internal/hart"
)

// RunResult reports why a run ended, for cmd/etsocsim's exit code
// (spec.md §6: "Exit: 0 on graceful termination ..., non-zero on ...
// FAIL signal").
type RunResult int

const (
	RunUnknown RunResult = iota
	RunPass
	RunFail
)

// validation0 magic values a hart may write to signal test completion
// (spec.md §6, grounded on original_source/sw-sysemu's zicsr.cpp
// CSR_VALIDATION0 handler).
const (
	validation0Pass = 0x1FEED000
	validation0Fail = 0x50BAD000
)

const diagEOT = 0x04

// DiagSignal implements isa.DiagPort: a validation0 write. The PASS
// magic deactivates only the writing hart (mirroring the original's
// per-thread deactivate_thread); the FAIL magic halts the whole run.
func (s *System) DiagSignal(h *hart.Hart, value uint64) {
	switch value {
	case validation0Pass:
		s.SetHartEnabled(h, false)
		if s.runResult == RunUnknown {
			s.runResult = RunPass
		}
	case validation0Fail:
		s.runResult = RunFail
		s.Stop()
	}
}

// DiagPutChar implements isa.DiagPort: a validation1 write with control
// field DiagCtrlPutChar. Bytes are buffered per hart and flushed to
// UARTOut on '\n', matching the original's per-thread uart_stream;
// byte 0x04 (EOT) ends the run gracefully instead of being buffered.
func (s *System) DiagPutChar(h *hart.Hart, b byte) {
	if b == diagEOT {
		if s.runResult == RunUnknown {
			s.runResult = RunPass
		}
		s.Stop()
		return
	}

	idx := s.indexOf(h)
	if idx < 0 {
		return
	}
	if b != '\n' {
		s.uartBuf[idx] = append(s.uartBuf[idx], b)
		return
	}
	if s.UARTOut != nil {
		fmt.Fprintln(s.UARTOut, string(s.uartBuf[idx]))
	}
	s.uartBuf[idx] = s.uartBuf[idx][:0]
}

// RunResult reports the outcome latched by the last validation0/
// validation1 diagnostic signal, or RunUnknown if none fired.
func (s *System) RunResult() RunResult { return s.runResult }

/*
 * etsoc-sim - Memory and scratchpad coherence observability hook
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

// Package checker is the observability hook coherent memory accesses and
// scratchpad line-status transitions notify so that tests (and the
// -mem_check/-l1_scp_check/-l2_scp_check/-flb_check CLI flags) can see
// ordering that would otherwise only be implicit in final register state.
// Adapted from the teacher's util/debug mask-gated logger: instead of a
// printf sink, each check category owns an independent enable bit and a
// slog.Logger, and violations are recorded rather than merely printed so a
// test can assert on them directly.
package checker

import (
	"fmt"
	"log/slog"
	"sync"
)

// Category is one of the four independently toggled checks.
type Category int

const (
	MemCheck Category = iota
	L1ScpCheck
	L2ScpCheck
	FLBCheck
	numCategories
)

func (c Category) String() string {
	switch c {
	case MemCheck:
		return "mem_check"
	case L1ScpCheck:
		return "l1_scp_check"
	case L2ScpCheck:
		return "l2_scp_check"
	case FLBCheck:
		return "flb_check"
	default:
		return "unknown"
	}
}

// AccessKind describes the memory operation being observed.
type AccessKind int

const (
	AccessLoad AccessKind = iota
	AccessStore
	AccessAMO
	AccessSBL // shared-bank local RMW
	AccessSBG // shared-bank global RMW
)

// LineStatus mirrors the scratchpad line-status lifecycle of spec.md §3
// ("Scratchpad (L1)"): Invalid -> Fill -> Valid, with FillUnknown/Unknown
// covering in-flight tensor-engine fills whose completion hasn't yet been
// observed.
type LineStatus int

const (
	LineInvalid LineStatus = iota
	LineFill
	LineValid
	LineFillUnknown
	LineUnknown
	LineInUse
)

func (s LineStatus) String() string {
	switch s {
	case LineInvalid:
		return "invalid"
	case LineFill:
		return "fill"
	case LineValid:
		return "valid"
	case LineFillUnknown:
		return "fill-unknown"
	case LineUnknown:
		return "unknown"
	case LineInUse:
		return "in-use"
	default:
		return "?"
	}
}

// Violation is a single recorded coherence or line-status problem.
type Violation struct {
	Category Category
	HartID   int
	Addr     uint64
	Message  string
}

// Checker gates the four coherence checks and accumulates violations.
// Zero value is a fully-disabled checker (safe default).
type Checker struct {
	mu         sync.Mutex
	enabled    [numCategories]bool
	log        *slog.Logger
	violations []Violation
}

// New builds a Checker that logs through log.
func New(log *slog.Logger) *Checker {
	return &Checker{log: log}
}

// Enable turns a category on. A disabled category costs one
// mutex-guarded flag lookup on each call.
func (c *Checker) Enable(cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[cat] = true
}

func (c *Checker) isEnabled(cat Category) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[cat]
}

// Violations returns a snapshot of everything recorded so far.
func (c *Checker) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Violation, len(c.violations))
	copy(out, c.violations)
	return out
}

func (c *Checker) record(v Violation) {
	c.mu.Lock()
	c.violations = append(c.violations, v)
	c.mu.Unlock()
	if c.log != nil {
		c.log.Warn("coherence violation", "category", v.Category.String(), "hart", v.HartID, "addr", fmt.Sprintf("%#x", v.Addr), "detail", v.Message)
	}
}

// NotifyAccess is called on every coherent memory access (DRAM load/store,
// AMO, sbl/sbg/shl/shg RMW per spec.md §4.5). It is a no-op unless MemCheck
// is enabled.
func (c *Checker) NotifyAccess(hartID int, kind AccessKind, addr uint64, size int) {
	if !c.isEnabled(MemCheck) {
		return
	}
	if size != 1 && size != 2 && size != 4 && size != 8 && size != 16 && size != 32 && size != 64 {
		c.record(Violation{Category: MemCheck, HartID: hartID, Addr: addr, Message: fmt.Sprintf("unsupported access size %d", size)})
		return
	}
	if addr%uint64(size) != 0 && (kind == AccessAMO || kind == AccessSBL || kind == AccessSBG) {
		c.record(Violation{Category: MemCheck, HartID: hartID, Addr: addr, Message: "misaligned atomic access"})
	}
}

// NotifyLineTransition records a scratchpad line changing status, and flags
// a violation if the transition isn't one of the lifecycle's legal edges:
// Invalid->Fill, Fill->Valid|FillUnknown, FillUnknown->Valid|Unknown,
// Valid->Invalid (eviction), Unknown->Invalid, *->InUse only from Valid,
// InUse->Valid.
func (c *Checker) NotifyLineTransition(isL2 bool, unitID int, line uint64, from, to LineStatus) {
	cat := L1ScpCheck
	if isL2 {
		cat = L2ScpCheck
	}
	if !c.isEnabled(cat) {
		return
	}
	if !legalTransition(from, to) {
		c.record(Violation{Category: cat, HartID: unitID, Addr: line, Message: fmt.Sprintf("illegal line transition %s -> %s", from, to)})
	}
}

func legalTransition(from, to LineStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case LineInvalid:
		return to == LineFill
	case LineFill:
		return to == LineValid || to == LineFillUnknown
	case LineFillUnknown:
		return to == LineValid || to == LineUnknown
	case LineValid:
		return to == LineInvalid || to == LineInUse
	case LineInUse:
		return to == LineValid
	case LineUnknown:
		return to == LineInvalid
	default:
		return false
	}
}

// NotifyFLBEmpty is called when a fused-load-buffer consumer observes an
// empty buffer (spec.md insn_flags FLB bit); with FLBCheck enabled this
// records every such stall so a test can assert the expected stall count.
func (c *Checker) NotifyFLBEmpty(hartID int, addr uint64) {
	if !c.isEnabled(FLBCheck) {
		return
	}
	c.record(Violation{Category: FLBCheck, HartID: hartID, Addr: addr, Message: "flb empty on consume"})
}

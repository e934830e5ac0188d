/*
 * etsoc-sim - SimAPI host embedding
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

// Package hostapi implements the optional "SimAPI" host embedding of
// spec.md §5/§6: a PCIe-style iATU address translator fronting up to
// eight BARs, a bounded host<->emulator mailbox drained on the emulator
// thread, and a waitForInterrupt condition variable. Grounded on the
// teacher's emu/core/core.go packet-channel pattern (a bounded channel
// feeding a single consumer goroutine) generalized to a request/future
// shape, since the teacher has no host-embedding analogue of its own.
package hostapi

import "fmt"

// numIATUs is the number of translation-unit entries (spec.md §6: "8
// iATUs").
const numIATUs = 8

// ctrl2 bit positions (spec.md §6).
const (
	ctrl2RegionEnable = uint32(1) << 31
	ctrl2BARMatchMode = uint32(1) << 30
)

// IATUEntry is one PCIe-style address-translation-unit register set.
// The upper/lower halves spec.md describes are a wire-format detail of
// the real PCIe DBI registers; the host-facing Go API here stores each
// as a single 64-bit value. These entries are not backed by
// internal/memmap.PCIeDBI, whose window holds separate 4-byte registers.
type IATUEntry struct {
	Ctrl1  uint32
	Ctrl2  uint32
	Base   uint64
	Limit  uint64
	Target uint64
}

func (e *IATUEntry) enabled() bool { return e.Ctrl2&ctrl2RegionEnable != 0 }
func (e *IATUEntry) addressMatch() bool { return e.Ctrl2&ctrl2BARMatchMode == 0 }

func (e *IATUEntry) contains(addr uint64) bool {
	return e.enabled() && e.addressMatch() && addr >= e.Base && addr <= e.Limit
}

func (e *IATUEntry) translate(addr uint64) uint64 {
	return e.Target + (addr - e.Base)
}

// TranslationError reports a host MMIO request that could not be
// mapped through any enabled iATU entry (spec.md §7: "Host embedding
// fatal: translation failure").
type TranslationError struct {
	Addr uint64
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("hostapi: no iATU entry maps host address %#x", e.Addr)
}

// ATU is the 8-entry iATU table. The zero value is a table with every
// entry disabled.
type ATU struct {
	Entries [numIATUs]IATUEntry
}

// span is one contiguous run of a translated request mapped through a
// single iATU entry.
type span struct {
	DeviceAddr uint64
	Length     uint64
}

// Translate maps the byte range [addr, addr+length) through the table,
// splitting across iATU entries as needed (spec.md §6: "Requests may
// span multiple iATUs and are split accordingly. If any slice is
// unmapped the call fails."). On success it returns the spans in
// ascending host-address order; a request mapped entirely by one entry
// returns a single span.
func (a *ATU) Translate(addr, length uint64) ([]span, error) {
	var spans []span
	for length > 0 {
		e := a.find(addr)
		if e == nil {
			return nil, &TranslationError{Addr: addr}
		}
		chunk := e.Limit - addr + 1
		if chunk > length {
			chunk = length
		}
		spans = append(spans, span{DeviceAddr: e.translate(addr), Length: chunk})
		addr += chunk
		length -= chunk
	}
	return spans, nil
}

func (a *ATU) find(addr uint64) *IATUEntry {
	for i := range a.Entries {
		if a.Entries[i].contains(addr) {
			return &a.Entries[i]
		}
	}
	return nil
}

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

package hostapi

import "sync"

// Interrupts is the host-visible pending-interrupt bitmask and its
// condition variable (spec.md §5: "Host-visible interrupts are
// published to a condition variable the host waits on").
type Interrupts struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending uint64
	closed  bool
}

func NewInterrupts() *Interrupts {
	in := &Interrupts{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Publish ORs bits into the pending mask and wakes any waiter.
func (in *Interrupts) Publish(bits uint64) {
	in.mu.Lock()
	in.pending |= bits
	in.mu.Unlock()
	in.cond.Broadcast()
}

// Close unblocks every waiter permanently (used on emulator shutdown so
// a host thread blocked in WaitForInterrupt does not hang forever).
func (in *Interrupts) Close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	in.cond.Broadcast()
}

// WaitForInterrupt blocks until the pending mask intersects want, then
// returns that intersection and clears the returned bits from pending
// (spec.md §5: "returns the intersection of the pending bitmask and
// the caller's mask and clears those bits"). Returns 0 if the host
// embedding is closed before any bit in want becomes pending.
func (in *Interrupts) WaitForInterrupt(want uint64) uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	for in.pending&want == 0 && !in.closed {
		in.cond.Wait()
	}
	hit := in.pending & want
	in.pending &^= hit
	return hit
}

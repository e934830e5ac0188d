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

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/system"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

// Request is one host<->emulator mailbox message: an MMIO access the
// host wants performed against device memory on the emulator thread.
type Request struct {
	op    opKind
	addr  uint64
	size  int
	value uint64
	fut   *Future
}

// Future is the promise-like handle spec.md §5 calls for: the host
// posts a Request and later blocks on Wait for its result.
type Future struct {
	done  chan struct{}
	value uint64
	err   error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// Wait blocks until the emulator thread has executed the request.
func (f *Future) Wait() (uint64, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future) resolve(value uint64, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Host is the SimAPI embedding: an iATU translator in front of a
// bounded mailbox drained on the emulator thread, plus the
// waitForInterrupt condition variable. Grounded structurally on the
// teacher's emu/core/core.go, which feeds a single packet-processing
// goroutine from a bounded channel; here the channel carries host MMIO
// requests instead of channel-device packets.
type Host struct {
	sys        *system.System
	ATU        ATU
	Interrupts *Interrupts

	mailbox chan *Request
	mu      sync.Mutex // serializes mailbox execution against the scheduler's own stepping
}

// New builds a host embedding over sys with a mailbox of the given
// bounded capacity (spec.md §5: "bounded mailbox").
func New(sys *system.System, mailboxCapacity int) *Host {
	return &Host{
		sys:        sys,
		Interrupts: NewInterrupts(),
		mailbox:    make(chan *Request, mailboxCapacity),
	}
}

// PostRead and PostWrite enqueue a host MMIO request. They return
// ok=false without blocking if the mailbox is full, mirroring
// memmap.Port's bounded-push convention.
func (h *Host) PostRead(addr uint64, size int) (*Future, bool) {
	return h.post(&Request{op: opRead, addr: addr, size: size})
}

func (h *Host) PostWrite(addr uint64, size int, value uint64) (*Future, bool) {
	return h.post(&Request{op: opWrite, addr: addr, size: size, value: value})
}

func (h *Host) post(req *Request) (*Future, bool) {
	req.fut = newFuture()
	select {
	case h.mailbox <- req:
		return req.fut, true
	default:
		return nil, false
	}
}

// Run drives the scheduler and the mailbox drain concurrently until ctx
// is cancelled or either side errors. When no hart is runnable the
// scheduler side ends, but the drain keeps serving requests until ctx is
// cancelled. An error or panic recovered on one side cancels the other (spec.md §7: "Host
// embedding fatal ... propagated panic. Reported to the host listener;
// the emulator thread exits cleanly.").
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.schedulerLoop(ctx) })
	g.Go(func() error { return h.drainLoop(ctx) })
	err := g.Wait()
	h.Interrupts.Close()
	return err
}

func (h *Host) schedulerLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hostapi: scheduler thread panicked: %v", r)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		h.mu.Lock()
		runnable := h.sys.Step()
		h.mu.Unlock()
		if !runnable {
			return nil
		}
	}
}

func (h *Host) drainLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hostapi: mailbox drain panicked: %v", r)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-h.mailbox:
			h.execute(req)
		}
	}
}

// execute performs one request inline against sys, under the same lock
// the scheduler uses, so the access is indivisible with respect to
// hart stepping (spec.md §5: "each request is executed inline by the
// emulator thread").
func (h *Host) execute(req *Request) {
	spans, err := h.ATU.Translate(req.addr, uint64(req.size))
	if err != nil {
		req.fut.resolve(0, err)
		return
	}
	if len(spans) != 1 {
		req.fut.resolve(0, fmt.Errorf("hostapi: request at %#x straddles an iATU boundary; split the request", req.addr))
		return
	}
	devAddr := spans[0].DeviceAddr
	agent := memmap.Agent{Type: memmap.AccessHost}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch req.op {
	case opRead:
		v, err := h.sys.Bus.Read(devAddr, req.size, agent)
		req.fut.resolve(v, err)
	case opWrite:
		err := h.sys.Bus.Write(devAddr, req.size, req.value, agent)
		req.fut.resolve(0, err)
	}
}

package hostapi

import (
	"context"
	"testing"
	"time"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/system"
)

func smallSystem() *system.System {
	return system.New(system.Config{ShireCount: 2, HartsPerShire: 4, DRAMSize: 1 << 20})
}

func TestATUTranslateSingleEntry(t *testing.T) {
	var atu ATU
	atu.Entries[0] = IATUEntry{
		Ctrl2:  ctrl2RegionEnable,
		Base:   0x1000,
		Limit:  0x1fff,
		Target: memmap.DRAMBase,
	}
	spans, err := atu.Translate(0x1004, 4)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(spans) != 1 || spans[0].DeviceAddr != memmap.DRAMBase+4 || spans[0].Length != 4 {
		t.Fatalf("unexpected spans: %+v", spans)
	}
}

func TestATUTranslateRejectsDisabledEntry(t *testing.T) {
	var atu ATU
	atu.Entries[0] = IATUEntry{Base: 0x1000, Limit: 0x1fff, Target: memmap.DRAMBase}
	if _, err := atu.Translate(0x1004, 4); err == nil {
		t.Fatal("expected translation failure for a disabled entry")
	}
}

func TestATUTranslateRejectsUnmappedAddress(t *testing.T) {
	var atu ATU
	atu.Entries[0] = IATUEntry{Ctrl2: ctrl2RegionEnable, Base: 0x1000, Limit: 0x1fff, Target: memmap.DRAMBase}
	if _, err := atu.Translate(0x5000, 4); err == nil {
		t.Fatal("expected translation failure outside any entry")
	}
}

func TestATUTranslateSplitsAcrossEntries(t *testing.T) {
	var atu ATU
	atu.Entries[0] = IATUEntry{Ctrl2: ctrl2RegionEnable, Base: 0x1000, Limit: 0x1003, Target: memmap.DRAMBase}
	atu.Entries[1] = IATUEntry{Ctrl2: ctrl2RegionEnable, Base: 0x1004, Limit: 0x1007, Target: memmap.DRAMBase + 0x100}
	spans, err := atu.Translate(0x1002, 4)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected a 2-way split, got %+v", spans)
	}
}

func TestInterruptsWaitReturnsIntersectionAndClears(t *testing.T) {
	in := NewInterrupts()
	in.Publish(0b1010)
	got := in.WaitForInterrupt(0b0011)
	if got != 0b0010 {
		t.Fatalf("WaitForInterrupt = %#b, want 0b0010", got)
	}
	// The cleared bit must not be seen again, but the untouched bit 0b1000 remains.
	in.Publish(0)
	remaining := in.WaitForInterrupt(0b1111)
	if remaining != 0b1000 {
		t.Fatalf("remaining pending = %#b, want 0b1000", remaining)
	}
}

func TestInterruptsWaitBlocksUntilPublish(t *testing.T) {
	in := NewInterrupts()
	result := make(chan uint64, 1)
	go func() { result <- in.WaitForInterrupt(0x1) }()

	select {
	case <-result:
		t.Fatal("WaitForInterrupt returned before any interrupt was published")
	case <-time.After(20 * time.Millisecond):
	}

	in.Publish(0x1)
	select {
	case got := <-result:
		if got != 0x1 {
			t.Fatalf("got %#x, want 0x1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForInterrupt did not wake after Publish")
	}
}

func TestInterruptsCloseUnblocksWaiters(t *testing.T) {
	in := NewInterrupts()
	done := make(chan uint64, 1)
	go func() { done <- in.WaitForInterrupt(0x1) }()

	time.Sleep(20 * time.Millisecond)
	in.Close()

	select {
	case got := <-done:
		if got != 0 {
			t.Fatalf("got %#x after close, want 0", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a pending waiter")
	}
}

func TestHostPostWriteExecutesAgainstBus(t *testing.T) {
	sys := smallSystem()
	h := New(sys, 4)
	h.ATU.Entries[0] = IATUEntry{
		Ctrl2:  ctrl2RegionEnable,
		Base:   0,
		Limit:  0xffff,
		Target: memmap.DRAMBase,
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx) }()

	fut, ok := h.PostWrite(0x10, 4, 0xdeadbeef)
	if !ok {
		t.Fatal("PostWrite rejected by a supposedly empty mailbox")
	}
	if _, err := fut.Wait(); err != nil {
		t.Fatalf("write request failed: %v", err)
	}

	readFut, ok := h.PostRead(0x10, 4)
	if !ok {
		t.Fatal("PostRead rejected")
	}
	v, err := readFut.Wait()
	if err != nil {
		t.Fatalf("read request failed: %v", err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("read back %#x, want 0xdeadbeef", v)
	}

	cancel()
	<-errCh
}

func TestHostPostRejectsWhenMailboxFull(t *testing.T) {
	sys := smallSystem()
	h := New(sys, 1)
	h.ATU.Entries[0] = IATUEntry{Ctrl2: ctrl2RegionEnable, Base: 0, Limit: 0xffff, Target: memmap.DRAMBase}

	// Fill the mailbox without a drain loop running to consume it.
	if _, ok := h.PostWrite(0, 4, 1); !ok {
		t.Fatal("first post unexpectedly rejected")
	}
	if _, ok := h.PostWrite(4, 4, 2); ok {
		t.Fatal("expected the second post to be rejected once the mailbox is full")
	}
}

func TestHostTranslationFailureResolvesFutureWithError(t *testing.T) {
	sys := smallSystem()
	h := New(sys, 4) // no iATU entries enabled

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	fut, ok := h.PostRead(0x10, 4)
	if !ok {
		t.Fatal("PostRead rejected")
	}
	if _, err := fut.Wait(); err == nil {
		t.Fatal("expected a translation failure with no iATU entries configured")
	}
}

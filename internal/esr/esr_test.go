package esr

import (
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

func TestDecodeHartSubregion(t *testing.T) {
	addr := uint64(0)<<20 | uint64(5)<<12 | uint64(3)<<22
	a := Decode(addr)
	if a.Subregion != SubHart {
		t.Fatalf("expected SubHart, got %v", a.Subregion)
	}
	if a.HartIdx != 5 || a.Shire != 3 {
		t.Fatalf("hartidx=%d shire=%d", a.HartIdx, a.Shire)
	}
}

func TestDecodeNeighSubregion(t *testing.T) {
	addr := uint64(1)<<20 | uint64(0xf)<<16
	a := Decode(addr)
	if a.Subregion != SubNeigh || a.Neigh != 0xf {
		t.Fatalf("expected neigh broadcast, got %v neigh=%d", a.Subregion, a.Neigh)
	}
}

func TestDecodeCacheAndShireOther(t *testing.T) {
	cacheAddr := uint64(3)<<20 | uint64(0)<<17
	a := Decode(cacheAddr)
	if a.Subregion != SubCache {
		t.Fatalf("expected SubCache, got %v", a.Subregion)
	}

	otherAddr := uint64(3)<<20 | uint64(2)<<17
	a2 := Decode(otherAddr)
	if a2.Subregion != SubShireOther {
		t.Fatalf("expected SubShireOther, got %v", a2.Subregion)
	}
}

func TestIsPortAddr(t *testing.T) {
	port, ok := IsPortAddr(0x800)
	if !ok || port != 0 {
		t.Fatalf("expected port 0 at 0x800, got %d ok=%v", port, ok)
	}
	port, ok = IsPortAddr(0x840)
	if !ok || port != 1 {
		t.Fatalf("expected port 1 at 0x840, got %d ok=%v", port, ok)
	}
	if _, ok := IsPortAddr(0x900); ok {
		t.Fatal("0x900 should not decode as a port address")
	}
}

func TestHartPortRoundTrip(t *testing.T) {
	f := NewFile()
	agent := memmap.Agent{ShireID: 2, HartID: 1}
	addr := uint64(2)<<22 | uint64(1)<<12 | uint64(0x800)

	if err := f.Write(addr, 0xdeadbeef, agent); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	v, err := f.Read(addr, agent)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("expected 0xdeadbeef, got %#x", v)
	}
}

func TestBroadcastFanOut(t *testing.T) {
	f := NewFile()
	agent := memmap.Agent{ShireID: 0}
	shireOtherBase := func(shire uint32) uint64 {
		return uint64(3)<<20 | uint64(2)<<17 | uint64(shire)<<22
	}

	maskAddr := shireOtherBase(0) + 0x20
	if err := f.Write(maskAddr, 1<<7, agent); err != nil {
		t.Fatalf("mask write failed: %v", err)
	}
	dataAddr := shireOtherBase(0) + 0x00
	if err := f.Write(dataAddr, 0x1234, agent); err != nil {
		t.Fatalf("data write failed: %v", err)
	}
	addrAddr := shireOtherBase(0) + 0x08
	if err := f.Write(addrAddr, 0x5678, agent); err != nil {
		t.Fatalf("addr write failed: %v", err)
	}

	target := f.ShireOther(7)
	if target.BroadcastData != 0x1234 || target.BroadcastAddr != 0x5678 {
		t.Fatalf("broadcast did not fan out to shire 7: data=%#x addr=%#x", target.BroadcastData, target.BroadcastAddr)
	}
}

func TestDebugModuleHaltResume(t *testing.T) {
	d := NewDebugModule()
	halt, resume, _ := d.WriteDMCtrl(3, dmctrlDMActive|dmctrlHaltReq)
	if !halt || resume {
		t.Fatalf("expected halt request, got halt=%v resume=%v", halt, resume)
	}
	if !d.halted[3] {
		t.Fatal("hart 3 should be marked halted")
	}

	halt, resume, _ = d.WriteDMCtrl(3, dmctrlDMActive|dmctrlResumeReq)
	if halt || !resume {
		t.Fatalf("expected resume request, got halt=%v resume=%v", halt, resume)
	}
	if d.halted[3] {
		t.Fatal("hart 3 should no longer be halted")
	}
}

func TestAndOrTreeAggregation(t *testing.T) {
	d := NewDebugModule()
	d.WriteDMCtrl(0, dmctrlDMActive|dmctrlHaltReq)
	d.WriteDMCtrl(1, dmctrlDMActive|dmctrlHaltReq)
	d.running[2] = true

	v := d.AndOrTree(0, []int{0, 1, 2})
	const anyHalted = 1 << 0
	const allHalted = 1 << 1
	const anyRunning = 1 << 2
	if v&anyHalted == 0 {
		t.Fatal("expected anyHalted set")
	}
	if v&allHalted != 0 {
		t.Fatal("did not expect allHalted since hart 2 is not halted")
	}
	if v&anyRunning == 0 {
		t.Fatal("expected anyRunning set for hart 2")
	}
}

func TestNeighPMUCounters(t *testing.T) {
	f := NewFile()
	n := f.NeighReg(1, 2)
	n.Cycles = 100
	n.RetiredInstrs = 42

	agent := memmap.Agent{}
	addr := uint64(1)<<20 | uint64(2)<<16 | uint64(1)<<22
	v, err := f.Read(addr, agent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 100 {
		t.Fatalf("expected cycles=100, got %d", v)
	}
}

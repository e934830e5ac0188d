package tensor

import (
	"math"
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/hart"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/mmu"
)

func newTestEngine() (*Engine, *hart.Hart) {
	bus := memmap.New(nil)
	bus.AddRegion(memmap.NewDRAM(1<<20, 0))
	bus.AddRegion(memmap.NewL2Scratchpad().Primary())
	tr := mmu.New(bus)
	e := New(bus, tr)
	h := hart.New(0, 0)
	return e, h
}

func TestTensorLoadGathersRows(t *testing.T) {
	e, h := newTestEngine()
	base := uint64(memmap.L2Base + 0x1000) // the address field holds 32 bits of 64-byte units, so it must be below 1<<38
	e.Bus.Write(base, 8, 0x1122334455667788, memmap.Agent{})

	value := (base >> 6 << fieldAddrShift) | (1 << fieldRowsShift) // 1 row, stride defaults to rowBytes
	e.Load(h, value)

	row := e.L1.row(0)
	if le32(row[0:]) != 0x55667788 {
		t.Fatalf("expected low word 0x55667788, got %#x", le32(row[0:]))
	}
}

func TestTensorLoadRejectsTransposeReserved(t *testing.T) {
	e, h := newTestEngine()
	value := uint64(3) // trans=3 is reserved
	e.Load(h, value)
	if h.CSR.TensorError&(1<<1) == 0 {
		t.Fatal("expected tensor_error bit 1 set for reserved trans value")
	}
}

func TestTensorFMAFirstPassOverwrites(t *testing.T) {
	e, h := newTestEngine()
	// Seed L1 rows 0..15 with 1.0f in every lane: row 0 is A's only row
	// and, with bstart=0, B row k is L1 row k.
	oneF := uint32(0x3f800000)
	for r := 0; r < rowBytes/4; r++ {
		row := e.L1.row(r)
		for i := 0; i < rowBytes; i += 4 {
			putLE32(row[i:], oneF)
		}
	}

	value := uint64(1<<fieldRowsShift) | fieldFirstPassBit // 1 row, first_pass
	e.FMA(h, value)

	acols := rowBytes / 4
	want := float32FromBits(oneF) * float32FromBits(oneF) * float32(acols)
	got := float32FromBits(e.TenC.rows[0][0])
	if abs32(got-want) > 1e-3 {
		t.Fatalf("expected ~%v, got %v", want, got)
	}
}

func TestTensorStoreToVectorRegisters(t *testing.T) {
	e, h := newTestEngine()
	e.TenC.rows[0] = [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}

	value := uint64(1 << fieldRowsShift) // 1 row, register mode (bit 13 clear)
	e.Store(h, value)

	if h.Vec[0][0] != (uint64(2)<<32 | 1) {
		t.Fatalf("expected lane0=1, lane1=2 packed, got %#x", h.Vec[0][0])
	}
}

func TestCoopSatisfiedWithNoRegistration(t *testing.T) {
	e, _ := newTestEngine()
	if !e.CoopSatisfied(0xff) {
		t.Fatal("an untracked coop key should be considered satisfied")
	}
}

func TestReduceZeroRegistersSetsTensorError(t *testing.T) {
	e, h := newTestEngine()
	e.Reduce(h, 0)
	if h.CSR.TensorError&(1<<9) == 0 {
		t.Fatal("expected tensor_error bit 9 set for nregs=0")
	}
}

func reduceValue(subop, arith int, level, id uint64, rows uint64) uint64 {
	return rows<<fieldRowsShift |
		uint64(subop)<<fieldReduceSubopShift |
		uint64(arith)<<fieldReduceArithShift |
		level<<fieldReduceLevelShift |
		id<<fieldReduceIDShift
}

func TestReduceSendRecvCombinesWithArithOp(t *testing.T) {
	hub := NewReduceHub()
	sender, hs := newTestEngine()
	sender.SetReduceHub(hub)
	receiver, hr := newTestEngine()
	receiver.SetReduceHub(hub)

	sender.TenC.rows[0] = [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}
	receiver.TenC.rows[0] = [8]uint32{10, 10, 10, 10, 10, 10, 10, 10}

	sender.Reduce(hs, reduceValue(reduceOpSend, 0, 0, 0x5, 1))
	receiver.Reduce(hr, reduceValue(reduceOpRecv, reduceArithIAdd, 0, 0x5, 1))

	want := [8]uint32{11, 12, 13, 14, 15, 16, 17, 18}
	if receiver.TenC.rows[0] != want {
		t.Fatalf("expected iadd-combined row %v, got %v", want, receiver.TenC.rows[0])
	}
}

func TestReduceRecvWithNoPostedSendIsNoop(t *testing.T) {
	e, h := newTestEngine()
	e.SetReduceHub(NewReduceHub())
	e.TenC.rows[0] = [8]uint32{9, 9, 9, 9, 9, 9, 9, 9}

	e.Reduce(h, reduceValue(reduceOpRecv, reduceArithIAdd, 0, 0xab, 1))

	want := [8]uint32{9, 9, 9, 9, 9, 9, 9, 9}
	if e.TenC.rows[0] != want {
		t.Fatalf("expected row unchanged with nothing posted, got %v", e.TenC.rows[0])
	}
}

func TestReduceBroadcastReplicatesFromSenderToReceiver(t *testing.T) {
	hub := NewReduceHub()
	// At level 0 (mask=1), minion&1==0 is the receiver and minion&1==1
	// is the sender (spec.md §4.6.5's recursive-halving rule, shared by
	// Broadcast and Reduce): minion 1 sends, minion 0 receives.
	receiver, h0 := newTestEngine() // minion 0: hart IDs 0-1
	h0.ShireID, h0.HartID = 0, 0
	receiver.SetReduceHub(hub)
	sender, h1 := newTestEngine() // minion 1: hart IDs 2-3
	h1.ShireID, h1.HartID = 0, 2
	sender.SetReduceHub(hub)

	sender.TenC.rows[0] = [8]uint32{42, 42, 42, 42, 42, 42, 42, 42}
	receiver.TenC.rows[0] = [8]uint32{0, 0, 0, 0, 0, 0, 0, 0}

	sender.Reduce(h1, reduceValue(reduceOpBroadcast, 0, 0, 0x9, 1))
	receiver.Reduce(h0, reduceValue(reduceOpBroadcast, 0, 0, 0x9, 1))

	if receiver.TenC.rows[0] != sender.TenC.rows[0] {
		t.Fatalf("expected broadcast to replicate sender's row onto receiver, sender=%v receiver=%v", sender.TenC.rows[0], receiver.TenC.rows[0])
	}
}

func float32FromBits(v uint32) float32 {
	return math.Float32frombits(v)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

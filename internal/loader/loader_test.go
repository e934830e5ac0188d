package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/checker"
	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

// buildELF hand-assembles a minimal ELF64 little-endian image with a
// single PT_LOAD segment carrying payload at file offset 120 (64-byte
// ELF header + one 56-byte program header), loaded at vaddr==paddr.
func buildELF(t *testing.T, vaddr, paddr uint64, payload []byte) []byte {
	t.Helper()
	const ehsize = 64
	const phentsize = 56
	dataOff := uint64(ehsize + phentsize)

	buf := new(bytes.Buffer)
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1, 0}
	buf.Write(ident[:])
	binary.Write(buf, binary.LittleEndian, uint16(2))          // e_type = ET_EXEC
	binary.Write(buf, binary.LittleEndian, uint16(0xf3))       // e_machine = EM_RISCV
	binary.Write(buf, binary.LittleEndian, uint32(1))          // e_version
	binary.Write(buf, binary.LittleEndian, uint64(vaddr))      // e_entry
	binary.Write(buf, binary.LittleEndian, uint64(ehsize))     // e_phoff
	binary.Write(buf, binary.LittleEndian, uint64(0))          // e_shoff
	binary.Write(buf, binary.LittleEndian, uint32(0))          // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(ehsize))     // e_ehsize
	binary.Write(buf, binary.LittleEndian, uint16(phentsize))  // e_phentsize
	binary.Write(buf, binary.LittleEndian, uint16(1))          // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(0))          // e_shentsize
	binary.Write(buf, binary.LittleEndian, uint16(0))          // e_shnum
	binary.Write(buf, binary.LittleEndian, uint16(0))          // e_shstrndx

	binary.Write(buf, binary.LittleEndian, uint32(1)) // p_type = PT_LOAD
	binary.Write(buf, binary.LittleEndian, uint32(5)) // p_flags = R|X
	binary.Write(buf, binary.LittleEndian, dataOff)   // p_offset
	binary.Write(buf, binary.LittleEndian, vaddr)     // p_vaddr
	binary.Write(buf, binary.LittleEndian, paddr)     // p_paddr
	binary.Write(buf, binary.LittleEndian, uint64(len(payload))) // p_filesz
	binary.Write(buf, binary.LittleEndian, uint64(len(payload))) // p_memsz
	binary.Write(buf, binary.LittleEndian, uint64(0x1000))       // p_align

	buf.Write(payload)
	return buf.Bytes()
}

func newTestBus(t *testing.T) *memmap.Bus {
	t.Helper()
	bus := memmap.New(checker.New(nil))
	bus.AddRegion(memmap.NewDRAM(1<<20, 0))
	return bus
}

func TestLoadELFCopiesSegmentToPhysicalAddress(t *testing.T) {
	bus := newTestBus(t)
	payload := []byte{0x13, 0x05, 0x70, 0x00, 0x73, 0x00, 0x50, 0x10} // addi x10,x0,7; wfi
	paddr := uint64(memmap.DRAMBase + 0x1000)
	img := buildELF(t, paddr, paddr, payload)

	segs, err := LoadELF(bus, bytes.NewReader(img))
	if err != nil {
		t.Fatalf("LoadELF: %v", err)
	}
	if len(segs) != 1 || segs[0].PAddr != paddr || segs[0].Size != uint64(len(payload)) {
		t.Fatalf("unexpected segment report: %+v", segs)
	}

	for i := 0; i < len(payload); i += 4 {
		got, err := bus.Read(paddr+uint64(i), 4, memmap.Agent{})
		if err != nil {
			t.Fatalf("read back at %#x: %v", i, err)
		}
		want := uint64(binary.LittleEndian.Uint32(payload[i : i+4]))
		if got != want {
			t.Fatalf("at offset %d: got %#x want %#x", i, got, want)
		}
	}
}

func TestLoadELFAppliesDRAMAliasFixup(t *testing.T) {
	bus := newTestBus(t)
	payload := []byte{1, 2, 3, 4}
	aliased := uint64(memmap.DRAMBase | dramAliasBit | 0x40)
	img := buildELF(t, aliased, aliased, payload)

	segs, err := LoadELF(bus, bytes.NewReader(img))
	if err != nil {
		t.Fatalf("LoadELF: %v", err)
	}
	want := uint64(memmap.DRAMBase | 0x40)
	if segs[0].PAddr != want {
		t.Fatalf("expected bit 38 cleared, got %#x want %#x", segs[0].PAddr, want)
	}
}

func TestLoadELFRejectsNon64Bit(t *testing.T) {
	bus := newTestBus(t)
	if _, err := LoadELF(bus, bytes.NewReader([]byte("not an elf"))); err == nil {
		t.Fatal("expected an error for a non-ELF file")
	}
}

func TestLoadRawCopiesVerbatim(t *testing.T) {
	bus := newTestBus(t)
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	addr := uint64(memmap.DRAMBase + 0x200)

	if err := LoadRaw(bus, addr, data); err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	for i, want := range data {
		got, err := bus.Read(addr+uint64(i), 1, memmap.Agent{})
		if err != nil {
			t.Fatalf("read back byte %d: %v", i, err)
		}
		if byte(got) != want {
			t.Fatalf("byte %d: got %#x want %#x", i, got, want)
		}
	}
}

package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
	"github.com/esperanto-oss/etsoc-sim/internal/system"
)

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	sys := system.New(system.Config{ShireCount: 2, HartsPerShire: 4, DRAMSize: 1 << 20})
	var buf bytes.Buffer
	return New(sys, &buf), &buf
}

func TestDispatchRegsPrintsHartState(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.dispatch("regs 0"); err != nil {
		t.Fatalf("dispatch regs: %v", err)
	}
	if !strings.Contains(buf.String(), "hart 0") {
		t.Fatalf("expected hart 0 dump, got %q", buf.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.dispatch("frobnicate"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestDispatchPrefixMatchesUniqueCommand(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.dispatch("reg 0"); err != nil {
		t.Fatalf("dispatch with prefix: %v", err)
	}
	if !strings.Contains(buf.String(), "hart 0") {
		t.Fatalf("expected prefix match to run regs, got %q", buf.String())
	}
}

func TestDispatchBreakAndStep(t *testing.T) {
	c, buf := newTestConsole(t)
	h := c.sys.Harts()[0]
	h.PC = memmap.DRAMBase

	// addi x1, x0, 1 at DRAMBase, then a second instruction at +4.
	agent := memmap.Agent{}
	if err := c.sys.Bus.Write(h.PC, 4, 0x00100093, agent); err != nil {
		t.Fatalf("writing instruction: %v", err)
	}
	if err := c.dispatch("break 0x" + trimHex(memmap.DRAMBase+4)); err != nil {
		t.Fatalf("dispatch break: %v", err)
	}
	if err := c.dispatch("step 5"); err != nil {
		t.Fatalf("dispatch step: %v", err)
	}
	if !strings.Contains(buf.String(), "breakpoint hit") {
		t.Fatalf("expected breakpoint hit message, got %q", buf.String())
	}
}

func trimHex(v uint64) string {
	s := ""
	for shift := 60; shift >= 0; shift -= 4 {
		s += string("0123456789abcdef"[(v>>uint(shift))&0xf])
	}
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

func TestDispatchQuitSetsFlag(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.dispatch("quit"); err != nil {
		t.Fatalf("dispatch quit: %v", err)
	}
	if !c.quit {
		t.Fatal("expected quit flag to be set")
	}
}

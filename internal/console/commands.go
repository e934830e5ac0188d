/*
 * etsoc-sim - Interactive debug console
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

package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/esperanto-oss/etsoc-sim/internal/memmap"
)

type command struct {
	name     string
	min      int
	run      func(c *Console, args []string) error
	complete func(partial string) []string
}

var commands = []command{
	{name: "regs", min: 1, run: (*Console).cmdRegs},
	{name: "step", min: 2, run: (*Console).cmdStep},
	{name: "continue", min: 1, run: (*Console).cmdContinue},
	{name: "stop", min: 2, run: (*Console).cmdStop},
	{name: "break", min: 2, run: (*Console).cmdBreak},
	{name: "unbreak", min: 3, run: (*Console).cmdUnbreak},
	{name: "mem", min: 1, run: (*Console).cmdMem},
	{name: "quit", min: 1, run: (*Console).cmdQuit},
}

// dispatch tokenizes input and runs the unique command whose name has
// input's first word as a prefix, in the teacher's matchCommand style
// (shortest-unambiguous-prefix matching) but over simple whitespace
// tokens rather than the teacher's device/option grammar, since this
// console has no device registry to parse around.
func (c *Console) dispatch(input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var matches []command
	for _, cmd := range commands {
		if matchPrefix(cmd, name) {
			matches = append(matches, cmd)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("unknown command: %s", name)
	case 1:
		return matches[0].run(c, args)
	default:
		return fmt.Errorf("ambiguous command: %s", name)
	}
}

func matchPrefix(cmd command, name string) bool {
	if len(name) < cmd.min || len(name) > len(cmd.name) {
		return false
	}
	return cmd.name[:len(name)] == name
}

func completeCmd(partial string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd.name, strings.ToLower(partial)) {
			out = append(out, cmd.name)
		}
	}
	return out
}

func (c *Console) cmdRegs(args []string) error {
	idx := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("regs: invalid hart index %q", args[0])
		}
		idx = n
	}
	harts := c.sys.Harts()
	if idx < 0 || idx >= len(harts) {
		return fmt.Errorf("regs: hart index %d out of range (have %d harts)", idx, len(harts))
	}
	h := harts[idx]
	fmt.Fprintf(c.out, "hart %d (shire %d): pc=%#x priv=%d\n", h.HartID, h.ShireID, h.PC, h.CSR.Priv)
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(c.out, "  x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x\n",
			i, h.GetGPR(uint32(i)), i+1, h.GetGPR(uint32(i+1)), i+2, h.GetGPR(uint32(i+2)), i+3, h.GetGPR(uint32(i+3)))
	}
	return nil
}

func (c *Console) cmdStep(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("step: invalid count %q", args[0])
		}
		n = v
	}
	for i := 0; i < n; i++ {
		if !c.sys.Step() {
			fmt.Fprintln(c.out, "system halted")
			return nil
		}
		if pc, hit := c.hitBreakpoint(); hit {
			fmt.Fprintf(c.out, "breakpoint hit at %#x\n", pc)
			return nil
		}
	}
	return nil
}

func (c *Console) cmdContinue(args []string) error {
	for {
		if !c.sys.Step() {
			fmt.Fprintln(c.out, "system halted")
			return nil
		}
		if pc, hit := c.hitBreakpoint(); hit {
			fmt.Fprintf(c.out, "breakpoint hit at %#x\n", pc)
			return nil
		}
	}
}

func (c *Console) cmdStop(_ []string) error {
	c.sys.Stop()
	fmt.Fprintln(c.out, "stopped")
	return nil
}

func (c *Console) cmdBreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("break: usage: break <hex addr>")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("break: invalid address %q: %w", args[0], err)
	}
	c.brk[addr] = true
	fmt.Fprintf(c.out, "breakpoint set at %#x\n", addr)
	return nil
}

func (c *Console) cmdUnbreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("unbreak: usage: unbreak <hex addr>")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("unbreak: invalid address %q: %w", args[0], err)
	}
	delete(c.brk, addr)
	return nil
}

func (c *Console) cmdMem(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("mem: usage: mem <hex addr> [count]")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("mem: invalid address %q: %w", args[0], err)
	}
	count := 16
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("mem: invalid count %q", args[1])
		}
		count = n
	}
	for i := 0; i < count; i += 4 {
		v, err := c.sys.Bus.Read(addr+uint64(i), 4, memmap.Agent{})
		if err != nil {
			return fmt.Errorf("mem: %w", err)
		}
		fmt.Fprintf(c.out, "%#010x: %#08x\n", addr+uint64(i), v)
	}
	return nil
}

func (c *Console) cmdQuit(_ []string) error {
	c.quit = true
	return nil
}

// hitBreakpoint reports whether any hart's PC currently matches a set
// breakpoint.
func (c *Console) hitBreakpoint() (uint64, bool) {
	if len(c.brk) == 0 {
		return 0, false
	}
	for _, h := range c.sys.Harts() {
		if c.brk[h.PC] {
			return h.PC, true
		}
	}
	return 0, false
}

/*
 * etsoc-sim - CLI flag registration and configuration
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

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

/*
 * `.cfg` preload file format, one directive per line:
 *
 *   # comment, rest of line ignored
 *   elf_load <path>
 *   file_load <paddr>,<path>
 *   mem_write32 <paddr>,<value>
 *   mem_reset32 <value>
 *   reset_pc <hex>
 *   sp_reset_pc <hex>
 *   <switch>                     (mem_check, l1_scp_check, l2_scp_check, flb_check, single_thread, ...)
 *
 * Grounded on the teacher's config/configparser.LoadConfigFile: open,
 * read line by line with bufio, skip blank/comment lines, dispatch on
 * the first token. The teacher's grammar supports arbitrary device
 * models with dash/slash suffixes and comma-valued option lists; this
 * format has no device registry, so each directive is just a verb plus
 * zero or one value.
 */

// switches maps a bare-word directive to the Options field it sets.
var switches = map[string]func(*Options){
	"single_thread":     func(o *Options) { o.SingleThread = true },
	"mins_dis":          func(o *Options) { o.MinsDis = true },
	"sp_dis":            func(o *Options) { o.SPDis = true },
	"display_trap_info": func(o *Options) { o.DisplayTrapInfo = true },
	"mem_check":         func(o *Options) { o.MemCheck = true },
	"l1_scp_check":      func(o *Options) { o.L1ScpCheck = true },
	"l2_scp_check":      func(o *Options) { o.L2ScpCheck = true },
	"flb_check":         func(o *Options) { o.FLBCheck = true },
	"gdb":               func(o *Options) { o.GDB = true },
}

// LoadFile reads a `.cfg` preload file and merges its directives into
// o. Directives that also have a CLI flag accumulate (elf_load,
// file_load, mem_write32 append; everything else overwrites).
func LoadFile(o *Options, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := reader.ReadString('\n')
		lineNo++
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := applyLine(o, line); err != nil {
			return fmt.Errorf("config: %s line %d: %w", path, lineNo, err)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func applyLine(o *Options, line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToLower(strings.TrimSpace(verb))
	rest = strings.TrimSpace(rest)

	if set, ok := switches[verb]; ok {
		set(o)
		return nil
	}

	switch verb {
	case "elf_load":
		o.ElfLoads = append(o.ElfLoads, rest)
	case "file_load":
		fl, err := parseFileLoad(rest)
		if err != nil {
			return err
		}
		o.FileLoads = append(o.FileLoads, fl)
	case "mem_write32":
		mw, err := parseMemWrite32(rest)
		if err != nil {
			return err
		}
		o.MemWrites = append(o.MemWrites, mw)
	case "mem_reset32":
		v, err := parseHex32(rest)
		if err != nil {
			return err
		}
		o.MemReset32 = v
	case "reset_pc":
		v, err := parseHex64(rest)
		if err != nil {
			return err
		}
		o.ResetPC = v
	case "sp_reset_pc":
		v, err := parseHex64(rest)
		if err != nil {
			return err
		}
		o.SPResetPC = v
	case "max_cycles":
		v, err := parseHex64(rest)
		if err != nil {
			return err
		}
		o.MaxCycles = v
	default:
		return fmt.Errorf("unknown directive %q", verb)
	}
	return nil
}

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

// Package config registers the emulator's long-option CLI surface
// (spec.md §6) against a github.com/pborman/getopt/v2 Set and resolves
// the parsed strings into typed directives, plus a small line-oriented
// `.cfg` preload format in the style of the teacher's configparser.
package config

import (
	"fmt"

	"github.com/esperanto-oss/etsoc-sim/internal/hexutil"
)

// FileLoad is a resolved `-file_load <paddr>,<path>` directive.
type FileLoad struct {
	PAddr uint64
	Path  string
}

// MemWrite32 is a resolved `-mem_write32 <paddr>,<value>` directive.
type MemWrite32 struct {
	PAddr uint64
	Value uint32
}

// Options holds every resolved flag value the emulator's entry point
// needs to boot a run: ELF/raw images to load, register reset
// overrides, run limits, UART sinks, and checker toggles (spec.md §6).
type Options struct {
	ConfigFile string
	LogFile    string
	Help       bool

	ElfLoads   []string
	FileLoads  []FileLoad
	MemWrites  []MemWrite32
	MemReset32 uint32

	ResetPC   uint64
	SPResetPC uint64
	MaxCycles uint64
	Minions   uint64
	Shires    uint64

	SingleThread bool
	MinsDis      bool
	SPDis        bool

	PUUart0TxFile   string
	PUUart1TxFile   string
	SPIOUart0TxFile string
	SPIOUart1TxFile string

	LogAtPC         uint64
	StopLogAtPC     uint64
	DisplayTrapInfo bool

	MemCheck    bool
	L1ScpCheck  bool
	L2ScpCheck  bool
	FLBCheck    bool

	GDB bool
}

// DefaultMaxCycles matches spec.md §6's default run limit.
const DefaultMaxCycles = 10_000_000

// parseHex64 accepts both bare hex ("40000000") and 0x-prefixed
// ("0x40000000") forms, since spec.md's flag grammar just says "hex"
// without mandating a prefix. An empty string means the flag was not
// given and resolves to zero rather than an error, since every caller
// here treats zero as "no override".
func parseHex64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := hexutil.ParseUint64(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid hex value %q: %w", s, err)
	}
	return v, nil
}

// parseFileLoad splits a "<paddr>,<path>" directive.
func parseFileLoad(s string) (FileLoad, error) {
	addr, path, err := hexutil.AddrPath(s)
	if err != nil {
		return FileLoad{}, fmt.Errorf("config: -file_load expects <paddr>,<path>: %w", err)
	}
	return FileLoad{PAddr: addr, Path: path}, nil
}

// parseMemWrite32 splits a "<paddr>,<value>" directive.
func parseMemWrite32(s string) (MemWrite32, error) {
	addr, val, err := hexutil.AddrValue(s)
	if err != nil {
		return MemWrite32{}, fmt.Errorf("config: -mem_write32 expects <paddr>,<value>: %w", err)
	}
	return MemWrite32{PAddr: addr, Value: uint32(val)}, nil
}

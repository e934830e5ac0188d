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
	"fmt"

	getopt "github.com/pborman/getopt/v2"
)

// bindings holds the pointers getopt fills in during Parse; Resolve
// converts them into a typed Options.
type bindings struct {
	config, logFile *string
	help            *bool

	elfLoad   *[]string
	fileLoad  *[]string
	memWrite  *[]string
	memReset  *string

	resetPC, spResetPC, maxCycles, minions, shires *string

	singleThread, minsDis, spDis *bool

	puUart0, puUart1, spioUart0, spioUart1 *string

	logAtPC, stopLogAtPC *string
	displayTrapInfo      *bool

	memCheck, l1ScpCheck, l2ScpCheck, flbCheck *bool

	gdb *bool
}

// Register adds every flag of spec.md §6 to set, in the teacher's
// main.go style of binding each option directly to a pointer returned
// by a *Long constructor. set is caller-owned so tests (and a real
// cmd/etsocsim) can use a fresh getopt.New() rather than the process
// global, avoiding "flag already registered" panics across runs.
func Register(set *getopt.Set) *bindings {
	b := &bindings{}
	b.config = set.StringLong("config", 'c', "", "Configuration file to preload")
	b.logFile = set.StringLong("log", 'l', "", "Log file")
	b.help = set.BoolLong("help", 'h', "Show usage")

	b.elfLoad = set.ListLong("elf_load", 0, "ELF image to load (repeatable)")
	b.fileLoad = set.ListLong("file_load", 0, "<paddr>,<path> raw image to load (repeatable)")
	b.memWrite = set.ListLong("mem_write32", 0, "<paddr>,<value> word poke (repeatable)")
	b.memReset = set.StringLong("mem_reset32", 0, "", "32-bit DRAM reset pattern")

	b.resetPC = set.StringLong("reset_pc", 0, "", "Hart 0 reset PC")
	b.spResetPC = set.StringLong("sp_reset_pc", 0, "", "IO shire reset PC")
	b.maxCycles = set.StringLong("max_cycles", 0, "", "Cycle budget (default 10,000,000)")
	b.minions = set.StringLong("minions", 0, "", "Minion shire hart mask")
	b.shires = set.StringLong("shires", 0, "", "Shire mask (bit 34 = SP)")

	b.singleThread = set.BoolLong("single_thread", 0, "Run the scheduler on one OS thread")
	b.minsDis = set.BoolLong("mins_dis", 0, "Disassemble minion fetches")
	b.spDis = set.BoolLong("sp_dis", 0, "Disassemble IO shire fetches")

	b.puUart0 = set.StringLong("pu_uart0_tx_file", 0, "", "PU UART0 TX sink")
	b.puUart1 = set.StringLong("pu_uart1_tx_file", 0, "", "PU UART1 TX sink")
	b.spioUart0 = set.StringLong("spio_uart0_tx_file", 0, "", "SPIO UART0 TX sink")
	b.spioUart1 = set.StringLong("spio_uart1_tx_file", 0, "", "SPIO UART1 TX sink")

	b.logAtPC = set.StringLong("log_at_pc", 0, "", "Start tracing at this PC")
	b.stopLogAtPC = set.StringLong("stop_log_at_pc", 0, "", "Stop tracing at this PC")
	b.displayTrapInfo = set.BoolLong("display_trap_info", 0, "Log trap cause/epc/tval on every trap")

	b.memCheck = set.BoolLong("mem_check", 0, "Enable coherence checker")
	b.l1ScpCheck = set.BoolLong("l1_scp_check", 0, "Enable L1 scratchpad line-status checker")
	b.l2ScpCheck = set.BoolLong("l2_scp_check", 0, "Enable L2 scratchpad line-status checker")
	b.flbCheck = set.BoolLong("flb_check", 0, "Enable FLB-empty checker")

	b.gdb = set.BoolLong("gdb", 0, "Accept a GDB remote connection (unimplemented)")
	return b
}

// Resolve parses every string-valued flag into its typed Options
// field. Boolean and list flags are copied as-is; everything else
// (addresses, masks, cycle counts) goes through parseHex64 so both
// "0x..." and bare hex forms work, per spec.md §6's flag grammar.
func Resolve(b *bindings) (Options, error) {
	var o Options
	o.ConfigFile = *b.config
	o.LogFile = *b.logFile
	o.Help = *b.help
	o.ElfLoads = append([]string(nil), (*b.elfLoad)...)

	for _, raw := range *b.fileLoad {
		fl, err := parseFileLoad(raw)
		if err != nil {
			return o, err
		}
		o.FileLoads = append(o.FileLoads, fl)
	}
	for _, raw := range *b.memWrite {
		mw, err := parseMemWrite32(raw)
		if err != nil {
			return o, err
		}
		o.MemWrites = append(o.MemWrites, mw)
	}

	var err error
	if o.MemReset32, err = parseHex32(*b.memReset); err != nil {
		return o, err
	}
	if o.ResetPC, err = parseHex64(*b.resetPC); err != nil {
		return o, err
	}
	if o.SPResetPC, err = parseHex64(*b.spResetPC); err != nil {
		return o, err
	}
	o.MaxCycles = DefaultMaxCycles
	if *b.maxCycles != "" {
		if o.MaxCycles, err = parseHex64(*b.maxCycles); err != nil {
			return o, err
		}
	}
	if o.Minions, err = parseHex64(*b.minions); err != nil {
		return o, err
	}
	if o.Shires, err = parseHex64(*b.shires); err != nil {
		return o, err
	}

	o.SingleThread = *b.singleThread
	o.MinsDis = *b.minsDis
	o.SPDis = *b.spDis

	o.PUUart0TxFile = *b.puUart0
	o.PUUart1TxFile = *b.puUart1
	o.SPIOUart0TxFile = *b.spioUart0
	o.SPIOUart1TxFile = *b.spioUart1

	if o.LogAtPC, err = parseHex64(*b.logAtPC); err != nil {
		return o, err
	}
	if o.StopLogAtPC, err = parseHex64(*b.stopLogAtPC); err != nil {
		return o, err
	}
	o.DisplayTrapInfo = *b.displayTrapInfo

	o.MemCheck = *b.memCheck
	o.L1ScpCheck = *b.l1ScpCheck
	o.L2ScpCheck = *b.l2ScpCheck
	o.FLBCheck = *b.flbCheck

	o.GDB = *b.gdb
	return o, nil
}

func parseHex32(s string) (uint32, error) {
	v, err := parseHex64(s)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("config: value %#x does not fit in 32 bits", v)
	}
	return uint32(v), nil
}

// Parse registers, parses argv, and resolves in one call, for
// cmd/etsocsim's main(). argv must include the program name at index
// 0, matching getopt.Set.Parse's convention (the same one the
// package-level getopt.Parse() uses against os.Args).
func Parse(argv []string) (Options, error) {
	set := getopt.New()
	b := Register(set)
	set.Parse(argv)
	return Resolve(b)
}

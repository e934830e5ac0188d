/*
 * etsoc-sim - Hex and address-pair CLI argument parsing
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

// Package hexutil parses the hex and comma-separated-pair arguments used
// throughout the CLI flag list (spec.md §6): "-reset_pc <hex>",
// "-mem_write32 <paddr>,<value>", "-file_load <paddr>,<path>".
package hexutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUint64 parses a hex string with or without a leading "0x".
func ParseUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return 0, fmt.Errorf("hexutil: empty value")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hexutil: %q: %w", s, err)
	}
	return v, nil
}

// AddrValue splits "<addr>,<value>" into two hex-parsed 64-bit numbers, as
// used by -mem_write32.
func AddrValue(s string) (addr, value uint64, err error) {
	left, right, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("hexutil: expected <addr>,<value> got %q", s)
	}
	addr, err = ParseUint64(left)
	if err != nil {
		return 0, 0, err
	}
	value, err = ParseUint64(right)
	if err != nil {
		return 0, 0, err
	}
	return addr, value, nil
}

// AddrPath splits "<addr>,<path>" into a hex-parsed address and a path
// string, as used by -file_load.
func AddrPath(s string) (addr uint64, path string, err error) {
	left, right, ok := strings.Cut(s, ",")
	if !ok {
		return 0, "", fmt.Errorf("hexutil: expected <addr>,<path> got %q", s)
	}
	addr, err = ParseUint64(left)
	if err != nil {
		return 0, "", err
	}
	return addr, right, nil
}

// ParseMask parses a bitmask given either as 0x-prefixed hex or as plain
// decimal. The -minions/-shires flags do not use it; they are parsed as hex.
func ParseMask(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return ParseUint64(s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hexutil: %q: %w", s, err)
	}
	return v, nil
}

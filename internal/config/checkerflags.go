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

import "github.com/esperanto-oss/etsoc-sim/internal/checker"

// ApplyCheckerFlags enables each checker category o requested, in the
// style of the teacher's config/debugconfig registering debug
// categories against a live subsystem rather than just storing a flag.
func ApplyCheckerFlags(o Options, chk *checker.Checker) {
	if o.MemCheck {
		chk.Enable(checker.MemCheck)
	}
	if o.L1ScpCheck {
		chk.Enable(checker.L1ScpCheck)
	}
	if o.L2ScpCheck {
		chk.Enable(checker.L2ScpCheck)
	}
	if o.FLBCheck {
		chk.Enable(checker.FLBCheck)
	}
}

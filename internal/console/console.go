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

// Package console implements the interactive debug console: register
// dump, single step, breakpoint, and memory examine commands against a
// paused *system.System, front-ended by github.com/peterh/liner.
// Grounded on the teacher's command/reader.ConsoleReader +
// command/parser prefix-matched command dispatch.
package console

import (
	"errors"
	"fmt"
	"io"

	"github.com/peterh/liner"

	"github.com/esperanto-oss/etsoc-sim/internal/system"
)

// Console owns the liner front end, the system under test, and the
// breakpoint set.
type Console struct {
	sys  *system.System
	out  io.Writer
	brk  map[uint64]bool
	quit bool
}

// New builds a console driving sys, writing command output to out.
func New(sys *system.System, out io.Writer) *Console {
	return &Console{sys: sys, out: out, brk: map[uint64]bool{}}
}

// Run drives the interactive prompt loop until a "quit" command or the
// user aborts the prompt (Ctrl-D), mirroring the teacher's
// ConsoleReader's "Prompt, dispatch, repeat" shape.
func (c *Console) Run() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return completeCmd(partial)
	})

	for !c.quit {
		input, err := line.Prompt("etsocsim> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console: reading line: %w", err)
		}
		line.AppendHistory(input)
		if err := c.dispatch(input); err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
	}
	return nil
}

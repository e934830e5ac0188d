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
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

const breakKey = 0x03 // Ctrl-C

// Attach runs the system free-running in the background while stdin is
// in raw mode, watching for a Ctrl-C byte to break back into the
// interactive prompt rather than letting the terminal driver turn it
// into a SIGINT that kills the process. When Ctrl-C is seen, the
// scheduler is stopped and control returns to Run.
func (c *Console) Attach() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return c.Run()
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("console: entering raw mode: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.sys.Run()
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			break
		}
		if b == breakKey {
			c.sys.Stop()
			break
		}
	}
	<-done

	if err := term.Restore(fd, oldState); err != nil {
		return fmt.Errorf("console: restoring terminal: %w", err)
	}
	return c.Run()
}

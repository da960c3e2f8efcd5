// Package device holds the console the kernel prints to.
package device

import (
	"bufio"
	"io"
	"sync"
)

// Console is a character sink. When Raw is set, as it must be for a
// terminal in raw mode, '\n' is written as "\r\n".
type Console struct {
	mu  sync.Mutex
	w   *bufio.Writer
	Raw bool
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: bufio.NewWriter(w)}
}

// Write emits p. Output is flushed at every newline so lines show up as
// soon as they are complete.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, b := range p {
		if b == '\n' && c.Raw {
			if err := c.w.WriteByte('\r'); err != nil {
				return i, err
			}
		}

		if err := c.w.WriteByte(b); err != nil {
			return i, err
		}

		if b == '\n' {
			if err := c.w.Flush(); err != nil {
				return i + 1, err
			}
		}
	}

	return len(p), nil
}

func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.w.Flush()
}

package infra

import (
	"bytes"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

// Port is the subset of serial.Port the channel relies on.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// Channel is a line-oriented view of a serial port. Bytes that arrive after
// a line terminator are kept for the next ReadLine.
type Channel struct {
	name    string
	port    Port
	pending []byte
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

// OpenChannel opens the named port at 8N1. Any failure is reported as a
// *domain.ConnectionError.
func OpenChannel(name string, baud int) (*Channel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, &domain.ConnectionError{Port: name, Baud: baud, Err: err}
	}

	return NewChannel(name, port), nil
}

func NewChannel(name string, port Port) *Channel {
	return &Channel{
		name: name,
		port: port,
		buf:  make([]byte, 256),
	}
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Write(data []byte) error {
	n, err := c.port.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &domain.WriteError{Command: string(data), Err: err}
	}
	return nil
}

// ReadLine waits up to total for one complete line, reading in slices of at
// most poll. The terminator and surrounding whitespace are stripped. When no
// full line arrives in time it returns an empty slice and drops any partial
// bytes, so they cannot be mistaken for the next command's feedback.
func (c *Channel) ReadLine(total, poll time.Duration) ([]byte, error) {
	if line, ok := c.takeLine(); ok {
		return line, nil
	}
	if total <= 0 {
		return nil, nil
	}
	if poll <= 0 || poll > total {
		poll = total
	}

	deadline := time.Now().Add(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.pending = nil
			return nil, nil
		}

		if err := c.port.SetReadTimeout(min(poll, remaining)); err != nil {
			return nil, &domain.ReadError{Err: err}
		}

		n, err := c.port.Read(c.buf)
		if n > 0 {
			c.pending = append(c.pending, c.buf[:n]...)
			if line, ok := c.takeLine(); ok {
				return line, nil
			}
		}
		if err != nil {
			c.pending = nil
			return nil, &domain.ReadError{Err: err}
		}
	}
}

func (c *Channel) takeLine() ([]byte, bool) {
	idx := bytes.IndexByte(c.pending, domain.LineTerminator)
	if idx < 0 {
		return nil, false
	}
	line := bytes.Clone(bytes.TrimSpace(c.pending[:idx]))
	c.pending = c.pending[idx+1:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return line, true
}

func (c *Channel) ResetInputBuffer() error {
	c.pending = nil
	return c.port.ResetInputBuffer()
}

func (c *Channel) ResetOutputBuffer() error {
	return c.port.ResetOutputBuffer()
}

// Flush blocks until everything written has been transmitted.
func (c *Channel) Flush() error {
	return c.port.Drain()
}

// Close releases the port. Later calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}

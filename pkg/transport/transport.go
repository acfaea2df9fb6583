// Package transport owns the serial link to the bootloader: blocking
// per-byte reads with a deadline, flushed writes, and buffer resets so a
// stale byte never contaminates a fresh exchange.
package transport

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bootloader line rate (8-N-1, no flow control).
	DefaultBaudRate = 115200
	// DefaultByteTimeout is the per-byte receive deadline. Anything at or
	// above the worst-case device turnaround works.
	DefaultByteTimeout = 2 * time.Second

	// pollInterval bounds how long a single underlying read blocks, so the
	// per-byte deadline is honored without consuming partial bytes.
	pollInterval = 5 * time.Millisecond
)

// ErrTimeout is returned when the per-byte deadline elapses with no data.
var ErrTimeout = errors.New("transport: read timed out")

// Port is an open serial connection. It is owned by one session at a time.
type Port struct {
	port serial.Port
	name string
}

// Open opens the named serial device at the given baud rate, 8-N-1.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("configuring %s: %w", name, err)
	}
	return &Port{port: p, name: name}, nil
}

// ReadByte blocks until one byte arrives or timeout elapses. Each underlying
// read is bounded by pollInterval, so no partial byte is ever consumed past
// the deadline.
func (p *Port) ReadByte(timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", p.name, err)
		}
		if n > 0 {
			return buf[0], nil
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
	}
}

// WriteAll writes the whole frame and drains the output buffer before
// returning.
func (p *Port) WriteAll(data []byte) error {
	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return fmt.Errorf("writing %s: %w", p.name, err)
		}
		data = data[n:]
	}
	if err := p.port.Drain(); err != nil {
		return fmt.Errorf("draining %s: %w", p.name, err)
	}
	return nil
}

// ResetInput discards anything buffered in the receive direction.
func (p *Port) ResetInput() error {
	return p.port.ResetInputBuffer()
}

// ResetOutput discards anything buffered in the transmit direction.
func (p *Port) ResetOutput() error {
	return p.port.ResetOutputBuffer()
}

// Close releases the serial handle.
func (p *Port) Close() error {
	return p.port.Close()
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string {
	return p.name
}

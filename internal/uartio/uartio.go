// Package uartio wraps go.bug.st/serial for the trace, memory-
// accounting, and additional-tracing UART channels: 115200-8-E-1, no
// flow control, 100ms read timeout. Grounded on the
// serial.Open/serial.Mode/port.SetReadTimeout usage pattern seen in
// other hardware-facing serial drivers (heliostat and ECU telemetry).
package uartio

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/mdclyburn/flexbed/internal/constants"
	"github.com/mdclyburn/flexbed/internal/trace"
)

// Port is one opened UART channel.
type Port struct {
	path string
	port serial.Port
}

// Open opens path at the fixed line settings the harness uses for
// every tracing UART and arms the read timeout.
func Open(path string) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: constants.UARTBaudRate,
		DataBits: constants.UARTDataBits,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("uartio: opening %s: %w", path, err)
	}
	if err := p.SetReadTimeout(constants.UARTReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("uartio: setting read timeout on %s: %w", path, err)
	}

	return &Port{path: path, port: p}, nil
}

// Path returns the device path this Port was opened against.
func (p *Port) Path() string { return p.path }

// Read performs one bounded-duration blocking read, returning however
// many bytes arrived before the configured timeout elapsed (possibly
// zero, never an error on timeout — go.bug.st/serial returns (0, nil)
// on a plain read-timeout expiry).
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Close releases the underlying serial port.
func (p *Port) Close() error {
	return p.port.Close()
}

// ReadSchedule pulls bytes into buf (sized to constants.TraceBufferSize
// by the caller) until deadline, recording each non-empty read's
// arrival time and length — the two-pass design internal/trace.
// Reconstruct expects.
func (p *Port) ReadSchedule(buf []byte, deadline time.Time) (bytesRead int, schedule []trace.ReadChunk, err error) {
	for time.Now().Before(deadline) {
		n, rErr := p.Read(buf[bytesRead:])
		if rErr != nil {
			return bytesRead, schedule, fmt.Errorf("uartio: reading %s: %w", p.path, rErr)
		}
		if n > 0 {
			schedule = append(schedule, trace.ReadChunk{Arrived: time.Now(), Bytes: n})
			bytesRead += n
		}
	}
	return bytesRead, schedule, nil
}

package device

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=device

// Transport represents an established, bidirectional byte stream to an EZO
// circuit.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send wire commands and
// receive reply lines. Typical implementations include serial ports and
// in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to an EZO circuit.
//
// Dialer abstracts how the connection is created (for example, via a serial
// port or a test double) and is intended to be used during device
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform blocking
	// operations and should respect cancellation provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens an EZO circuit over a serial port using go.bug.st/serial.
// The zero Mode defaults to the circuit's factory UART settings, 9600 8N1.
type SerialDialer struct {
	PortName string
	Mode     *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("ezo: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("ezo: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: 9600,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

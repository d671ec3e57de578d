// Package uart is the physical side of the modem link: an established
// byte stream (Transport), the means to open one (Dialer), and a Port that
// turns the stream into an asynchronous byte source with a busy signal and
// a pause line for backpressure.
package uart

//go:generate mockgen -source=transport.go -destination=mock_transport.go -package=uart

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a modem.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations include serial ports, pseudo terminals, or in-memory fakes
// used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is used during modem construction only.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation and deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is used when SerialDialer has neither Mode nor BaudRate.
const DefaultBaudRate = 115200

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyUSB2.
	PortName string
	// BaudRate is used when Mode is nil.
	BaudRate int
	// Mode overrides the whole line configuration.
	Mode *serial.Mode
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("gsm: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("gsm: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("gsm: open %s: %w", d.PortName, err)
	}
	return port, nil
}

var _ Dialer = SerialDialer{}

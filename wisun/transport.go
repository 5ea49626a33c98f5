package wisun

//go:generate go tool mockgen -source=transport.go -destination=mock_test.go -package=wisun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is an established, bidirectional byte stream to a Wi-SUN module.
//
// A Read that returns (0, nil) signals that nothing arrived within the
// transport's read timeout; LineReader reports it as ErrIdleTimeout.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a Wi-SUN module.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation of the context.
	Dial(ctx context.Context) (Transport, error)
}

// Serial line defaults for BP35A1-class modules.
const (
	DefaultBaudRate    = 115200
	DefaultIdleTimeout = time.Second
)

// SerialDialer opens a Wi-SUN module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyS0.
	PortName string
	// BaudRate is used when Mode is nil. Zero means DefaultBaudRate.
	BaudRate int
	// Mode overrides the whole serial configuration.
	Mode *serial.Mode
	// IdleTimeout is the read timeout of the port. Zero means
	// DefaultIdleTimeout.
	IdleTimeout time.Duration
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("wisun: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("wisun: serial port name is required")
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
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	idle := d.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	if err := port.SetReadTimeout(idle); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
	}

	// Opening a port can take a while; don't hand out a transport the
	// caller no longer wants.
	if err := ctx.Err(); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

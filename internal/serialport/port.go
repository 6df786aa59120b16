// Package serialport opens serial trigger devices. Port is the small subset
// of go.bug.st/serial the event reader needs, so tests can substitute
// TestPort for real hardware.
package serialport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is a readable serial port with a read timeout. A Read that times out
// returns 0 bytes and a nil error.
type Port interface {
	io.Reader
	io.Closer
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the port at path.
type Opener func(path string, opts Options) (Port, error)

// Open opens a hardware serial port.
func Open(path string, opts Options) (Port, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// List returns the serial ports present on the system.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

var _ Port = (serial.Port)(nil)

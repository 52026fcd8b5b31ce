package serialmux

import (
	"io"
)

// SerialPorter is the minimal interface SerialMux needs from a port. Tests
// supply in-memory implementations; production uses go.bug.st/serial.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

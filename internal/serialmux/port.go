package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the device at path with the given mode. Tests substitute
// it to hand back a TestableSerialPort.
type PortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerialPort is the PortOpener backed by go.bug.st/serial.
func OpenSerialPort(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

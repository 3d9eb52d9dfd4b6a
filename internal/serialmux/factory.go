package serialmux

// NewRealSerialMux creates a SerialMux backed by the serial device at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(path, opts, OpenSerialPort)
}

// OpenSerialMux opens path through open and wraps the port in a SerialMux.
func OpenSerialMux(path string, opts PortOptions, open PortOpener) (*SerialMux[SerialPorter], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[SerialPorter](port), nil
}

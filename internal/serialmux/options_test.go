package serialmux

import (
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"explicit", PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "even"}, PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"}, false},
		{"odd lowercase", PortOptions{Parity: " o "}, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "O"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != 9600 || mode.DataBits != 8 || mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Errorf("mode = %+v, want 9600 8N1", mode)
	}

	mode, err = PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.StopBits != serial.TwoStopBits || mode.Parity != serial.OddParity {
		t.Errorf("mode = %+v, want two stop bits odd parity", mode)
	}

	if _, err := (PortOptions{Parity: "X"}).SerialMode(); err == nil {
		t.Error("expected error for invalid parity")
	}
}

func TestPortOptions_String(t *testing.T) {
	if got := (PortOptions{}).String(); got != "9600 8N1" {
		t.Errorf("String = %q, want 9600 8N1", got)
	}
	if got := (PortOptions{DataBits: 4}).String(); got == "9600 8N1" {
		t.Errorf("invalid options rendered as %q", got)
	}
}

func TestOpenSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	var gotPath string
	var gotMode *serial.Mode
	open := func(path string, mode *serial.Mode) (SerialPorter, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	mux, err := OpenSerialMux("/dev/ttyACM0", PortOptions{}, open)
	if err != nil {
		t.Fatalf("OpenSerialMux: %v", err)
	}
	if gotPath != "/dev/ttyACM0" || gotMode.BaudRate != 9600 {
		t.Errorf("opened %s at %d baud", gotPath, gotMode.BaudRate)
	}
	if err := mux.SendCommand("P"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if string(port.GetWrittenData()) != "P\n" {
		t.Errorf("written = %q", port.GetWrittenData())
	}

	boom := errors.New("no such device")
	_, err = OpenSerialMux("/dev/missing", PortOptions{}, func(string, *serial.Mode) (SerialPorter, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}

	called := false
	_, err = OpenSerialMux("/dev/ttyACM0", PortOptions{StopBits: 5}, func(string, *serial.Mode) (SerialPorter, error) {
		called = true
		return port, nil
	})
	if err == nil || called {
		t.Errorf("invalid options should fail before opening (err=%v, opened=%v)", err, called)
	}
}

package serialmux

import (
	"strings"
)

// ArmPrompt is the usage line the sorting arm prints on boot and after every
// rejected command.
const ArmPrompt = "Enter 'a', 'm', 'g', or 'p' to play actions, 'q' to quit:"

// NewSimulatedArm returns a port that behaves like the arm firmware: it
// prints the prompt on open, silently accepts the action letters in accepted
// (case-insensitive) and answers anything else with "Invalid command." and
// the prompt again. Newlines are ignored.
func NewSimulatedArm(accepted string) *TestableSerialPort {
	port := NewTestableSerialPort()
	port.BlockReads = true
	accepted = strings.ToUpper(accepted)

	port.respondLocked([]byte(ArmPrompt + "\n"))
	port.OnWrite = func(p []byte) {
		for _, b := range p {
			if b == '\n' || b == '\r' {
				continue
			}
			if strings.IndexByte(accepted, upper(b)) >= 0 {
				continue
			}
			port.respondLocked([]byte("Invalid command.\n" + ArmPrompt + "\n"))
		}
	}
	return port
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// NewDevSerialMux returns a SerialMux wired to a simulated arm, used in dev
// mode so the dispatch path and admin tail can be exercised without hardware.
func NewDevSerialMux(accepted string) *SerialMux[*TestableSerialPort] {
	return NewSerialMux(NewSimulatedArm(accepted))
}

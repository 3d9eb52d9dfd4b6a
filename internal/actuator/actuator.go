// Package actuator turns a selection into the sorting arm's wire command and
// delivers it over the serial link, or drops it when no arm is attached.
package actuator

import (
	"fmt"
	"sync"

	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/monitoring"
	"github.com/banshee-data/sort.station/internal/serialmux"
)

var logf = monitoring.Tagged("actuator")

// Peer is the serial peer: either Connected or Disconnected.
type Peer interface {
	peer()
}

// Connected is an attached arm reachable through Mux.
type Connected struct {
	Mux  serialmux.SerialMuxInterface
	Port string
}

// Disconnected means no arm is attached. This is a valid permanent mode.
type Disconnected struct {
	Reason string
}

func (Connected) peer()    {}
func (Disconnected) peer() {}

// Command is one dispatch decision and its delivery outcome.
type Command struct {
	Label     string `json:"label,omitempty"`
	Code      string `json:"code"`
	Payload   string `json:"-"`
	Reset     bool   `json:"reset"`
	Delivered bool   `json:"delivered"`
	Err       error  `json:"-"`
}

func (c Command) String() string {
	if c.Reset {
		return fmt.Sprintf("reset %q", c.Payload)
	}
	return fmt.Sprintf("%s %q", c.Label, c.Payload)
}

// Dispatcher owns the serial peer.
type Dispatcher struct {
	mu      sync.Mutex
	peer    Peer
	actions detection.ActionMap
}

// NewDispatcher returns a dispatcher for peer. A nil peer is Disconnected.
func NewDispatcher(peer Peer, actions detection.ActionMap) *Dispatcher {
	if peer == nil {
		peer = Disconnected{Reason: "no serial port configured"}
	}
	return &Dispatcher{peer: peer, actions: actions}
}

// CommandFor maps a selection to its command without sending anything.
func (d *Dispatcher) CommandFor(sel detection.Selection, ok bool) Command {
	if ok {
		if code, found := d.actions.Code(sel.Label); found {
			return Command{Label: sel.Label, Code: string(code), Payload: string(code) + "\n"}
		}
	}
	reset := string(d.actions.Reset())
	return Command{Code: reset, Payload: reset + "\n", Reset: true}
}

// Dispatch sends the command for the selection. Delivery failures are logged
// and reported on the returned Command; they are never fatal to the caller.
func (d *Dispatcher) Dispatch(sel detection.Selection, ok bool) Command {
	cmd := d.CommandFor(sel, ok)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch p := d.peer.(type) {
	case Connected:
		if err := p.Mux.SendCommand(cmd.Payload); err != nil {
			cmd.Err = err
			logf("failed to send %s to %s: %v", cmd, p.Port, err)
			return cmd
		}
		cmd.Delivered = true
	case Disconnected:
		logf("no arm attached (%s), dropping %s", p.Reason, cmd)
	}
	return cmd
}

// Connected reports whether an arm is attached.
func (d *Dispatcher) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.peer.(Connected)
	return ok
}

// Describe returns a short human-readable peer description.
func (d *Dispatcher) Describe() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch p := d.peer.(type) {
	case Connected:
		return "connected to " + p.Port
	case Disconnected:
		return "disconnected: " + p.Reason
	}
	return "unknown"
}

// Close closes a connected peer and leaves the dispatcher Disconnected.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peer.(Connected)
	if !ok {
		return nil
	}
	d.peer = Disconnected{Reason: "closed"}
	if err := p.Mux.Close(); err != nil {
		return fmt.Errorf("close serial port %s: %w", p.Port, err)
	}
	return nil
}

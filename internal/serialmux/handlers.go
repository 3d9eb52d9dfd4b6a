package serialmux

import (
	"context"
	"sync"

	"github.com/banshee-data/sort.station/internal/monitoring"
)

var logf = monitoring.Tagged("serial")

// LineHandler receives each classified line read from the arm.
type LineHandler func(kind, line string)

// LogLine is the default LineHandler: faults are logged loudly, everything
// else at a normal level.
func LogLine(kind, line string) {
	switch kind {
	case LineTypeFault:
		logf("arm fault: %s", line)
	case LineTypeRejected:
		logf("arm rejected command: %s", line)
	case LineTypePrompt:
		logf("arm ready: %s", line)
	default:
		logf("arm: %s", line)
	}
}

// LineCounter tallies lines by kind. Its Handle method is a LineHandler.
type LineCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// Handle records one line.
func (c *LineCounter) Handle(kind, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[kind]++
}

// Counts returns a copy of the tallies.
func (c *LineCounter) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Watch subscribes to mux and passes every line to the handlers until ctx is
// done or the mux closes the subscription.
func Watch(ctx context.Context, mux SerialMuxInterface, handlers ...LineHandler) {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			kind := ClassifyLine(line)
			for _, h := range handlers {
				h(kind, line)
			}
		}
	}
}

// Package ledger holds the session bookkeeping for the capture transaction:
// the snapshot counter, per-category totals and the latest outcome.
//
// A Ledger lives for the whole process and is never persisted; counters start
// at zero on every run.
package ledger

import (
	"sync"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/detection"
)

// NoneLabel is recorded as the latest label when a capture selects nothing.
const NoneLabel = detection.NoneLabel

// State is a point-in-time copy of the ledger.
type State struct {
	SnapshotCount    int
	CategoryTotals   map[string]int
	LatestLabel      string
	LatestConfidence float64 // percent, 0 when nothing was selected
	LatestFrame      *camera.Frame
	LatestDetections detection.Set
}

// Entry describes one recorded capture.
type Entry struct {
	Seq        int
	Label      string
	Confidence float64
	Selected   bool
}

// Total is one category's running count.
type Total struct {
	Label string
	Count int
}

// Ledger is the owned session state. The zero value is ready to use.
type Ledger struct {
	mu               sync.RWMutex
	snapshotCount    int
	totals           map[string]int
	order            []string
	latestLabel      string
	latestConfidence float64
	latestFrame      *camera.Frame
	latestDetections detection.Set
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Record applies one capture outcome: the counter always advances, the
// selected label's total advances when there is one, and the latest fields
// are overwritten. The ledger keeps its own copies of frame and set.
func (l *Ledger) Record(sel detection.Selection, ok bool, frame *camera.Frame, set detection.Set) Entry {
	frame = frame.Clone()
	set = set.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.snapshotCount++
	entry := Entry{Seq: l.snapshotCount, Selected: ok}

	if ok {
		if l.totals == nil {
			l.totals = make(map[string]int)
		}
		if _, seen := l.totals[sel.Label]; !seen {
			l.order = append(l.order, sel.Label)
		}
		l.totals[sel.Label]++
		l.latestLabel = sel.Label
		l.latestConfidence = sel.Confidence * 100
	} else {
		l.latestLabel = NoneLabel
		l.latestConfidence = 0
	}
	l.latestFrame = frame
	l.latestDetections = set

	entry.Label = l.latestLabel
	entry.Confidence = l.latestConfidence
	return entry
}

// Snapshot returns a deep copy of the current state.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	totals := make(map[string]int, len(l.totals))
	for k, v := range l.totals {
		totals[k] = v
	}
	return State{
		SnapshotCount:    l.snapshotCount,
		CategoryTotals:   totals,
		LatestLabel:      l.latestLabel,
		LatestConfidence: l.latestConfidence,
		LatestFrame:      l.latestFrame.Clone(),
		LatestDetections: l.latestDetections.Clone(),
	}
}

// SnapshotCount returns the number of captures recorded so far.
func (l *Ledger) SnapshotCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotCount
}

// LatestLabel returns the most recently recorded label: "" before any
// capture, NoneLabel after a capture that selected nothing.
func (l *Ledger) LatestLabel() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latestLabel
}

// Totals returns the category totals in the order each label was first seen.
func (l *Ledger) Totals() []Total {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Total, 0, len(l.order))
	for _, label := range l.order {
		out = append(out, Total{Label: label, Count: l.totals[label]})
	}
	return out
}

// Package station runs the operator transactions of the sorting kiosk: the
// capture transaction (acquire, detect, select, dispatch, record) and the
// misclassification flag. Both, and every live-view tick, run one at a time.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sort.station/internal/actuator"
	"github.com/banshee-data/sort.station/internal/archive"
	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/ledger"
	"github.com/banshee-data/sort.station/internal/monitoring"
	"github.com/banshee-data/sort.station/internal/overlay"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

var (
	// ErrCaptureFailed marks a transient failure to obtain a frame or its
	// detections. Nothing was recorded; the operator can simply retry.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrClosed is returned once the station has been shut down.
	ErrClosed = errors.New("station closed")
)

var logf = monitoring.Tagged("station")

// CaptureEvent is handed to History after each completed capture.
type CaptureEvent struct {
	Seq          int
	Label        string
	Confidence   float64
	Selected     bool
	Command      string
	Delivered    bool
	SnapshotPath string
	Detections   detection.Set
	At           time.Time
}

// FlagEvent is handed to History after each misclassification flag.
type FlagEvent struct {
	Seq   int
	Label string
	Path  string
	At    time.Time
}

// History receives an append-only record of transactions. Failures are logged
// and never affect the transaction.
type History interface {
	RecordCapture(ctx context.Context, ev CaptureEvent) error
	RecordFlag(ctx context.Context, ev FlagEvent) error
}

// CaptureResult is the outcome of one capture transaction.
type CaptureResult struct {
	State        State            `json:"state"`
	Seq          int              `json:"seq"`
	Label        string           `json:"label"`
	Confidence   float64          `json:"confidence"`
	Selected     bool             `json:"selected"`
	Command      actuator.Command `json:"command"`
	SnapshotPath string           `json:"snapshot_path,omitempty"`
	Detections   detection.Set    `json:"detections"`
}

// Config wires a Station. Source, Detector, Dispatcher and Archiver are
// required.
type Config struct {
	Source         camera.Source
	Detector       detection.Detector
	Actions        detection.ActionMap
	Dispatcher     *actuator.Dispatcher
	Ledger         *ledger.Ledger
	Archiver       *archive.Archiver
	History        History
	Clock          timeutil.Clock
	NoticeDuration time.Duration
}

// Station owns the frame source, the ledger and the serial peer for the
// process lifetime.
type Station struct {
	mu         sync.Mutex
	closed     bool
	source     camera.Source
	detector   detection.Detector
	actions    detection.ActionMap
	dispatcher *actuator.Dispatcher
	ledger     *ledger.Ledger
	archiver   *archive.Archiver
	history    History
	clock      timeutil.Clock
	notices    *Notices
	state      atomic.Int32
}

// New validates cfg and returns a Station in the Idle state.
func New(cfg Config) (*Station, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("station: frame source is required")
	case cfg.Detector == nil:
		return nil, errors.New("station: detector is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("station: dispatcher is required")
	case cfg.Archiver == nil:
		return nil, errors.New("station: archiver is required")
	}
	if cfg.Actions.Len() == 0 {
		cfg.Actions = detection.DefaultActionMap()
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Station{
		source:     cfg.Source,
		detector:   cfg.Detector,
		actions:    cfg.Actions,
		dispatcher: cfg.Dispatcher,
		ledger:     cfg.Ledger,
		archiver:   cfg.Archiver,
		history:    cfg.History,
		clock:      cfg.Clock,
		notices:    NewNotices(cfg.Clock, cfg.NoticeDuration),
	}, nil
}

func (s *Station) setState(st State) {
	s.state.Store(int32(st))
}

// State returns the current transaction step.
func (s *Station) State() State {
	return State(s.state.Load())
}

// Capture runs one capture transaction.
//
// An acquisition or detector failure ends in CaptureFailed with nothing
// recorded and an error wrapping ErrCaptureFailed. Otherwise the command is
// dispatched and the ledger updated before the snapshot is written; a
// filesystem error is returned but the ledger keeps the capture, since the
// arm has already been told what to do.
func (s *Station) Capture(ctx context.Context) (CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CaptureResult{State: Idle}, ErrClosed
	}
	defer s.setState(Idle)

	s.setState(Capturing)
	frame, err := s.source.Acquire(ctx)
	if err != nil {
		return s.captureFailed(err)
	}

	s.setState(Deciding)
	set, err := s.detector.Infer(ctx, frame)
	if err != nil {
		return s.captureFailed(fmt.Errorf("detect: %w", err))
	}
	sel, ok := detection.Select(set, s.actions)

	s.setState(Dispatching)
	cmd := s.dispatcher.Dispatch(sel, ok)

	s.setState(Recording)
	entry := s.ledger.Record(sel, ok, frame, set)
	result := CaptureResult{
		State:      Idle,
		Seq:        entry.Seq,
		Label:      entry.Label,
		Confidence: entry.Confidence,
		Selected:   ok,
		Command:    cmd,
		Detections: set,
	}

	fileLabel := ""
	if ok {
		fileLabel = sel.Label
	}
	path, saveErr := s.archiver.SaveSnapshot(frame, fileLabel, entry.Seq)
	result.SnapshotPath = path

	s.recordCapture(ctx, result)

	if saveErr != nil {
		s.notices.Post(LevelError, "❌ Snapshot could not be saved")
		logf("❌ capture %d: %v", entry.Seq, saveErr)
		return result, fmt.Errorf("save snapshot: %w", saveErr)
	}

	if ok {
		s.notices.Post(LevelInfo, fmt.Sprintf("✅ Captured and sent command: %s", sel.Label))
		logf("✅ detected %s (%.2f), sent command %s", sel.Label, sel.Confidence, cmd.Code)
	} else {
		s.notices.Post(LevelWarning, "❎ No valid object detected, reset command sent")
		logf("❎ no actionable object, sent reset")
	}
	return result, nil
}

func (s *Station) captureFailed(err error) (CaptureResult, error) {
	s.setState(CaptureFailed)
	s.notices.Post(LevelError, "❌ Capture failed, no image from camera")
	logf("❌ capture failed: %v", err)
	return CaptureResult{State: CaptureFailed}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
}

func (s *Station) recordCapture(ctx context.Context, r CaptureResult) {
	if s.history == nil {
		return
	}
	ev := CaptureEvent{
		Seq:          r.Seq,
		Label:        r.Label,
		Confidence:   r.Confidence,
		Selected:     r.Selected,
		Command:      r.Command.Code,
		Delivered:    r.Command.Delivered,
		SnapshotPath: r.SnapshotPath,
		Detections:   r.Detections,
		At:           s.clock.Now(),
	}
	if err := s.history.RecordCapture(context.WithoutCancel(ctx), ev); err != nil {
		logf("failed to record capture %d in history: %v", r.Seq, err)
	}
}

// FlagMisclassified files a fresh frame under the latest recorded label and
// the current snapshot count, and returns its path. It does not change the
// ledger. Flagging twice before the next capture overwrites the same file.
func (s *Station) FlagMisclassified(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	frame, err := s.source.Acquire(ctx)
	if err != nil {
		s.notices.Post(LevelError, "❌ Capture failed, no image from camera")
		logf("❌ flag capture failed: %v", err)
		return "", fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	label := s.ledger.LatestLabel()
	seq := s.ledger.SnapshotCount()
	path, err := s.archiver.SaveMisclassified(frame, label, seq)
	if err != nil {
		s.notices.Post(LevelError, "❌ Misclassified sample could not be saved")
		return "", fmt.Errorf("save misclassified sample: %w", err)
	}

	if s.history != nil {
		ev := FlagEvent{Seq: seq, Label: label, Path: path, At: s.clock.Now()}
		if err := s.history.RecordFlag(context.WithoutCancel(ctx), ev); err != nil {
			logf("failed to record flag in history: %v", err)
		}
	}

	s.notices.Post(LevelWarning, fmt.Sprintf("⚠️ Misclassified sample saved to: %s", path))
	logf("⚠️ misclassified sample saved to %s", path)
	return path, nil
}

// Snapshot returns a copy of the ledger state.
func (s *Station) Snapshot() ledger.State {
	return s.ledger.Snapshot()
}

// Totals returns category totals in first-seen order.
func (s *Station) Totals() []ledger.Total {
	return s.ledger.Totals()
}

// AnnotatedSnapshot returns the latest captured frame with that capture's own
// detections drawn on it, or false before the first capture.
func (s *Station) AnnotatedSnapshot() (*camera.Frame, bool) {
	st := s.ledger.Snapshot()
	if st.LatestFrame == nil {
		return nil, false
	}
	img := overlay.Annotate(st.LatestFrame.Image, st.LatestDetections, overlay.SnapshotStyle)
	return camera.NewFrame(img, st.LatestFrame.CapturedAt), true
}

// Notice returns the current operator notice, if one is live.
func (s *Station) Notice() (Notice, bool) {
	return s.notices.Current()
}

// ActuatorConnected reports whether commands reach an arm.
func (s *Station) ActuatorConnected() bool {
	return s.dispatcher.Connected()
}

// ActuatorStatus describes the serial peer.
func (s *Station) ActuatorStatus() string {
	return s.dispatcher.Describe()
}

// NewOverlay returns a live-view loop over the station's frame source. Its
// ticks take the station lock, so they never overlap a transaction.
func (s *Station) NewOverlay(pub overlay.Publisher, opts ...overlay.Option) *overlay.Loop {
	base := []overlay.Option{overlay.WithLocker(&s.mu), overlay.WithClock(s.clock)}
	return overlay.NewLoop(s.source, s.detector, pub, append(base, opts...)...)
}

// Close stops new transactions, releases the frame source and then closes the
// serial peer. It waits for an in-flight transaction to finish.
func (s *Station) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close frame source: %w", err))
	}
	if err := s.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

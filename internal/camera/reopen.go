package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/sort.station/internal/timeutil"
)

// DefaultReopenInterval is how long ReopeningSource waits between attempts to
// open a camera that is not available.
const DefaultReopenInterval = 2 * time.Second

// OpenFunc opens the underlying camera.
type OpenFunc func() (Source, error)

// ReopeningSource wraps a camera that may not be available when the station
// starts. While the device cannot be opened every Acquire fails with
// ErrAcquire, and an open is retried at most once per interval. Once open,
// acquisitions go straight to the device.
type ReopeningSource struct {
	mu       sync.Mutex
	open     OpenFunc
	clock    timeutil.Clock
	interval time.Duration
	src      Source
	lastTry  time.Time
	lastErr  error
	closed   bool
}

// NewReopeningSource makes the first open attempt immediately. The result is
// reported by Err; a failure is not returned because later acquisitions retry.
func NewReopeningSource(open OpenFunc, clock timeutil.Clock, interval time.Duration) *ReopeningSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultReopenInterval
	}
	s := &ReopeningSource{open: open, clock: clock, interval: interval}
	s.tryOpen()
	return s
}

func (s *ReopeningSource) tryOpen() {
	s.lastTry = s.clock.Now()
	src, err := s.open()
	if err != nil {
		s.lastErr = err
		return
	}
	s.src = src
	s.lastErr = nil
}

// Err returns the error from the latest failed open, or nil once the device
// is open.
func (s *ReopeningSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Acquire reads from the device, opening it first if needed.
func (s *ReopeningSource) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.src == nil && s.clock.Since(s.lastTry) >= s.interval {
		s.tryOpen()
	}
	if s.src == nil {
		return nil, fmt.Errorf("%w: camera unavailable: %v", ErrAcquire, s.lastErr)
	}
	return s.src.Acquire(ctx)
}

// Close releases the device if it was opened.
func (s *ReopeningSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/banshee-data/sort.station/internal/timeutil"
)

// StaticSource serves copies of one fixed image stamped with the clock. Dev
// mode uses it when no camera is attached; tests use FailNext to inject
// acquisition failures.
type StaticSource struct {
	mu       sync.Mutex
	img      image.Image
	clock    timeutil.Clock
	failures int
	acquired int
	closed   bool
}

// NewStaticSource returns a source that always yields img.
func NewStaticSource(img image.Image, clock timeutil.Clock) *StaticSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StaticSource{img: img, clock: clock}
}

// SetImage replaces the image served by later acquisitions.
func (s *StaticSource) SetImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

// FailNext makes the next n acquisitions fail with ErrAcquire.
func (s *StaticSource) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Acquired returns the number of frames successfully handed out.
func (s *StaticSource) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// Acquire returns a fresh copy of the configured image.
func (s *StaticSource) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("%w: device busy", ErrAcquire)
	}
	if s.img == nil {
		return nil, fmt.Errorf("%w: no image configured", ErrAcquire)
	}
	s.acquired++
	return NewFrame(ToRGBA(s.img), s.clock.Now()), nil
}

// Close marks the source closed. It is safe to call more than once.
func (s *StaticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

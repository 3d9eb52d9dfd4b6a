// Package overlay runs the live view: a periodic tick that detects on the
// newest frame and publishes an annotated copy with the frame rate. It is
// display only and never records anything.
package overlay

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/monitoring"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

const (
	DefaultInterval = 30 * time.Millisecond
	DefaultWindow   = 30

	// epsilon keeps the frame-rate division finite when two ticks share a timestamp.
	epsilon = 1e-10
)

var logf = monitoring.Tagged("overlay")

// Update is one published live-view frame.
type Update struct {
	Frame      *camera.Frame
	Annotated  *camera.Frame
	Detections detection.Set
	FPS        float64
	MeanFPS    float64
	At         time.Time
}

// Publisher receives live-view updates. Publish must not block for long; it
// runs on the loop goroutine.
type Publisher interface {
	Publish(Update)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Update)

// Publish calls f.
func (f PublisherFunc) Publish(u Update) { f(u) }

// Option configures a Loop.
type Option func(*Loop)

// WithLocker makes each tick's acquire and detect run while holding mu, so the
// loop shares the frame source with other users of the same lock.
func WithLocker(mu sync.Locker) Option {
	return func(l *Loop) { l.locker = mu }
}

// WithClock sets the clock used for ticking and frame-rate timing.
func WithClock(c timeutil.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithWindow sets how many recent frame-rate samples feed MeanFPS.
func WithWindow(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.window = n
		}
	}
}

// Loop is the live-view ticker.
type Loop struct {
	source   camera.Source
	detector detection.Detector
	pub      Publisher
	locker   sync.Locker
	clock    timeutil.Clock
	interval time.Duration
	window   int

	prev    time.Time
	samples []float64
	skipped int
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// NewLoop returns a loop reading from source, detecting with detector and
// publishing to pub.
func NewLoop(source camera.Source, detector detection.Detector, pub Publisher, opts ...Option) *Loop {
	l := &Loop{
		source:   source,
		detector: detector,
		pub:      pub,
		locker:   nopLocker{},
		clock:    timeutil.RealClock{},
		interval: DefaultInterval,
		window:   DefaultWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.Tick(ctx)
		}
	}
}

// Tick runs one live-view iteration. It reports false when the tick was
// skipped because no frame or no detections could be obtained.
func (l *Loop) Tick(ctx context.Context) (Update, bool) {
	frame, set, err := l.sample(ctx)
	if err != nil {
		l.skipped++
		if l.skipped == 1 || l.skipped%100 == 0 {
			logf("live view skipped %d ticks, last error: %v", l.skipped, err)
		}
		return Update{}, false
	}
	l.skipped = 0

	now := l.clock.Now()
	var fps float64
	if !l.prev.IsZero() {
		fps = 1 / (now.Sub(l.prev).Seconds() + epsilon)
		l.samples = append(l.samples, fps)
		if len(l.samples) > l.window {
			l.samples = l.samples[len(l.samples)-l.window:]
		}
	}
	l.prev = now

	var mean float64
	if len(l.samples) > 0 {
		mean = stat.Mean(l.samples, nil)
	}

	u := Update{
		Frame:      frame,
		Annotated:  camera.NewFrame(Annotate(frame.Image, set, LiveStyle), frame.CapturedAt),
		Detections: set,
		FPS:        fps,
		MeanFPS:    mean,
		At:         now,
	}
	if l.pub != nil {
		l.pub.Publish(u)
	}
	return u, true
}

func (l *Loop) sample(ctx context.Context) (*camera.Frame, detection.Set, error) {
	l.locker.Lock()
	defer l.locker.Unlock()

	frame, err := l.source.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	set, err := l.detector.Infer(ctx, frame)
	if err != nil {
		return nil, nil, err
	}
	return frame, set, nil
}

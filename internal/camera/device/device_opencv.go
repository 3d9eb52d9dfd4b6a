//go:build opencv
// +build opencv

package device

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/monitoring"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

// Supported reports whether this build can open capture devices.
const Supported = true

var logf = monitoring.Tagged("camera")

// Source reads frames from an OpenCV VideoCapture.
type Source struct {
	mu     sync.Mutex
	id     string
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	clock  timeutil.Clock
	closed bool
}

// Open opens the device identified by id. A numeric id selects a local camera
// index; anything else is passed to OpenCV as a file name or stream URL.
func Open(id string, clock timeutil.Clock, opts Options) (camera.Source, error) {
	var target interface{} = id
	if idx, err := strconv.Atoi(id); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %q: %w", id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture device %q did not open", id)
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	logf("opened capture device %q (gocv %s, OpenCV %s)", id, gocv.Version(), gocv.OpenCVVersion())

	return &Source{
		id:    id,
		vc:    vc,
		mat:   gocv.NewMat(),
		clock: clock,
	}, nil
}

// Acquire grabs the newest frame from the device and converts it to an
// image.Image owned by the returned frame.
func (s *Source) Acquire(ctx context.Context) (*camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", camera.ErrAcquire, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, camera.ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("%w: device %q returned no frame", camera.ErrAcquire, s.id)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert frame: %w", camera.ErrAcquire, err)
	}

	return camera.NewFrame(img, s.clock.Now()), nil
}

// Close releases the capture device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.mat.Close(); err != nil {
		logf("failed to release frame buffer: %v", err)
	}
	return s.vc.Close()
}

// Package camera supplies frames to the decision pipeline.
//
// A Source hands out the most recent frame on request. Acquisition may fail
// transiently (device busy, unplugged, end of replay); callers treat
// ErrAcquire as "try again on the next trigger", never as fatal.
package camera

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"time"
)

// ErrAcquire marks a transient failure to obtain a frame.
var ErrAcquire = errors.New("failed to acquire frame")

// ErrClosed is returned by a Source after Close.
var ErrClosed = errors.New("frame source closed")

// DefaultJPEGQuality matches the encoder default used by OpenCV's imwrite.
const DefaultJPEGQuality = 95

// Source supplies the newest camera frame on request.
type Source interface {
	// Acquire returns the most recent frame. Failures wrap ErrAcquire.
	Acquire(ctx context.Context) (*Frame, error)
	// Close releases the underlying device.
	Close() error
}

// Frame is one captured image. The image is owned by the frame; consumers that
// keep a frame beyond the current transaction take a Clone.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// NewFrame wraps img with a capture timestamp.
func NewFrame(img image.Image, at time.Time) *Frame {
	return &Frame{Image: img, CapturedAt: at}
}

// Bounds returns the image bounds, or the zero rectangle for an empty frame.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Clone returns a deep copy backed by a fresh RGBA buffer.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	return &Frame{Image: ToRGBA(f.Image), CapturedAt: f.CapturedAt}
}

// EncodeJPEG writes the frame as a JPEG.
func (f *Frame) EncodeJPEG(w io.Writer, quality int) error {
	if f == nil || f.Image == nil {
		return errors.New("cannot encode empty frame")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return jpeg.Encode(w, f.Image, &jpeg.Options{Quality: quality})
}

// ToRGBA copies img into a new RGBA image with the same bounds.
func ToRGBA(img image.Image) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Package device opens a local capture device through OpenCV.
//
// The OpenCV binding needs cgo and an installed OpenCV, so it is only built
// with -tags=opencv. Without the tag Open reports that support is missing and
// the station can still run from a replay directory.
package device

import "errors"

// ErrUnsupported is returned by Open in builds without OpenCV.
var ErrUnsupported = errors.New("camera support not enabled")

// Options configures the capture device.
type Options struct {
	// Width and Height request a capture resolution; zero leaves the driver default.
	Width  int
	Height int
}

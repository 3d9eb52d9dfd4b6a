//go:build !opencv
// +build !opencv

package device

import (
	"fmt"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

// Supported reports whether this build can open capture devices.
const Supported = false

// Open is a stub implementation when OpenCV support is disabled.
// Build with -tags=opencv to enable capture devices.
func Open(id string, clock timeutil.Clock, opts Options) (camera.Source, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags=opencv to open device %q", ErrUnsupported, id)
}

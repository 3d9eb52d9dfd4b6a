// Package detection holds the detector capability, the label→command table
// and the candidate selection policy that turns a detection set into at most
// one actionable label.
package detection

import (
	"context"
	"fmt"

	"github.com/banshee-data/sort.station/internal/camera"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection is one labelled box with a confidence in [0,1].
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// Set is the ordered detections for one frame. Order is whatever the detector
// produced and only matters for tie-breaking in Select.
type Set []Detection

// Clone returns an independent copy; nil stays nil.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Detector runs the classification model on one frame.
type Detector interface {
	Infer(ctx context.Context, frame *camera.Frame) (Set, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame *camera.Frame) (Set, error)

// Infer calls f.
func (f DetectorFunc) Infer(ctx context.Context, frame *camera.Frame) (Set, error) {
	return f(ctx, frame)
}

// NopDetector never finds anything. Every capture against it resolves to the
// reset command, which is what dev mode wants when no model is running.
var NopDetector Detector = DetectorFunc(func(context.Context, *camera.Frame) (Set, error) {
	return Set{}, nil
})

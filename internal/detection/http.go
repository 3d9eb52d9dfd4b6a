package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/httputil"
)

// maxResponseBytes caps how much of an inference response is read.
const maxResponseBytes = 4 << 20

// HTTPDetector posts frames to an inference service (a YOLO model behind a
// small HTTP wrapper) and decodes its detections.
//
// Request: multipart/form-data with the JPEG frame in the "file" field.
// Response: {"detections":[{"label":"metal","confidence":0.81,"box":[x1,y1,x2,y2]}]}
// Detections are kept in the order the service returns them.
type HTTPDetector struct {
	client  httputil.HTTPClient
	url     string
	quality int
}

// NewHTTPDetector returns a detector that talks to the service at url.
func NewHTTPDetector(client httputil.HTTPClient, url string) *HTTPDetector {
	return &HTTPDetector{client: client, url: url, quality: camera.DefaultJPEGQuality}
}

type inferenceDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

type inferenceResponse struct {
	Detections []inferenceDetection `json:"detections"`
	Error      string               `json:"error,omitempty"`
}

// Infer sends frame to the service.
func (d *HTTPDetector) Infer(ctx context.Context, frame *camera.Frame) (Set, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := frame.EncodeJPEG(part, d.quality); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send inference request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}

	var decoded inferenceResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, decoded.Error)
		}
		return nil, fmt.Errorf("inference service returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inference response: %w", err)
	}

	set := make(Set, 0, len(decoded.Detections))
	for i, det := range decoded.Detections {
		if det.Confidence < 0 || det.Confidence > 1 {
			return nil, fmt.Errorf("detection %d (%s): confidence %v outside [0,1]", i, det.Label, det.Confidence)
		}
		var box Box
		if len(det.Box) == 4 {
			box = Box{X1: int(det.Box[0]), Y1: int(det.Box[1]), X2: int(det.Box[2]), Y2: int(det.Box[3])}
		} else if len(det.Box) != 0 {
			return nil, fmt.Errorf("detection %d (%s): box has %d coordinates, want 4", i, det.Label, len(det.Box))
		}
		set = append(set, Detection{Label: det.Label, Confidence: det.Confidence, Box: box})
	}
	return set, nil
}

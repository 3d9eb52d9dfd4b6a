package detection

import (
	"context"
	"errors"
	"image/color"
	"mime"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/httputil"
	"github.com/banshee-data/sort.station/internal/testutil"
)

func TestSelect(t *testing.T) {
	actions := DefaultActionMap()

	tests := []struct {
		name    string
		set     Set
		wantOK  bool
		wantSel Selection
	}{
		{
			name:    "tie goes to the earliest maximum",
			set:     Set{{Label: "plastic", Confidence: 0.40}, {Label: "metal", Confidence: 0.81}, {Label: "glass", Confidence: 0.81}},
			wantOK:  true,
			wantSel: Selection{Label: "metal", Confidence: 0.81},
		},
		{
			name:   "unmapped label never wins",
			set:    Set{{Label: "cardboard", Confidence: 0.99}},
			wantOK: false,
		},
		{
			name:    "unmapped highest is skipped",
			set:     Set{{Label: "cardboard", Confidence: 0.99}, {Label: "paper", Confidence: 0.30}},
			wantOK:  true,
			wantSel: Selection{Label: "paper", Confidence: 0.30},
		},
		{
			name:   "empty set",
			set:    Set{},
			wantOK: false,
		},
		{
			name:   "nil set",
			set:    nil,
			wantOK: false,
		},
		{
			name:   "zero confidence is not selected",
			set:    Set{{Label: "glass", Confidence: 0}},
			wantOK: false,
		},
		{
			name:    "later strictly higher replaces",
			set:     Set{{Label: "glass", Confidence: 0.5}, {Label: "plastic", Confidence: 0.51}},
			wantOK:  true,
			wantSel: Selection{Label: "plastic", Confidence: 0.51},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := Select(tt.set, actions)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantSel, sel)
			}
		})
	}
}

func TestSelect_WinnerIsFirstMaximalMappedDetection(t *testing.T) {
	actions := DefaultActionMap()
	sets := []Set{
		{{Label: "metal", Confidence: 0.7}, {Label: "glass", Confidence: 0.7}, {Label: "paper", Confidence: 0.2}},
		{{Label: "trash", Confidence: 0.9}, {Label: "paper", Confidence: 0.6}, {Label: "metal", Confidence: 0.6}},
		{{Label: "glass", Confidence: 0.1}, {Label: "glass", Confidence: 0.95}, {Label: "plastic", Confidence: 0.95}},
	}
	for _, set := range sets {
		sel, ok := Select(set, actions)
		require.True(t, ok)

		first := -1
		for i, d := range set {
			if !actions.Has(d.Label) {
				continue
			}
			if d.Confidence > sel.Confidence {
				t.Fatalf("%v: selected %v but %v is higher", set, sel, d)
			}
			if first < 0 && d.Confidence == sel.Confidence {
				first = i
			}
		}
		require.GreaterOrEqual(t, first, 0)
		assert.Equal(t, set[first].Label, sel.Label)
	}
}

func TestNewActionMap(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		reset   byte
		wantErr bool
	}{
		{"valid", map[string]string{"can": "C", "bottle": "b"}, 'R', false},
		{"empty map", map[string]string{}, 'R', true},
		{"empty label", map[string]string{"": "A"}, 'R', true},
		{"two letter code", map[string]string{"glass": "GL"}, 'R', true},
		{"digit code", map[string]string{"glass": "1"}, 'R', true},
		{"collides with reset", map[string]string{"rubbish": "R"}, 'R', true},
		{"bad reset", map[string]string{"glass": "G"}, '\n', true},
		{"label with separator", map[string]string{"paper/card": "P"}, 'R', true},
		{"label with backslash", map[string]string{`paper\card`: "P"}, 'R', true},
		{"dot dot label", map[string]string{"..": "P"}, 'R', true},
		{"dot label", map[string]string{".": "P"}, 'R', true},
		{"unknown label", map[string]string{"unknown": "U"}, 'R', true},
		{"none label", map[string]string{"None": "N"}, 'R', true},
		{"none label lower case", map[string]string{"none": "N"}, 'R', true},
		{"label with spaces", map[string]string{"paper cup": "P"}, 'R', false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewActionMap(tt.raw, tt.reset)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.raw), m.Len())
		})
	}
}

func TestActionMap_Lookups(t *testing.T) {
	m := DefaultActionMap()

	code, ok := m.Code("metal")
	assert.True(t, ok)
	assert.Equal(t, byte('M'), code)

	_, ok = m.Code("cardboard")
	assert.False(t, ok)

	assert.Equal(t, []string{"glass", "metal", "paper", "plastic"}, m.Labels())
	assert.Equal(t, byte('R'), m.Reset())
	assert.Equal(t, byte('R'), ActionMap{}.Reset())

	// Labels hands out a copy
	labels := m.Labels()
	labels[0] = "changed"
	assert.Equal(t, "glass", m.Labels()[0])
}

func TestSetClone(t *testing.T) {
	var nilSet Set
	assert.Nil(t, nilSet.Clone())

	s := Set{{Label: "glass", Confidence: 0.5}}
	c := s.Clone()
	c[0].Label = "metal"
	assert.Equal(t, "glass", s[0].Label)
	assert.Equal(t, "glass 0.50", s[0].String())
}

func testFrame() *camera.Frame {
	return camera.NewFrame(testutil.SolidImage(32, 24, color.RGBA{B: 255, A: 255}), time.Unix(1, 0))
}

func TestHTTPDetector_Infer(t *testing.T) {
	client := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`{"detections":[{"label":"plastic","confidence":0.4,"box":[1,2,30,20]},{"label":"metal","confidence":0.81,"box":[]}]}`)
	det := NewHTTPDetector(client, "http://infer.local/predict")

	set, err := det.Infer(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, Detection{Label: "plastic", Confidence: 0.4, Box: Box{X1: 1, Y1: 2, X2: 30, Y2: 20}}, set[0])
	assert.Equal(t, "metal", set[1].Label)
	assert.Equal(t, Box{}, set[1].Box)

	require.Equal(t, 1, client.RequestCount())
	req := client.Requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://infer.local/predict", req.URL.String())

	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEmpty(t, params["boundary"])
	assert.True(t, strings.Contains(string(client.Bodies[0]), `name="file"; filename="frame.jpg"`))
}

func TestHTTPDetector_EmptyDetections(t *testing.T) {
	client := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"detections":[]}`)
	set, err := NewHTTPDetector(client, "http://infer.local/predict").Infer(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.NotNil(t, set)
}

func TestHTTPDetector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error with message", http.StatusInternalServerError, `{"error":"model not loaded"}`, "model not loaded"},
		{"server error plain", http.StatusBadGateway, `<html>`, "returned 502"},
		{"invalid json", http.StatusOK, `{"detections":`, "unmarshal"},
		{"confidence above one", http.StatusOK, `{"detections":[{"label":"glass","confidence":1.2}]}`, "outside [0,1]"},
		{"short box", http.StatusOK, `{"detections":[{"label":"glass","confidence":0.5,"box":[1,2]}]}`, "want 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := httputil.NewMockHTTPClient().AddResponse(tt.status, tt.body)
			_, err := NewHTTPDetector(client, "http://infer.local/predict").Infer(context.Background(), testFrame())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPDetector_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := httputil.NewMockHTTPClient().AddErrorResponse(boom)
	_, err := NewHTTPDetector(client, "http://infer.local/predict").Infer(context.Background(), testFrame())
	assert.ErrorIs(t, err, boom)
}

func TestNopDetector(t *testing.T) {
	set, err := NopDetector.Infer(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Empty(t, set)
}

package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] != "hello" {
		t.Errorf("message = %s, want 'hello'", resp["message"])
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid input") }, http.StatusBadRequest, "invalid input"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no snapshot") }, http.StatusNotFound, "no snapshot"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "disk full") }, http.StatusInternalServerError, "disk full"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "camera offline") }, http.StatusServiceUnavailable, "camera offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.msg {
				t.Errorf("error = %q, want %q", resp["error"], tt.msg)
			}
		})
	}
}

func TestWriteJPEG(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJPEG(rec, []byte{0xFF, 0xD8, 0xFF, 0xD9})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content-type = %s, want image/jpeg", ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "4" {
		t.Errorf("content-length = %s, want 4", cl)
	}
	if rec.Body.Len() != 4 {
		t.Errorf("body length = %d, want 4", rec.Body.Len())
	}
}

func TestMockHTTPClient(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	client := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"ok":true}`).
		AddErrorResponse(boom)

	req, _ := http.NewRequest(http.MethodPost, "http://infer/predict", strings.NewReader("payload"))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("first Do: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if string(client.Bodies[0]) != "payload" {
		t.Errorf("recorded body = %q, want payload", client.Bodies[0])
	}

	req2, _ := http.NewRequest(http.MethodGet, "http://infer/health", nil)
	if _, err := client.Do(req2); !errors.Is(err, boom) {
		t.Errorf("second Do err = %v, want %v", err, boom)
	}

	// drained queue falls back to an empty 200
	req3, _ := http.NewRequest(http.MethodGet, "http://infer/health", nil)
	resp3, err := client.Do(req3)
	if err != nil || resp3.StatusCode != http.StatusOK {
		t.Errorf("third Do = %v, %v; want 200", resp3, err)
	}
	if client.RequestCount() != 3 {
		t.Errorf("RequestCount = %d, want 3", client.RequestCount())
	}
}

// Package api serves the operator surface: the capture and flag buttons, the
// session state, the latest annotated snapshot, the history, a totals chart
// and the live overlay stream.
package api

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/db"
	"github.com/banshee-data/sort.station/internal/httputil"
	"github.com/banshee-data/sort.station/internal/ledger"
	"github.com/banshee-data/sort.station/internal/monitoring"
	"github.com/banshee-data/sort.station/internal/station"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxHistoryLimit caps ?limit= on /api/history.
const maxHistoryLimit = 500

var logf = monitoring.Tagged("api")

//go:embed static
var staticFiles embed.FS

// HistoryReader is the read side of the capture history.
type HistoryReader interface {
	RecentCaptures(ctx context.Context, limit int) ([]db.CaptureRecord, error)
}

type Server struct {
	st      *station.Station
	history HistoryReader
	live    *LiveHub
}

// NewServer returns a server for st. history and live may be nil; their
// routes then answer 503.
func NewServer(st *station.Station, history HistoryReader, live *LiveHub) *Server {
	return &Server{
		st:      st,
		history: history,
		live:    live,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 100 && statusCode < 200:
		return colorCyan + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/api/capture", s.handleCapture)
	mux.HandleFunc("/api/flag", s.handleFlag)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/stats/chart", s.handleTotalsChart)
	mux.HandleFunc("/ws/live", s.handleLive)
	return mux
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	result, err := s.st.Capture(r.Context())
	switch {
	case err == nil:
		httputil.WriteJSONOK(w, result)
	case errors.Is(err, station.ErrCaptureFailed), errors.Is(err, station.ErrClosed):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		// The command went out and the ledger counted it; only the file is missing.
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
	}
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := s.st.FlagMisclassified(r.Context())
	switch {
	case err == nil:
		httputil.WriteJSONOK(w, map[string]string{"path": path})
	case errors.Is(err, station.ErrCaptureFailed), errors.Is(err, station.ErrClosed):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// stateResponse is the ledger without its image plus the operator surface.
type stateResponse struct {
	State            string           `json:"state"`
	SnapshotCount    int              `json:"snapshot_count"`
	Totals           []totalResponse  `json:"category_totals"`
	LatestLabel      string           `json:"latest_label"`
	LatestConfidence string           `json:"latest_confidence"`
	Caption          string           `json:"caption"`
	HasSnapshot      bool             `json:"has_snapshot"`
	Notice           *station.Notice  `json:"notice,omitempty"`
	Actuator         actuatorResponse `json:"actuator"`
}

type totalResponse struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type actuatorResponse struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.st.Snapshot()
	resp := stateResponse{
		State:            s.st.State().String(),
		SnapshotCount:    snap.SnapshotCount,
		Totals:           totals(s.st.Totals()),
		LatestLabel:      snap.LatestLabel,
		LatestConfidence: fmt.Sprintf("%.1f", snap.LatestConfidence),
		Caption:          caption(snap),
		HasSnapshot:      snap.LatestFrame != nil,
		Actuator: actuatorResponse{
			Connected: s.st.ActuatorConnected(),
			Status:    s.st.ActuatorStatus(),
		},
	}
	if n, ok := s.st.Notice(); ok {
		resp.Notice = &n
	}
	httputil.WriteJSONOK(w, resp)
}

func totals(in []ledger.Total) []totalResponse {
	out := make([]totalResponse, 0, len(in))
	for _, t := range in {
		out = append(out, totalResponse{Label: t.Label, Count: t.Count})
	}
	return out
}

// caption is the "category / confidence" line shown under the snapshot.
func caption(snap ledger.State) string {
	if snap.SnapshotCount == 0 {
		return ""
	}
	return fmt.Sprintf("Category: %s / Confidence: %.1f%%", snap.LatestLabel, snap.LatestConfidence)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	frame, ok := s.st.AnnotatedSnapshot()
	if !ok {
		httputil.NotFound(w, "no capture yet")
		return
	}
	var buf bytes.Buffer
	if err := frame.EncodeJPEG(&buf, camera.DefaultJPEGQuality); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("encode snapshot: %v", err))
		return
	}
	httputil.WriteJPEG(w, buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.ServiceUnavailable(w, "history database not configured")
		return
	}

	limit := db.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.RecentCaptures(r.Context(), limit)
	if err != nil {
		logf("history query failed: %v", err)
		httputil.InternalServerError(w, "failed to read history")
		return
	}
	httputil.WriteJSONOK(w, records)
}

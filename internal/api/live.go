package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/httputil"
	"github.com/banshee-data/sort.station/internal/overlay"
)

const (
	// liveJPEGQuality trades detail for bandwidth on the preview stream.
	liveJPEGQuality = 70
	// clientBuffer is how many frames a slow viewer may fall behind before
	// frames are dropped for it.
	clientBuffer = 2
	writeWait    = 2 * time.Second
)

// Upgrader upgrades viewer connections. The kiosk page is served from the
// same origin, so the default origin check applies.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// LiveMessage is one overlay frame as sent to viewers.
type LiveMessage struct {
	FPS        float64       `json:"fps"`
	MeanFPS    float64       `json:"mean_fps"`
	Detections detection.Set `json:"detections"`
	JPEG       string        `json:"jpeg"` // base64
	At         time.Time     `json:"at"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveHub fans overlay updates out to websocket viewers. It implements
// overlay.Publisher; Publish never blocks on a viewer.
type LiveHub struct {
	mu      sync.RWMutex
	clients map[*liveClient]struct{}
	dropped int
}

var _ overlay.Publisher = (*LiveHub)(nil)

// NewLiveHub returns a hub with no viewers.
func NewLiveHub() *LiveHub {
	return &LiveHub{clients: make(map[*liveClient]struct{})}
}

// ClientCount returns the number of connected viewers.
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were skipped for slow viewers.
func (h *LiveHub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Publish encodes u once and queues it for every viewer. Nothing is encoded
// when nobody is watching.
func (h *LiveHub) Publish(u overlay.Update) {
	if h.ClientCount() == 0 {
		return
	}
	msg, err := EncodeLiveMessage(u)
	if err != nil {
		logf("failed to encode live frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
}

// EncodeLiveMessage renders u as the JSON sent to viewers.
func EncodeLiveMessage(u overlay.Update) ([]byte, error) {
	frame := u.Annotated
	if frame == nil {
		frame = u.Frame
	}
	var jpg string
	if frame != nil {
		var buf bytes.Buffer
		if err := frame.EncodeJPEG(&buf, liveJPEGQuality); err != nil {
			return nil, err
		}
		jpg = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	dets := u.Detections
	if dets == nil {
		dets = detection.Set{}
	}
	return json.Marshal(LiveMessage{
		FPS:        u.FPS,
		MeanFPS:    u.MeanFPS,
		Detections: dets,
		JPEG:       jpg,
		At:         u.At,
	})
}

func (h *LiveHub) register(conn *websocket.Conn) *liveClient {
	c := &liveClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logf("viewer connected, total: %d", n)
	return c
}

func (h *LiveHub) unregister(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logf("viewer disconnected, total: %d", n)
}

// ServeHTTP upgrades the request and streams frames until the viewer goes away.
func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade error: %v", err)
		return
	}
	c := h.register(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logf("viewer write error: %v", err)
				// Closing makes the read loop below return.
				conn.Close()
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logf("viewer disconnected with error: %v", err)
			}
			break
		}
	}
	h.unregister(c)
	<-done
	conn.Close()
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		httputil.ServiceUnavailable(w, "live view not running")
		return
	}
	s.live.ServeHTTP(w, r)
}

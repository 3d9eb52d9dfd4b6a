package station

import (
	"sync"
	"time"

	"github.com/banshee-data/sort.station/internal/timeutil"
)

// DefaultNoticeDuration is how long an operator notice stays visible.
const DefaultNoticeDuration = 2 * time.Second

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a short-lived operator message.
type Notice struct {
	Level   string    `json:"level"`
	Text    string    `json:"text"`
	Posted  time.Time `json:"posted"`
	Expires time.Time `json:"expires"`
}

// Notices holds the single current notice. A newer notice replaces the
// previous one; a notice disappears once its duration has passed.
type Notices struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	ttl     time.Duration
	current *Notice
}

// NewNotices returns an empty notice board.
func NewNotices(clock timeutil.Clock, ttl time.Duration) *Notices {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if ttl <= 0 {
		ttl = DefaultNoticeDuration
	}
	return &Notices{clock: clock, ttl: ttl}
}

// Post replaces the current notice.
func (n *Notices) Post(level, text string) Notice {
	now := n.clock.Now()
	notice := Notice{Level: level, Text: text, Posted: now, Expires: now.Add(n.ttl)}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = &notice
	return notice
}

// Current returns the live notice, if any.
func (n *Notices) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notice{}, false
	}
	if !n.clock.Now().Before(n.current.Expires) {
		n.current = nil
		return Notice{}, false
	}
	return *n.current, true
}

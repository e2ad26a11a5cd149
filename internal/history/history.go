// Package history tracks the windowed conversation log for the kiosk guide.
// It owns inactivity expiry, trimming, profanity masking for the public
// transcript, and the session-creation threshold trigger.
package history

import (
	"sync"
	"time"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one utterance in the conversation.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Config configures the History behavior.
type Config struct {
	// MaxLength is the maximum number of turns to retain (default: 20)
	MaxLength int
	// InactivityTimeout is the duration after which context expires (default: 5 minutes)
	InactivityTimeout time.Duration
	// ChatCountThreshold is the turn count above which a session is minted (default: 3)
	ChatCountThreshold int
	// VisibleTurns is how many recent turns the public snapshot exposes (default: 3)
	VisibleTurns int
}

// DefaultConfig returns sensible defaults for conversation tracking.
func DefaultConfig() Config {
	return Config{
		MaxLength:          20,
		InactivityTimeout:  5 * time.Minute,
		ChatCountThreshold: 3,
		VisibleTurns:       3,
	}
}

// Snapshot is the read-only view handed to listeners.
type Snapshot struct {
	// Visible is the last few non-system turns with profanity masked.
	Visible []Turn `json:"visible"`
	// Full is every retained turn, unmasked.
	Full      []Turn `json:"full"`
	SessionID string `json:"sessionId"`
}

// History is an append-only, windowed log of conversation turns.
// A session-creation request is latched the first time the turn count
// crosses the configured threshold; two racing AddTurn calls cannot
// trigger it twice.
type History struct {
	mu              sync.Mutex
	config          Config
	turns           []Turn
	sessionID       string
	sessionPending  bool
	lastInteraction time.Time
	censor          *Censor

	// onSessionNeeded receives a copy of the full history. Called on its
	// own goroutine so session creation never blocks the pipeline.
	onSessionNeeded func([]Turn)

	now func() time.Time
}

// New creates a History with the given config.
func New(config Config) *History {
	if config.MaxLength <= 0 {
		config.MaxLength = 20
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 5 * time.Minute
	}
	if config.ChatCountThreshold <= 0 {
		config.ChatCountThreshold = 3
	}
	if config.VisibleTurns <= 0 {
		config.VisibleTurns = 3
	}

	return &History{
		config:          config,
		turns:           make([]Turn, 0, config.MaxLength+1),
		lastInteraction: time.Now(),
		censor:          NewCensor(nil),
		now:             time.Now,
	}
}

// SetOnSessionNeeded registers the session-creation trigger.
func (h *History) SetOnSessionNeeded(fn func([]Turn)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSessionNeeded = fn
}

// SetCensor replaces the profanity filter used for public snapshots.
func (h *History) SetCensor(c *Censor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c != nil {
		h.censor = c
	}
}

// AddTurn appends a turn. If the conversation was inactive longer than the
// configured timeout, history and session are cleared first and the turn
// starts a fresh conversation; the return value reports that reset.
func (h *History) AddTurn(role, content string) (reset bool) {
	h.mu.Lock()

	now := h.now()
	if len(h.turns) > 0 && now.Sub(h.lastInteraction) > h.config.InactivityTimeout {
		h.clearLocked()
		reset = true
	}
	h.lastInteraction = now

	h.turns = append(h.turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: now.Format("2006-01-02T15:04:05-07:00"),
	})

	// Keep the opening turn as an anchor and drop a window of the
	// oldest dialogue after it.
	if len(h.turns) > h.config.MaxLength+1 {
		h.turns = append(h.turns[:1], h.turns[3:]...)
	}

	var trigger func([]Turn)
	var copied []Turn
	if len(h.turns) > h.config.ChatCountThreshold && h.sessionID == "" && !h.sessionPending && h.onSessionNeeded != nil {
		h.sessionPending = true
		trigger = h.onSessionNeeded
		copied = h.copyLocked()
	}
	h.mu.Unlock()

	if trigger != nil {
		go trigger(copied)
	}
	return reset
}

// SetSessionID records a successfully minted session.
func (h *History) SetSessionID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = id
	h.sessionPending = false
}

// SessionFailed releases the in-flight latch without recording a session.
// The next AddTurn that crosses the threshold will naturally retry.
func (h *History) SessionFailed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionPending = false
}

// SessionID returns the current session identifier, empty if none.
func (h *History) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Turns returns a copy of all retained turns.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.copyLocked()
}

// Snapshot returns the listener view: recent non-system turns masked for
// display, plus the full transcript and session id.
func (h *History) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	visible := make([]Turn, 0, h.config.VisibleTurns)
	for i := len(h.turns) - 1; i >= 0 && len(visible) < h.config.VisibleTurns; i-- {
		t := h.turns[i]
		if t.Role == RoleSystem {
			continue
		}
		t.Content = h.censor.Censor(t.Content)
		visible = append([]Turn{t}, visible...)
	}

	return Snapshot{
		Visible:   visible,
		Full:      h.copyLocked(),
		SessionID: h.sessionID,
	}
}

// Reset clears history and session atomically.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked()
}

func (h *History) clearLocked() {
	h.turns = make([]Turn, 0, h.config.MaxLength+1)
	h.sessionID = ""
	h.sessionPending = false
}

func (h *History) copyLocked() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

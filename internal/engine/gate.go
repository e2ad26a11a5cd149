package engine

import "sync"

// Interaction status values published to listeners.
const (
	StatusIdle       = "idle"
	StatusListening  = "listening"
	StatusProcessing = "processing"
	StatusSpeaking   = "speaking"

	// StatusErrorRetry is shown after a pipeline failure until the visitor
	// acts again.
	StatusErrorRetry = "Error occurred - Click microphone to try again"
)

// Gate serializes the conversation pipeline. At most one pipeline runs at a
// time; input arriving while one is active is dropped, never queued.
type Gate struct {
	mu         sync.Mutex
	listening  bool
	processing bool
	status     string
	errored    bool
}

// NewGate returns a gate in the idle state.
func NewGate() *Gate {
	return &Gate{status: StatusIdle}
}

// GateSnapshot is the externally visible interaction state.
type GateSnapshot struct {
	IsListening  bool
	IsProcessing bool
	Status       string
}

// Snapshot returns the current interaction state.
func (g *Gate) Snapshot() GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateSnapshot{
		IsListening:  g.listening,
		IsProcessing: g.processing,
		Status:       g.status,
	}
}

// TryStartPipeline claims the pipeline. It fails while another pipeline is
// active; listening is allowed and is implicitly ended by the claim.
func (g *Gate) TryStartPipeline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.processing {
		return false
	}
	g.listening = false
	g.processing = true
	g.status = StatusProcessing
	g.errored = false
	return true
}

// TryStartGreeting claims the pipeline for a greeting. Unlike user input, a
// greeting also defers to an active listening session.
func (g *Gate) TryStartGreeting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.processing || g.listening {
		return false
	}
	g.processing = true
	g.status = StatusProcessing
	g.errored = false
	return true
}

// SetListening flips the listening flag. Refused while a pipeline is active.
func (g *Gate) SetListening(on bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.processing {
		return false
	}
	g.listening = on
	g.errored = false
	if on {
		g.status = StatusListening
	} else {
		g.status = StatusIdle
	}
	return true
}

// SetSpeaking marks the voicing phase of an active pipeline.
func (g *Gate) SetSpeaking() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.processing {
		g.status = StatusSpeaking
	}
}

// SetError records a failure status. Unlike the phase statuses it survives
// FinishPipeline, so the message stays on screen until the visitor acts again.
func (g *Gate) SetError(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = msg
	g.errored = true
}

// FinishPipeline releases the pipeline claim and returns to idle. An error
// status set during the run is left in place.
func (g *Gate) FinishPipeline() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processing = false
	g.listening = false
	if !g.errored {
		g.status = StatusIdle
	}
}

// ForceIdle unconditionally resets to idle. Used by Stop.
func (g *Gate) ForceIdle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listening = false
	g.processing = false
	g.status = StatusIdle
	g.errored = false
}

// CanTrigger reports whether an autonomous trigger (presence greeting) would
// currently be accepted.
func (g *Gate) CanTrigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.processing && !g.listening
}

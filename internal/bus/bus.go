// Package bus provides an internal event bus for component communication.
// Payloads are typed per event kind; consumers run on their own goroutines
// and can never block the publisher.
package bus

import (
	"sync"

	"github.com/normanking/kioskguide/internal/history"
)

// EventType identifies different event types
type EventType string

const (
	// Engine events
	EventStateChanged        EventType = "engine.state_changed"
	EventConversationChanged EventType = "engine.conversation_changed"
	EventSessionCreated      EventType = "engine.session_created"
	EventPipelineError       EventType = "engine.pipeline_error"

	// Avatar events
	EventVisemeChanged EventType = "avatar.viseme_changed"
	EventMouthClosed   EventType = "avatar.mouth_closed"

	// Presence events
	EventPersonDetected EventType = "presence.person_detected"

	// System events
	EventLogEmitted EventType = "system.log_emitted"
)

// Event is implemented by every typed payload on the bus.
type Event interface {
	Type() EventType
}

// StateChanged carries the engine interaction state.
type StateChanged struct {
	IsListening  bool   `json:"isListening"`
	IsProcessing bool   `json:"isProcessing"`
	Status       string `json:"voiceStatus"`
	SessionID    string `json:"sessionId,omitempty"`
}

func (StateChanged) Type() EventType { return EventStateChanged }

// ConversationChanged carries the masked transcript view.
type ConversationChanged struct {
	Snapshot history.Snapshot `json:"snapshot"`
}

func (ConversationChanged) Type() EventType { return EventConversationChanged }

// SessionCreated announces a freshly minted (or cleared) session id.
type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

func (SessionCreated) Type() EventType { return EventSessionCreated }

// PipelineError surfaces a non-fatal pipeline failure.
type PipelineError struct {
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (PipelineError) Type() EventType { return EventPipelineError }

// VisemeChanged carries a mouth-shape command for the avatar consumer.
type VisemeChanged struct {
	Name      string  `json:"name"`
	Intensity float64 `json:"intensity"`
}

func (VisemeChanged) Type() EventType { return EventVisemeChanged }

// MouthClosed signals the avatar to return to a neutral mouth.
type MouthClosed struct{}

func (MouthClosed) Type() EventType { return EventMouthClosed }

// PersonDetected announces a camera presence hit.
type PersonDetected struct {
	Score float64 `json:"score"`
}

func (PersonDetected) Type() EventType { return EventPersonDetected }

// LogEmitted mirrors a log line to the display's status panel.
type LogEmitted struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

func (LogEmitted) Type() EventType { return EventLogEmitted }

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// New creates a new event bus
func New() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without blocking.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

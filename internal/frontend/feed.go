// Package frontend serves the kiosk display over WebSocket. Connected
// clients receive engine state, transcript and mouth-shape events as JSON
// frames and can send back user commands (talk button, typed text, rating).
package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/backend"
	"github.com/normanking/kioskguide/internal/bus"
	"github.com/normanking/kioskguide/internal/logging"
)

// logBacklog is how many recent log lines a freshly connected display gets.
const logBacklog = 50

// Controls is the subset of the engine the display may drive.
type Controls interface {
	ToggleListening(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SpeakGreeting(ctx context.Context) error
	ResetConversation()
	Stop()
}

// SessionSource exposes the current session id for feedback submission.
type SessionSource interface {
	SessionID() string
}

// FeedbackSink forwards visitor ratings to the backend.
type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, fb backend.Feedback) error
}

// LogSource supplies recent log lines for the display's status panel.
type LogSource interface {
	History(limit int) []logging.Entry
}

// Config configures the frontend feed server.
type Config struct {
	Addr string `json:"addr"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{Addr: "127.0.0.1:8765"}
}

// frame is the envelope pushed to display clients.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// command is what display clients send back.
type command struct {
	Type   string `json:"type"` // toggle_listen, send_text, greet, reset, stop, feedback
	Text   string `json:"text,omitempty"`
	Rating int    `json:"rating,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Feed bridges the event bus to display clients.
type Feed struct {
	config   *Config
	logger   zerolog.Logger
	controls Controls
	sessions SessionSource
	feedback FeedbackSink
	logs     LogSource

	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]chan frame
}

// New creates the feed server and subscribes it to the bus.
func New(logger zerolog.Logger, eventBus *bus.EventBus, config *Config, controls Controls, sessions SessionSource, feedback FeedbackSink, logs LogSource) *Feed {
	if config == nil {
		config = DefaultConfig()
	}
	f := &Feed{
		config:   config,
		logger:   logger.With().Str("component", "frontend").Logger(),
		controls: controls,
		sessions: sessions,
		feedback: feedback,
		logs:     logs,
		upgrader: websocket.Upgrader{
			// Kiosk display runs on the same machine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan frame),
	}

	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventStateChanged,
		bus.EventConversationChanged,
		bus.EventSessionCreated,
		bus.EventPipelineError,
		bus.EventVisemeChanged,
		bus.EventMouthClosed,
		bus.EventPersonDetected,
		bus.EventLogEmitted,
	}, f.onEvent)

	return f
}

// Start begins serving the WebSocket endpoint.
func (f *Feed) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWS)

	f.server = &http.Server{
		Addr:              f.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		f.logger.Info().Str("addr", f.config.Addr).Msg("Frontend feed listening")
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			f.logger.Error().Err(err).Msg("Frontend feed server failed")
		}
	}()
	return nil
}

// Shutdown closes the server and all client connections.
func (f *Feed) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	for conn, ch := range f.clients {
		close(ch)
		conn.Close()
	}
	f.clients = make(map[*websocket.Conn]chan frame)
	f.mu.Unlock()

	if f.server != nil {
		return f.server.Shutdown(ctx)
	}
	return nil
}

func (f *Feed) onEvent(ev bus.Event) {
	fr := frame{Type: string(ev.Type()), Payload: ev}
	if pe, ok := ev.(bus.PipelineError); ok {
		// error values do not serialize; flatten to a message
		fr.Payload = map[string]string{"stage": pe.Stage, "message": pe.Err.Error()}
	}

	f.mu.Lock()
	for conn, ch := range f.clients {
		select {
		case ch <- fr:
		default:
			// Slow client; drop the frame rather than block the bus.
			f.logger.Debug().Str("client", conn.RemoteAddr().String()).Msg("Frame dropped for slow client")
		}
	}
	f.mu.Unlock()
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ch := make(chan frame, 64)
	if f.logs != nil {
		ch <- frame{Type: "log.backlog", Payload: f.logs.History(logBacklog)}
	}
	f.mu.Lock()
	f.clients[conn] = ch
	f.mu.Unlock()
	f.logger.Info().Str("client", conn.RemoteAddr().String()).Msg("Display client connected")

	go f.writeLoop(conn, ch)
	f.readLoop(conn)
}

func (f *Feed) writeLoop(conn *websocket.Conn, ch chan frame) {
	for fr := range ch {
		data, err := json.Marshal(fr)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	defer f.drop(conn)

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		f.handleCommand(cmd)
	}
}

func (f *Feed) handleCommand(cmd command) {
	ctx := context.Background()

	switch cmd.Type {
	case "toggle_listen":
		if err := f.controls.ToggleListening(ctx); err != nil {
			f.logger.Warn().Err(err).Msg("Toggle listen failed")
		}
	case "send_text":
		go func() {
			if err := f.controls.SendText(ctx, cmd.Text); err != nil {
				f.logger.Warn().Err(err).Msg("Send text failed")
			}
		}()
	case "greet":
		go func() {
			if err := f.controls.SpeakGreeting(ctx); err != nil {
				f.logger.Warn().Err(err).Msg("Greeting failed")
			}
		}()
	case "reset":
		f.controls.ResetConversation()
	case "stop":
		f.controls.Stop()
	case "feedback":
		f.submitFeedback(ctx, cmd)
	default:
		f.logger.Debug().Str("type", cmd.Type).Msg("Unknown display command")
	}
}

func (f *Feed) submitFeedback(ctx context.Context, cmd command) {
	if f.feedback == nil || f.sessions == nil {
		return
	}
	sessionID := f.sessions.SessionID()
	if sessionID == "" {
		f.logger.Warn().Msg("Feedback dropped, no active session")
		return
	}
	if err := f.feedback.SubmitFeedback(ctx, backend.Feedback{
		SessionID: sessionID,
		Rating:    cmd.Rating,
		Label:     cmd.Label,
	}); err != nil {
		f.logger.Warn().Err(err).Msg("Feedback submission failed")
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	if ch, ok := f.clients[conn]; ok {
		close(ch)
		delete(f.clients, conn)
	}
	f.mu.Unlock()
	conn.Close()
	f.logger.Info().Msg("Display client disconnected")
}

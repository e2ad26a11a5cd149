package stt

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSConfig configures the WebSocket recognizer.
type WSConfig struct {
	ServerURL string        `json:"server_url"`
	Language  string        `json:"language"`
	Timeout   time.Duration `json:"timeout"`
}

// DefaultWSConfig returns sensible defaults
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		Language: "en-US",
		Timeout:  30 * time.Second,
	}
}

// WSRecognizer captures one utterance per session from a kiosk speech
// service over WebSocket. The service owns the microphone; this client
// receives final transcripts only.
type WSRecognizer struct {
	config *WSConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	active bool
}

// NewWSRecognizer creates the WebSocket speech recognizer.
func NewWSRecognizer(logger zerolog.Logger, config *WSConfig) *WSRecognizer {
	if config == nil {
		config = DefaultWSConfig()
	}
	return &WSRecognizer{
		config: config,
		logger: logger.With().Str("provider", "ws-stt").Logger(),
	}
}

// Name returns the recognizer identifier
func (r *WSRecognizer) Name() string {
	return "ws"
}

// Available reports whether a speech service endpoint is configured.
func (r *WSRecognizer) Available() bool {
	return r.config.ServerURL != ""
}

type wsControlMessage struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

type wsServerMessage struct {
	Type   string `json:"type"` // transcript, error, end
	Text   string `json:"text,omitempty"`
	Final  bool   `json:"final,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Start opens a capture session. Exactly one handler outcome fires per
// session: OnResult with the final transcript, OnError on failure, or
// OnEnd when the session closes with nothing heard.
func (r *WSRecognizer) Start(ctx context.Context, h Handlers) error {
	if !r.Available() {
		return ErrUnavailable
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil // already listening; no-op
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, r.config.ServerURL, nil)
	cancel()
	if err != nil {
		r.mu.Unlock()
		return err
	}

	if err := conn.WriteJSON(wsControlMessage{Type: "start", Language: r.config.Language}); err != nil {
		conn.Close()
		r.mu.Unlock()
		return err
	}

	r.conn = conn
	r.active = true
	r.mu.Unlock()

	r.logger.Debug().Str("url", r.config.ServerURL).Msg("Capture session started")
	go r.readLoop(conn, h)
	return nil
}

func (r *WSRecognizer) readLoop(conn *websocket.Conn, h Handlers) {
	defer r.teardown(conn)

	for {
		var msg wsServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			// A locally initiated Stop closes the connection; report a
			// quiet end rather than an error in that case.
			if r.stopped(conn) {
				r.emitEnd(h)
			} else {
				r.logger.Warn().Err(err).Msg("Capture session read failed")
				r.emitError(h, err)
			}
			return
		}

		switch msg.Type {
		case "transcript":
			if !msg.Final {
				continue // interim partials never surface
			}
			r.logger.Info().Str("text", msg.Text).Msg("Final transcript received")
			if h.OnResult != nil {
				h.OnResult(msg.Text)
			}
			return
		case "error":
			r.emitError(h, &RecognitionError{Reason: msg.Reason})
			return
		case "end":
			r.emitEnd(h)
			return
		}
	}
}

func (r *WSRecognizer) emitError(h Handlers, err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (r *WSRecognizer) emitEnd(h Handlers) {
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// stopped reports whether conn was closed by a local Stop.
func (r *WSRecognizer) stopped(conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != conn || !r.active
}

func (r *WSRecognizer) teardown(conn *websocket.Conn) {
	conn.Close()
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		r.active = false
	}
	r.mu.Unlock()
}

// Stop ends the active capture session. Idempotent.
func (r *WSRecognizer) Stop() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.active = false
	r.mu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(wsControlMessage{Type: "stop"})
		conn.Close()
	}
}

// RecognitionError is a recoverable mid-listen failure; the user may simply
// try again.
type RecognitionError struct {
	Reason string
}

func (e *RecognitionError) Error() string {
	return "recognition error: " + e.Reason
}

package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kioskguide/internal/backend"
	"github.com/normanking/kioskguide/internal/bus"
	"github.com/normanking/kioskguide/internal/logging"
)

type fakeControls struct {
	mu      sync.Mutex
	toggles int
	sent    []string
	greets  int
	resets  int
	stops   int
}

func (c *fakeControls) ToggleListening(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles++
	return nil
}

func (c *fakeControls) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeControls) SpeakGreeting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.greets++
	return nil
}

func (c *fakeControls) ResetConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
}

func (c *fakeControls) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

type fakeLogSource struct{ entries []logging.Entry }

func (f fakeLogSource) History(limit int) []logging.Entry {
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	return f.entries[len(f.entries)-limit:]
}

type fakeSessionSource struct{ id string }

func (f fakeSessionSource) SessionID() string { return f.id }

type fakeFeedbackSink struct {
	mu       sync.Mutex
	received []backend.Feedback
}

func (f *fakeFeedbackSink) SubmitFeedback(ctx context.Context, fb backend.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, fb)
	return nil
}

func dialFeed(t *testing.T, f *Feed) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.handleWS))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeedBroadcastsBusEvents(t *testing.T) {
	eventBus := bus.New()
	f := New(zerolog.Nop(), eventBus, nil, &fakeControls{}, fakeSessionSource{}, nil, nil)

	conn := dialFeed(t, f)
	// Give the read/write loops a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	eventBus.PublishSync(bus.SessionCreated{SessionID: "sess-7"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var fr struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &fr))
	assert.Equal(t, string(bus.EventSessionCreated), fr.Type)
	assert.Contains(t, string(fr.Payload), "sess-7")
}

func TestFeedSendsLogBacklogOnConnect(t *testing.T) {
	logs := fakeLogSource{entries: []logging.Entry{
		{Timestamp: "10:00:00.000", Level: "info", Message: "Logger initialized"},
		{Timestamp: "10:00:01.000", Level: "info", Message: "Kiosk guide running"},
	}}
	f := New(zerolog.Nop(), bus.New(), nil, &fakeControls{}, fakeSessionSource{}, nil, logs)

	conn := dialFeed(t, f)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"type":"log.backlog"`)
	assert.Contains(t, string(data), "Kiosk guide running")
}

func TestFeedFlattensPipelineErrors(t *testing.T) {
	eventBus := bus.New()
	f := New(zerolog.Nop(), eventBus, nil, &fakeControls{}, fakeSessionSource{}, nil, nil)

	conn := dialFeed(t, f)
	time.Sleep(50 * time.Millisecond)

	eventBus.PublishSync(bus.PipelineError{Stage: "generate", Err: assert.AnError})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"generate"`)
	assert.Contains(t, string(data), "message")
}

func TestFeedDispatchesCommands(t *testing.T) {
	controls := &fakeControls{}
	f := New(zerolog.Nop(), bus.New(), nil, controls, fakeSessionSource{}, nil, nil)

	f.handleCommand(command{Type: "toggle_listen"})
	f.handleCommand(command{Type: "send_text", Text: "hello"})
	f.handleCommand(command{Type: "greet"})
	f.handleCommand(command{Type: "reset"})
	f.handleCommand(command{Type: "stop"})

	assert.Eventually(t, func() bool {
		controls.mu.Lock()
		defer controls.mu.Unlock()
		return controls.toggles == 1 && len(controls.sent) == 1 &&
			controls.greets == 1 && controls.resets == 1 && controls.stops == 1
	}, time.Second, 10*time.Millisecond)

	controls.mu.Lock()
	assert.Equal(t, "hello", controls.sent[0])
	controls.mu.Unlock()
}

func TestFeedbackRequiresActiveSession(t *testing.T) {
	sink := &fakeFeedbackSink{}
	f := New(zerolog.Nop(), bus.New(), nil, &fakeControls{}, fakeSessionSource{id: ""}, sink, nil)

	f.handleCommand(command{Type: "feedback", Rating: 4})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.received, "feedback without a session is dropped")
}

func TestFeedbackForwardedWithSession(t *testing.T) {
	sink := &fakeFeedbackSink{}
	f := New(zerolog.Nop(), bus.New(), nil, &fakeControls{}, fakeSessionSource{id: "sess-9"}, sink, nil)

	f.handleCommand(command{Type: "feedback", Rating: 5, Label: "great"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.received, 1)
	assert.Equal(t, "sess-9", sink.received[0].SessionID)
	assert.Equal(t, 5, sink.received[0].Rating)
	assert.Equal(t, "great", sink.received[0].Label)
}

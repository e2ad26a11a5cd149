package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kioskguide/internal/history"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	return New(zerolog.Nop(), cfg)
}

func TestNewSession(t *testing.T) {
	var captured sessionRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/session/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"ok":true,"session_id":"sess-123"}`))
	})

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "hello", Timestamp: "2026-08-29T10:00:00+08:00"},
		{Role: history.RoleAssistant, Content: "hi!", Timestamp: "2026-08-29T10:00:02+08:00"},
	}
	id, err := c.NewSession(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", id)

	require.Len(t, captured.ChatData, 2)
	assert.Equal(t, "hello", captured.ChatData[0].Content)
}

func TestNewSessionRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false}`))
	})

	_, err := c.NewSession(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewSessionTransportFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.NewSession(context.Background(), nil)
	assert.Error(t, err)
}

func TestSubmitFeedback(t *testing.T) {
	var captured feedbackRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rating", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"ok":true}`))
	})

	err := c.SubmitFeedback(context.Background(), Feedback{
		SessionID: "sess-123",
		Rating:    5,
		Label:     "helpful",
	})
	require.NoError(t, err)

	assert.Equal(t, "hologram", captured.Type)
	assert.Equal(t, "sess-123", captured.SessionID)
	assert.Equal(t, 5, captured.Rating)
	assert.Equal(t, "helpful", captured.Label)
	assert.Equal(t, "kiosk", captured.Source, "source defaults to kiosk")
}

func TestSubmitFeedbackFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	err := c.SubmitFeedback(context.Background(), Feedback{SessionID: "sess-1", Rating: 1})
	assert.Error(t, err)
}

// Package backend is the JSON-over-HTTP client for the kiosk session and
// feedback service. Failures are logged, never retried, and never fatal to
// the conversation pipeline.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/history"
)

// Client talks to the session/feedback backend.
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// Config holds backend client configuration
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:3000",
		Timeout: 15 * time.Second,
	}
}

// New creates a backend client.
func New(logger zerolog.Logger, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  logger.With().Str("component", "backend").Logger(),
	}
}

type sessionRequest struct {
	ChatData []history.Turn `json:"chat_data"`
}

type sessionResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
}

// NewSession asks the backend to mint a session for the given transcript.
func (c *Client) NewSession(ctx context.Context, turns []history.Turn) (string, error) {
	body, err := json.Marshal(sessionRequest{ChatData: turns})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("session generate failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !parsed.OK || parsed.SessionID == "" {
		return "", fmt.Errorf("session generate rejected")
	}

	c.logger.Info().Str("sessionId", parsed.SessionID).Msg("Session generated")
	return parsed.SessionID, nil
}

// Feedback is one visitor rating for a session.
type Feedback struct {
	SessionID string
	Rating    int
	Label     string
	Source    string
}

type feedbackRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Label     string `json:"label,omitempty"`
	Source    string `json:"source"`
}

// SubmitFeedback posts a visitor rating. Field names match the existing
// backend contract.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) error {
	source := fb.Source
	if source == "" {
		source = "kiosk"
	}

	body, err := json.Marshal(feedbackRequest{
		Type:      "hologram",
		SessionID: fb.SessionID,
		Rating:    fb.Rating,
		Label:     fb.Label,
		Source:    source,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rating", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	c.logger.Info().Str("sessionId", fb.SessionID).Int("rating", fb.Rating).Msg("Feedback submitted")
	return nil
}

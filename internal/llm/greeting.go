package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const openAIBaseURL = "https://api.openai.com"

// FallbackGreeting is used when the greeting model returns no text.
const FallbackGreeting = "Hello! It's great to see you!"

const (
	greetingSystemPrompt = "You are a friendly AI tour guide at the Singapore Science Centre. Generate a short, natural greeting (1-2 sentences max). Make your greetings witty and comical."
	greetingUserPrompt   = "Someone just appeared in front of you. Greet them with a science joke or quip, direct them to press the green microphone button to talk to you, and scan the QR code that will appear shortly to bring you around the Science Centre on their mobile phones."
)

// GreeterConfig holds greeting-generator configuration.
type GreeterConfig struct {
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	BaseURL     string        `json:"base_url,omitempty"` // Overridable for tests
}

// DefaultGreeterConfig returns sensible defaults.
func DefaultGreeterConfig() *GreeterConfig {
	return &GreeterConfig{
		Model:       "gpt-4o-mini",
		MaxTokens:   150,
		Temperature: 0.8,
		Timeout:     15 * time.Second,
	}
}

// Greeter generates the short hello spoken when the camera sees a visitor.
type Greeter struct {
	config *GreeterConfig
	client *http.Client
	logger zerolog.Logger
}

// NewGreeter creates a greeting generator.
func NewGreeter(logger zerolog.Logger, config *GreeterConfig) *Greeter {
	if config == nil {
		config = DefaultGreeterConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = openAIBaseURL
	}

	return &Greeter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("provider", "openai-greeting").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Greet returns a freshly generated greeting line.
func (g *Greeter) Greet(ctx context.Context) (string, error) {
	if g.config.APIKey == "" {
		return "", fmt.Errorf("greeting API key not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: greetingSystemPrompt},
			{Role: "user", Content: greetingUserPrompt},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := g.config.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &GenerationError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		g.logger.Warn().Err(err).Msg("Unparseable greeting payload, using fallback greeting")
		return FallbackGreeting, nil
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return FallbackGreeting, nil
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Package llm provides the remote language-model clients for the kiosk guide:
// the Gemini response generator for conversation turns and the OpenAI
// greeting generator for camera-triggered hellos.
package llm

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

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// FallbackResponse is spoken when the model returns a payload with no usable
// text. Returning something is deliberate; the kiosk must always answer.
const FallbackResponse = "I'm having trouble generating a response right now. Could you try rephrasing your question?"

// GenerationError reports a failed transport round-trip to the model.
type GenerationError struct {
	Status int
	Body   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: status=%d body=%s", e.Status, e.Body)
}

// GeminiConfig holds response-generator configuration.
type GeminiConfig struct {
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	BaseURL     string        `json:"base_url,omitempty"` // Overridable for tests
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		Model:       "gemini-2.0-flash",
		MaxTokens:   350,
		Temperature: 0.6,
		Timeout:     30 * time.Second,
	}
}

// GeminiClient generates assistant responses from conversation history.
type GeminiClient struct {
	config *GeminiConfig
	client *http.Client
	logger zerolog.Logger
}

// NewGeminiClient creates a Gemini response generator.
func NewGeminiClient(logger zerolog.Logger, config *GeminiConfig) *GeminiClient {
	if config == nil {
		config = DefaultGeminiConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = geminiBaseURL
	}

	return &GeminiClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("provider", "gemini").Logger(),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig       `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate calls the model with the full non-system history and the system
// instruction. Transport failures return a *GenerationError; a successful
// round-trip with no parseable text returns FallbackResponse and no error.
func (c *GeminiClient) Generate(ctx context.Context, turns []history.Turn, systemPrompt string) (string, error) {
	contents := make([]geminiContent, 0, len(turns))
	for _, t := range turns {
		if t.Role == history.RoleSystem {
			continue
		}
		role := "user"
		if t.Role == history.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: t.Content}},
		})
	}

	reqBody := geminiRequest{
		Contents: contents,
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: c.config.MaxTokens,
			Temperature:     c.config.Temperature,
		},
		SafetySettings: []geminiSafetySetting{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.config.BaseURL, c.config.Model, c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug().
		Str("model", c.config.Model).
		Int("turns", len(contents)).
		Msg("Sending generation request")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("Generation request failed")
		return "", &GenerationError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn().Err(err).Msg("Unparseable generation payload, using fallback text")
		return FallbackResponse, nil
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == "" {
		c.logger.Warn().Msg("No text in generation payload, using fallback text")
		return FallbackResponse, nil
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

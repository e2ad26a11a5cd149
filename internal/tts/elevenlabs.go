package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// ElevenLabsProvider implements the primary remote neural TTS path.
type ElevenLabsProvider struct {
	apiKey string
	logger zerolog.Logger
	config *ElevenLabsConfig
	client *http.Client
}

// ElevenLabsConfig holds ElevenLabs TTS configuration
type ElevenLabsConfig struct {
	APIKey          string        `json:"api_key"`
	VoiceID         string        `json:"voice_id"`
	ModelID         string        `json:"model_id"`
	Stability       float64       `json:"stability"`
	SimilarityBoost float64       `json:"similarity_boost"`
	Timeout         time.Duration `json:"timeout"`
	BaseURL         string        `json:"base_url,omitempty"` // Overridable for tests
}

// DefaultElevenLabsConfig returns sensible defaults
func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		ModelID:         "eleven_monolingual_v1",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Timeout:         30 * time.Second,
	}
}

// NewElevenLabsProvider creates the remote TTS provider.
func NewElevenLabsProvider(logger zerolog.Logger, config *ElevenLabsConfig) *ElevenLabsProvider {
	if config == nil {
		config = DefaultElevenLabsConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = elevenLabsBaseURL
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		apiKey: apiKey,
		logger: logger.With().Str("provider", "elevenlabs-tts").Logger(),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider identifier
func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// IsAvailable reports whether both API key and voice are configured.
func (p *ElevenLabsProvider) IsAvailable() bool {
	return p.apiKey != "" && p.config.VoiceID != ""
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to MP3 audio. An empty audio payload is treated
// as a failure so the caller falls back to on-device synthesis.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, ErrProviderUnavailable
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.VoiceID
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: p.config.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       p.config.Stability,
			SimilarityBoost: p.config.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", p.config.BaseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	p.logger.Debug().
		Str("voice", voiceID).
		Int("textLen", len(req.Text)).
		Msg("Sending TTS request to ElevenLabs")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("ElevenLabs TTS request failed")
		return nil, fmt.Errorf("ElevenLabs TTS error: %d %s", resp.StatusCode, string(respBody))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("ElevenLabs TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		ProcessingTime: processingTime,
		Provider:       p.Name(),
	}, nil
}

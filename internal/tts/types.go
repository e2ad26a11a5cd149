// Package tts provides text-to-speech synthesis for the kiosk guide.
// The primary path is a remote neural voice; an on-device synthesizer is
// the transparent fallback when the remote path is unconfigured or fails.
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyAudio          = errors.New("empty audio payload")
)

// Provider is the interface remote TTS providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "elevenlabs")
	Name() string

	// IsAvailable reports whether the provider is configured and usable
	IsAvailable() bool

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"`
	ProcessingTime time.Duration `json:"processing_time"`
	Provider       string        `json:"provider"`
}

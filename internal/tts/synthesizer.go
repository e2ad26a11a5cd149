package tts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/audio"
)

// FallbackSpeaker is the on-device path tried when the primary fails.
type FallbackSpeaker interface {
	Name() string
	IsAvailable() bool
	Speak(ctx context.Context, text string) (audio.Playback, error)
}

// Synthesizer chains the remote provider with the on-device fallback.
// Callers get a playback handle either way and cannot tell which path
// produced the audio.
type Synthesizer struct {
	primary  Provider
	fallback FallbackSpeaker
	player   audio.Player
	logger   zerolog.Logger
}

// NewSynthesizer composes the primary provider, fallback speaker and player.
func NewSynthesizer(logger zerolog.Logger, primary Provider, fallback FallbackSpeaker, player audio.Player) *Synthesizer {
	return &Synthesizer{
		primary:  primary,
		fallback: fallback,
		player:   player,
		logger:   logger.With().Str("component", "synthesizer").Logger(),
	}
}

// Speak voices the text. The remote provider is preferred; any failure
// there (missing configuration, transport error, empty payload, playback
// start error) silently drops to the on-device synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, text string) (audio.Playback, error) {
	if s.primary != nil && s.primary.IsAvailable() {
		resp, err := s.primary.Synthesize(ctx, &SynthesizeRequest{Text: text})
		if err == nil {
			pb, playErr := s.player.Play(ctx, resp.Audio, resp.Format)
			if playErr == nil {
				return pb, nil
			}
			s.logger.Warn().Err(playErr).Msg("Playback failed, falling back to on-device synthesizer")
		} else {
			s.logger.Warn().Err(err).Str("provider", s.primary.Name()).Msg("Remote synthesis failed, falling back to on-device synthesizer")
		}
	} else {
		s.logger.Debug().Msg("Remote TTS not configured, using on-device synthesizer")
	}

	if s.fallback == nil {
		return nil, ErrProviderUnavailable
	}
	return s.fallback.Speak(ctx, text)
}

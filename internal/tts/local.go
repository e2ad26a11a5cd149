package tts

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/audio"
)

// LocalConfig holds on-device synthesizer settings. Rate, pitch and volume
// are fixed for the kiosk voice.
type LocalConfig struct {
	Rate   float64 `json:"rate"`   // 1.0 = natural speed
	Pitch  float64 `json:"pitch"`  // 1.0 = natural pitch
	Volume float64 `json:"volume"` // 0.0 - 1.0
}

// DefaultLocalConfig returns the fixed kiosk fallback voice settings.
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Rate:   0.9,
		Pitch:  1.0,
		Volume: 0.8,
	}
}

// LocalSpeaker speaks text directly through the host TTS command
// ('say' on macOS, 'espeak'/'espeak-ng' elsewhere). Unlike remote
// providers it produces audible output itself rather than audio bytes.
type LocalSpeaker struct {
	logger zerolog.Logger
	config *LocalConfig
}

// NewLocalSpeaker creates the on-device fallback synthesizer.
func NewLocalSpeaker(logger zerolog.Logger, config *LocalConfig) *LocalSpeaker {
	if config == nil {
		config = DefaultLocalConfig()
	}
	return &LocalSpeaker{
		logger: logger.With().Str("provider", "local-tts").Logger(),
		config: config,
	}
}

// Name returns the provider identifier
func (s *LocalSpeaker) Name() string {
	return "local"
}

func (s *LocalSpeaker) lookPath() (string, bool) {
	candidates := []string{"espeak-ng", "espeak"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say", "espeak-ng", "espeak"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// IsAvailable reports whether a host TTS command exists.
func (s *LocalSpeaker) IsAvailable() bool {
	_, ok := s.lookPath()
	return ok
}

// Speak voices the text and returns a playback handle whose Done channel
// closes when the utterance ends or is stopped.
func (s *LocalSpeaker) Speak(ctx context.Context, text string) (audio.Playback, error) {
	bin, ok := s.lookPath()
	if !ok {
		return nil, ErrProviderUnavailable
	}

	var args []string
	switch {
	case runtime.GOOS == "darwin" && bin != "":
		// say rate is words per minute; 175 wpm is natural
		args = []string{"-r", strconv.Itoa(int(175 * s.config.Rate)), text}
	default:
		// espeak: -s speed (wpm), -p pitch (0-99), -a amplitude (0-200)
		args = []string{
			"-s", strconv.Itoa(int(175 * s.config.Rate)),
			"-p", strconv.Itoa(int(50 * s.config.Pitch)),
			"-a", strconv.Itoa(int(200 * s.config.Volume)),
			text,
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start local synthesizer: %w", err)
	}

	s.logger.Info().Str("bin", bin).Int("textLen", len(text)).Msg("Speaking via on-device synthesizer")

	h := audio.NewHandle(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	go func() {
		h.Finish(cmd.Wait())
	}()
	return h, nil
}

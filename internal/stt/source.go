package stt

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Source wraps a Recognizer with the push-to-talk state the engine needs:
// an idle/listening flag, duplicate Start/Stop suppression, and filler-word
// filtering of final transcripts.
type Source struct {
	rec    Recognizer
	filter *TranscriptFilter
	logger zerolog.Logger

	mu        sync.Mutex
	listening bool
}

// NewSource creates a transcription source around the injected recognizer.
func NewSource(logger zerolog.Logger, rec Recognizer) *Source {
	if rec == nil {
		rec = Unavailable{}
	}
	return &Source{
		rec:    rec,
		filter: NewTranscriptFilter(nil),
		logger: logger.With().Str("component", "stt").Logger(),
	}
}

// Available reports whether speech capture is possible at all.
func (s *Source) Available() bool {
	return s.rec.Available()
}

// IsListening reports whether a capture session is active.
func (s *Source) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Start begins a capture session. A Start while already listening is a
// no-op. The wrapped handlers always see the listening flag cleared before
// they run, and final transcripts arrive filler-filtered.
func (s *Source) Start(ctx context.Context, h Handlers) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.listening = true
	s.mu.Unlock()

	wrapped := Handlers{
		OnResult: func(text string) {
			s.setListening(false)
			if h.OnResult != nil {
				h.OnResult(s.filter.Filter(text))
			}
		},
		OnError: func(err error) {
			s.setListening(false)
			if h.OnError != nil {
				h.OnError(err)
			}
		},
		OnEnd: func() {
			s.setListening(false)
			if h.OnEnd != nil {
				h.OnEnd()
			}
		},
	}

	if err := s.rec.Start(ctx, wrapped); err != nil {
		s.setListening(false)
		return err
	}
	return nil
}

// Stop ends the capture session; a Stop while idle is a no-op.
func (s *Source) Stop() {
	s.mu.Lock()
	wasListening := s.listening
	s.listening = false
	s.mu.Unlock()

	if wasListening {
		s.rec.Stop()
	}
}

func (s *Source) setListening(v bool) {
	s.mu.Lock()
	s.listening = v
	s.mu.Unlock()
}

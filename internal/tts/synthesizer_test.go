package tts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kioskguide/internal/audio"
)

type stubProvider struct {
	available bool
	resp      *SynthesizeResponse
	err       error
	calls     int
}

func (p *stubProvider) Name() string      { return "stub" }
func (p *stubProvider) IsAvailable() bool { return p.available }

func (p *stubProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	p.calls++
	return p.resp, p.err
}

type stubFallback struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (f *stubFallback) Name() string      { return "stub-local" }
func (f *stubFallback) IsAvailable() bool { return true }

func (f *stubFallback) Speak(ctx context.Context, text string) (audio.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.spoken = append(f.spoken, text)
	h := audio.NewHandle(nil)
	h.Finish(nil)
	return h, nil
}

func TestSpeakPrefersPrimaryProvider(t *testing.T) {
	primary := &stubProvider{
		available: true,
		resp:      &SynthesizeResponse{Audio: []byte("mp3"), Format: "mp3"},
	}
	fallback := &stubFallback{}
	s := NewSynthesizer(zerolog.Nop(), primary, fallback, &audio.NullPlayer{})

	pb, err := s.Speak(context.Background(), "hello")
	require.NoError(t, err)
	<-pb.Done()

	assert.Equal(t, 1, primary.calls)
	assert.Empty(t, fallback.spoken, "fallback untouched when primary works")
}

func TestSpeakFallsBackOnSynthesisError(t *testing.T) {
	primary := &stubProvider{available: true, err: errors.New("api down")}
	fallback := &stubFallback{}
	s := NewSynthesizer(zerolog.Nop(), primary, fallback, &audio.NullPlayer{})

	pb, err := s.Speak(context.Background(), "hello")
	require.NoError(t, err)
	<-pb.Done()

	assert.Equal(t, []string{"hello"}, fallback.spoken)
}

func TestSpeakFallsBackWhenPrimaryUnconfigured(t *testing.T) {
	primary := &stubProvider{available: false}
	fallback := &stubFallback{}
	s := NewSynthesizer(zerolog.Nop(), primary, fallback, &audio.NullPlayer{})

	pb, err := s.Speak(context.Background(), "hello")
	require.NoError(t, err)
	<-pb.Done()

	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, []string{"hello"}, fallback.spoken)
}

type failingPlayer struct{}

func (failingPlayer) Play(ctx context.Context, data []byte, format string) (audio.Playback, error) {
	return nil, errors.New("no output device")
}

func TestSpeakFallsBackOnPlaybackError(t *testing.T) {
	primary := &stubProvider{
		available: true,
		resp:      &SynthesizeResponse{Audio: []byte("mp3"), Format: "mp3"},
	}
	fallback := &stubFallback{}
	s := NewSynthesizer(zerolog.Nop(), primary, fallback, failingPlayer{})

	pb, err := s.Speak(context.Background(), "hello")
	require.NoError(t, err)
	<-pb.Done()

	assert.Equal(t, []string{"hello"}, fallback.spoken)
}

func TestSpeakErrorsWithNoPathAtAll(t *testing.T) {
	primary := &stubProvider{available: false}
	s := NewSynthesizer(zerolog.Nop(), primary, nil, &audio.NullPlayer{})

	_, err := s.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

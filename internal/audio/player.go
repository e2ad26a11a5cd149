// Package audio provides playback of synthesized speech. One utterance is
// audible at a time; the engine replaces the current playback wholesale and
// force-stops it on teardown.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrNoPlayer indicates no audio player binary could be found on the host.
var ErrNoPlayer = errors.New("no audio player available")

// Playback is a single in-flight utterance. Done is closed exactly once when
// the audio finishes, fails, or is stopped.
type Playback interface {
	Done() <-chan struct{}
	Stop()
	Err() error
}

// Player turns synthesized audio bytes into audible output.
type Player interface {
	Play(ctx context.Context, data []byte, format string) (Playback, error)
}

// Handle is the concrete Playback used by players and the local synthesizer.
type Handle struct {
	done   chan struct{}
	once   sync.Once
	stopFn func()

	mu  sync.Mutex
	err error
}

// NewHandle creates a Handle whose Stop invokes stopFn.
func NewHandle(stopFn func()) *Handle {
	return &Handle{
		done:   make(chan struct{}),
		stopFn: stopFn,
	}
}

// Done reports playback completion.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finish marks playback complete. Safe to call more than once; only the
// first call takes effect.
func (h *Handle) Finish(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

// Stop tears the playback down. Idempotent.
func (h *Handle) Stop() {
	if h.stopFn != nil {
		h.stopFn()
	}
	h.Finish(nil)
}

// Err returns the playback error, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// commandCandidates are tried in order when locating a player binary.
var commandCandidates = []string{"afplay", "mpg123", "ffplay", "mplayer"}

// CommandPlayer plays audio through a host media player binary.
type CommandPlayer struct{}

// NewCommandPlayer returns a player backed by the first available host binary.
func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{}
}

func findPlayer() (string, []string, error) {
	for _, name := range commandCandidates {
		if path, err := exec.LookPath(name); err == nil {
			switch name {
			case "ffplay":
				return path, []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}, nil
			case "mpg123":
				return path, []string{"-q"}, nil
			default:
				return path, nil, nil
			}
		}
	}
	return "", nil, ErrNoPlayer
}

// Play writes data to a temp file and plays it with the host binary.
func (p *CommandPlayer) Play(ctx context.Context, data []byte, format string) (Playback, error) {
	bin, args, err := findPlayer()
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "kioskguide-*."+format)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write audio: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, bin, append(args, tmpPath)...)
	if err := cmd.Start(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("start player: %w", err)
	}

	h := NewHandle(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	go func() {
		err := cmd.Wait()
		os.Remove(tmpPath)
		h.Finish(err)
	}()
	return h, nil
}

// NullPlayer discards audio and completes after a fixed delay. Used in tests
// and headless setups.
type NullPlayer struct {
	Delay time.Duration
}

// Play returns a playback that finishes after the configured delay.
func (p *NullPlayer) Play(ctx context.Context, data []byte, format string) (Playback, error) {
	h := NewHandle(nil)
	if p.Delay <= 0 {
		h.Finish(nil)
		return h, nil
	}
	timer := time.AfterFunc(p.Delay, func() { h.Finish(nil) })
	go func() {
		select {
		case <-ctx.Done():
			timer.Stop()
			h.Finish(ctx.Err())
		case <-h.Done():
		}
	}()
	return h, nil
}

// Package stt provides push-to-talk speech recognition for the kiosk guide.
// The recognition capability is injected at construction; when absent the
// engine degrades to text-only input.
package stt

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the recognition capability is absent.
var ErrUnavailable = errors.New("speech recognition unavailable")

// Handlers receive the outcome of one capture session. OnResult carries the
// final transcript (no interim partials). OnEnd fires when the session
// closes without a result; OnError on a recoverable recognition failure.
type Handlers struct {
	OnResult func(text string)
	OnError  func(err error)
	OnEnd    func()
}

// Recognizer is the injected speech-recognition capability. One capture
// session runs at a time; Start during an active session and Stop without
// one are no-ops at the Source level.
type Recognizer interface {
	// Name returns the recognizer identifier
	Name() string

	// Available reports whether the capability can capture at all
	Available() bool

	// Start begins a capture session; handler callbacks fire on an
	// internal goroutine
	Start(ctx context.Context, h Handlers) error

	// Stop ends the active capture session, if any
	Stop()
}

// Unavailable is the explicit absent-capability variant. The engine treats
// it as "text input only" rather than an error.
type Unavailable struct{}

// Name returns the recognizer identifier
func (Unavailable) Name() string { return "unavailable" }

// Available always reports false
func (Unavailable) Available() bool { return false }

// Start always fails with ErrUnavailable
func (Unavailable) Start(ctx context.Context, h Handlers) error { return ErrUnavailable }

// Stop is a no-op
func (Unavailable) Stop() {}

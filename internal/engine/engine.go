// Package engine orchestrates the kiosk conversation pipeline: capture a
// transcript, generate a reply, voice it, and drive the avatar mouth while
// it plays. One pipeline runs at a time; input during an active run is
// dropped, never queued.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/audio"
	"github.com/normanking/kioskguide/internal/bus"
	"github.com/normanking/kioskguide/internal/history"
	"github.com/normanking/kioskguide/internal/llm"
	"github.com/normanking/kioskguide/internal/stt"
	"github.com/normanking/kioskguide/internal/viseme"
)

// Spoken instead of a reply when generation fails outright.
const apologyLine = "I'm having technical difficulties. Could you please try again?"

// ResponseGenerator produces the assistant reply for a transcript.
type ResponseGenerator interface {
	Generate(ctx context.Context, turns []history.Turn, systemPrompt string) (string, error)
}

// GreetingGenerator produces the short presence-triggered hello.
type GreetingGenerator interface {
	Greet(ctx context.Context) (string, error)
}

// Speaker voices text and returns a playback handle.
type Speaker interface {
	Speak(ctx context.Context, text string) (audio.Playback, error)
}

// SessionClient mints backend sessions from a transcript.
type SessionClient interface {
	NewSession(ctx context.Context, turns []history.Turn) (string, error)
}

// DocumentSource supplies the knowledge document for the system prompt.
type DocumentSource interface {
	Content() string
}

// Transcriber is the push-to-talk capture source.
type Transcriber interface {
	Available() bool
	IsListening() bool
	Start(ctx context.Context, h stt.Handlers) error
	Stop()
}

// Components are the engine's injected collaborators. Generator and Speaker
// are required; the rest may be nil and their feature degrades quietly.
type Components struct {
	Generator   ResponseGenerator
	Greeter     GreetingGenerator
	Speaker     Speaker
	Visemes     *viseme.Driver
	Sessions    SessionClient
	Document    DocumentSource
	Transcriber Transcriber

	// TimelineLipSync switches the mouth signal from the coarse alternation
	// to a text-derived viseme timeline.
	TimelineLipSync bool
}

// Engine is the conversation orchestrator.
type Engine struct {
	logger   zerolog.Logger
	eventBus *bus.EventBus
	history  *history.History
	gate     *Gate

	generator       ResponseGenerator
	greeter         GreetingGenerator
	speaker         Speaker
	visemes         *viseme.Driver
	timelineLipSync bool
	sessions        SessionClient
	document        DocumentSource
	transcriber     Transcriber

	// epoch fences asynchronous completions: Stop and every pipeline start
	// bump it, and a finishing run may only release the gate if the epoch
	// it started under is still current.
	epoch atomic.Uint64

	mu       sync.Mutex
	playback audio.Playback
}

// New creates the engine and wires the session-threshold trigger.
func New(logger zerolog.Logger, eventBus *bus.EventBus, hist *history.History, c Components) *Engine {
	e := &Engine{
		logger:      logger.With().Str("component", "engine").Logger(),
		eventBus:    eventBus,
		history:     hist,
		gate:        NewGate(),
		generator:       c.Generator,
		greeter:         c.Greeter,
		speaker:         c.Speaker,
		visemes:         c.Visemes,
		timelineLipSync: c.TimelineLipSync,
		sessions:        c.Sessions,
		document:        c.Document,
		transcriber:     c.Transcriber,
	}

	hist.SetOnSessionNeeded(e.createSession)
	return e
}

// State returns the current interaction state.
func (e *Engine) State() GateSnapshot {
	return e.gate.Snapshot()
}

// CanTrigger reports whether an autonomous greeting would be accepted right
// now. The presence detector asks before spending its trigger cooldown.
func (e *Engine) CanTrigger() bool {
	return e.gate.CanTrigger()
}

// ToggleListening starts or stops the push-to-talk capture session. A final
// transcript feeds straight into SendText; toggling while a pipeline is
// active is dropped.
func (e *Engine) ToggleListening(ctx context.Context) error {
	if e.transcriber == nil || !e.transcriber.Available() {
		return stt.ErrUnavailable
	}

	if e.transcriber.IsListening() {
		e.transcriber.Stop()
		e.gate.SetListening(false)
		e.publishState()
		return nil
	}

	if !e.gate.SetListening(true) {
		e.logger.Debug().Msg("Listen request dropped, pipeline active")
		return nil
	}
	e.publishState()

	err := e.transcriber.Start(ctx, stt.Handlers{
		OnResult: func(text string) {
			if strings.TrimSpace(text) == "" {
				e.gate.SetListening(false)
				e.publishState()
				return
			}
			_ = e.SendText(context.Background(), text)
		},
		OnError: func(err error) {
			e.logger.Warn().Err(err).Msg("Speech capture failed")
			e.gate.SetListening(false)
			e.gate.SetError("Error: " + err.Error())
			e.publishError("stt", err)
			e.publishState()
		},
		OnEnd: func() {
			e.gate.SetListening(false)
			e.publishState()
		},
	})
	if err != nil {
		e.gate.SetListening(false)
		e.publishState()
		return err
	}
	return nil
}

// SendText runs the full pipeline for one user utterance, synchronously:
// record the turn, generate a reply, voice it, and return once playback
// ends. Empty input and input during an active pipeline are dropped.
func (e *Engine) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if !e.gate.TryStartPipeline() {
		e.logger.Info().Msg("Input dropped, pipeline active")
		return nil
	}
	epoch := e.epoch.Add(1)
	defer e.finish(epoch)

	runLog := e.logger.With().Str("runId", uuid.NewString()).Logger()
	runLog.Info().Str("text", text).Msg("Pipeline started")
	e.publishState()

	if e.history.AddTurn(history.RoleUser, text) {
		runLog.Info().Msg("Conversation expired, starting fresh")
	}
	e.publishConversation()

	reply, genErr := e.generator.Generate(ctx, e.history.Turns(), e.systemPrompt())
	if genErr != nil {
		runLog.Error().Err(genErr).Msg("Response generation failed")
		e.publishError("generate", genErr)
		reply = apologyLine
	}

	e.history.AddTurn(history.RoleAssistant, reply)
	e.publishConversation()

	e.speak(ctx, epoch, runLog, reply)
	if genErr != nil {
		e.gate.SetError(StatusErrorRetry)
	}
	return nil
}

// SpeakGreeting voices a presence-triggered hello. Refused while listening
// or while a pipeline is active; the greeting is spoken but never recorded
// in the conversation log.
func (e *Engine) SpeakGreeting(ctx context.Context) error {
	if !e.gate.TryStartGreeting() {
		e.logger.Debug().Msg("Greeting dropped, conversation active")
		return nil
	}
	epoch := e.epoch.Add(1)
	defer e.finish(epoch)

	runLog := e.logger.With().Str("runId", uuid.NewString()).Logger()
	e.publishState()

	greeting := llm.FallbackGreeting
	if e.greeter != nil {
		if generated, err := e.greeter.Greet(ctx); err != nil {
			runLog.Warn().Err(err).Msg("Greeting generation failed, using fallback greeting")
		} else {
			greeting = generated
		}
	}

	e.speak(ctx, epoch, runLog, greeting)
	return nil
}

// Stop tears everything down and forces idle. Idempotent; safe to call with
// no pipeline active.
func (e *Engine) Stop() {
	e.epoch.Add(1)

	if e.transcriber != nil {
		e.transcriber.Stop()
	}
	if pb := e.takePlayback(); pb != nil {
		pb.Stop()
	}
	if e.visemes != nil {
		e.visemes.Stop()
	}

	e.gate.ForceIdle()
	e.publishState()
}

// ResetConversation clears the transcript and session.
func (e *Engine) ResetConversation() {
	e.history.Reset()
	e.publishConversation()
	e.publishState()
}

// speak voices text and blocks until playback completes or ctx is cancelled.
func (e *Engine) speak(ctx context.Context, epoch uint64, runLog zerolog.Logger, text string) {
	spoken := SanitizeForSpeech(text)
	if spoken == "" {
		return
	}

	// A Stop that landed during generation already won; stay silent.
	if e.epoch.Load() != epoch {
		runLog.Debug().Msg("Pipeline superseded before speech, skipping")
		return
	}

	e.gate.SetSpeaking()
	e.publishState()

	pb, err := e.speaker.Speak(ctx, spoken)
	if err != nil {
		runLog.Error().Err(err).Msg("Speech synthesis failed")
		e.publishError("speak", err)
		return
	}
	e.setPlayback(pb)

	if e.visemes != nil {
		if e.timelineLipSync {
			e.visemes.TrackTimeline(pb, viseme.TimelineFromText(spoken, 0))
		} else {
			e.visemes.Track(pb)
		}
	}

	select {
	case <-pb.Done():
		if err := pb.Err(); err != nil {
			runLog.Warn().Err(err).Msg("Playback ended with error")
		}
	case <-ctx.Done():
		pb.Stop()
	}
	e.clearPlayback(pb)

	if e.epoch.Load() != epoch {
		runLog.Debug().Msg("Stale playback completion ignored")
	}
}

// finish releases the gate unless a Stop or newer pipeline superseded this
// run while it was in flight.
func (e *Engine) finish(epoch uint64) {
	if e.epoch.Load() != epoch {
		return
	}
	e.gate.FinishPipeline()
	e.publishState()
}

// createSession runs on its own goroutine when the turn count crosses the
// threshold. Failure releases the latch; the next qualifying turn retries.
func (e *Engine) createSession(turns []history.Turn) {
	if e.sessions == nil {
		e.history.SessionFailed()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := e.sessions.NewSession(ctx, turns)
	if err != nil {
		e.logger.Error().Err(err).Msg("Session creation failed")
		e.history.SessionFailed()
		e.publishError("session", err)
		return
	}

	e.history.SetSessionID(id)
	if e.eventBus != nil {
		e.eventBus.Publish(bus.SessionCreated{SessionID: id})
	}
	e.publishState()
	e.publishConversation()
}

func (e *Engine) systemPrompt() string {
	doc := ""
	if e.document != nil {
		doc = e.document.Content()
	}
	return llm.BuildSystemPrompt(doc)
}

func (e *Engine) publishState() {
	if e.eventBus == nil {
		return
	}
	snap := e.gate.Snapshot()
	e.eventBus.Publish(bus.StateChanged{
		IsListening:  snap.IsListening,
		IsProcessing: snap.IsProcessing,
		Status:       snap.Status,
		SessionID:    e.history.SessionID(),
	})
}

func (e *Engine) publishConversation() {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(bus.ConversationChanged{Snapshot: e.history.Snapshot()})
}

func (e *Engine) publishError(stage string, err error) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(bus.PipelineError{Stage: stage, Err: err})
}

func (e *Engine) setPlayback(pb audio.Playback) {
	e.mu.Lock()
	e.playback = pb
	e.mu.Unlock()
}

func (e *Engine) clearPlayback(pb audio.Playback) {
	e.mu.Lock()
	if e.playback == pb {
		e.playback = nil
	}
	e.mu.Unlock()
}

func (e *Engine) takePlayback() audio.Playback {
	e.mu.Lock()
	pb := e.playback
	e.playback = nil
	e.mu.Unlock()
	return pb
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kioskguide/internal/audio"
	"github.com/normanking/kioskguide/internal/bus"
	"github.com/normanking/kioskguide/internal/history"
	"github.com/normanking/kioskguide/internal/stt"
	"github.com/normanking/kioskguide/internal/viseme"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, turns []history.Turn, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

// blockingGenerator parks inside Generate until released, so tests can land
// a Stop mid-generation.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	reply   string
}

func newBlockingGenerator(reply string) *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{}), release: make(chan struct{}), reply: reply}
}

func (g *blockingGenerator) Generate(ctx context.Context, turns []history.Turn, systemPrompt string) (string, error) {
	close(g.started)
	<-g.release
	return g.reply, nil
}

type fakeGreeter struct {
	mu       sync.Mutex
	greeting string
	err      error
	calls    int
}

func (g *fakeGreeter) Greet(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.greeting, g.err
}

// fakeSpeaker records spoken text. With auto set, playback completes
// immediately; otherwise each handle is delivered on handles for the test to
// finish by hand.
type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	auto    bool
	handles chan *audio.Handle
}

func newFakeSpeaker(auto bool) *fakeSpeaker {
	return &fakeSpeaker{auto: auto, handles: make(chan *audio.Handle, 4)}
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) (audio.Playback, error) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()

	h := audio.NewHandle(nil)
	if s.auto {
		h.Finish(nil)
	} else {
		s.handles <- h
	}
	return h, nil
}

func (s *fakeSpeaker) spokenText() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

type fakeSessions struct {
	mu    sync.Mutex
	id    string
	err   error
	calls int
}

func (f *fakeSessions) NewSession(ctx context.Context, turns []history.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.id, f.err
}

type fakeTranscriber struct {
	mu        sync.Mutex
	available bool
	listening bool
	handlers  stt.Handlers
}

func (f *fakeTranscriber) Available() bool { return f.available }

func (f *fakeTranscriber) IsListening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeTranscriber) Start(ctx context.Context, h stt.Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = true
	f.handlers = h
	return nil
}

func (f *fakeTranscriber) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = false
}

// recordingFace captures mouth-shape calls from the viseme driver.
type recordingFace struct {
	mu     sync.Mutex
	shapes []string
	closes int
}

func (f *recordingFace) SetViseme(name string, intensity float64) {
	f.mu.Lock()
	f.shapes = append(f.shapes, name)
	f.mu.Unlock()
}

func (f *recordingFace) CloseMouth() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

func (f *recordingFace) saw(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shapes {
		if s == name {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, c Components) (*Engine, *history.History) {
	t.Helper()
	hist := history.New(history.DefaultConfig())
	return New(zerolog.Nop(), bus.New(), hist, c), hist
}

func TestSendTextHappyPath(t *testing.T) {
	gen := &fakeGenerator{reply: "hi there"}
	spk := newFakeSpeaker(true)
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	err := eng.SendText(context.Background(), "hello")
	require.NoError(t, err)

	turns := hist.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hi there", turns[1].Content)

	assert.Equal(t, []string{"hi there"}, spk.spokenText())
	assert.Equal(t, StatusIdle, eng.State().Status, "engine returns to idle after playback")
}

func TestSendTextStripsMarkdownBeforeSpeaking(t *testing.T) {
	gen := &fakeGenerator{reply: "It is **amazing** [points at the rocket]"}
	spk := newFakeSpeaker(true)
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	require.NoError(t, eng.SendText(context.Background(), "tell me"))

	assert.Equal(t, []string{"It is amazing"}, spk.spokenText())
	// The transcript keeps the generated text as-is.
	assert.Equal(t, "It is **amazing** [points at the rocket]", hist.Turns()[1].Content)
}

func TestSendTextEmptyInputIgnored(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: newFakeSpeaker(true)})

	require.NoError(t, eng.SendText(context.Background(), "   "))
	assert.Equal(t, 0, hist.Len())
	assert.Equal(t, 0, gen.calls)
}

func TestSendTextDroppedWhileSpeaking(t *testing.T) {
	gen := &fakeGenerator{reply: "a long answer"}
	spk := newFakeSpeaker(false)
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	done := make(chan struct{})
	go func() {
		_ = eng.SendText(context.Background(), "first")
		close(done)
	}()

	// Wait until the first pipeline reaches the speaking phase.
	var h *audio.Handle
	select {
	case h = <-spk.handles:
	case <-time.After(time.Second):
		t.Fatal("first pipeline never spoke")
	}

	// Input during an active pipeline is dropped, never queued.
	require.NoError(t, eng.SendText(context.Background(), "second"))
	assert.Equal(t, 2, hist.Len(), "dropped input must not reach the transcript")
	assert.Equal(t, 1, gen.calls)

	h.Finish(nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first pipeline never finished")
	}
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestGenerationFailureSpeaksApology(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	spk := newFakeSpeaker(true)
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	require.NoError(t, eng.SendText(context.Background(), "hello"))

	turns := hist.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, apologyLine, turns[1].Content)
	assert.Equal(t, []string{apologyLine}, spk.spokenText())

	snap := eng.State()
	assert.False(t, snap.IsProcessing, "failure still releases the pipeline")
	assert.Equal(t, StatusErrorRetry, snap.Status, "failure leaves the retry prompt up")
}

func TestRecognitionErrorShowsReason(t *testing.T) {
	tr := &fakeTranscriber{available: true}
	eng, _ := newTestEngine(t, Components{
		Generator:   &fakeGenerator{},
		Speaker:     newFakeSpeaker(true),
		Transcriber: tr,
	})

	require.NoError(t, eng.ToggleListening(context.Background()))
	tr.handlers.OnError(errors.New("microphone unplugged"))

	snap := eng.State()
	assert.False(t, snap.IsListening)
	assert.Equal(t, "Error: microphone unplugged", snap.Status)
}

func TestGreetingNotRecordedInTranscript(t *testing.T) {
	spk := newFakeSpeaker(true)
	eng, hist := newTestEngine(t, Components{
		Generator: &fakeGenerator{},
		Greeter:   &fakeGreeter{greeting: "Welcome, traveler!"},
		Speaker:   spk,
	})

	require.NoError(t, eng.SpeakGreeting(context.Background()))

	assert.Equal(t, []string{"Welcome, traveler!"}, spk.spokenText())
	assert.Equal(t, 0, hist.Len())
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestGreetingFallsBackOnGeneratorError(t *testing.T) {
	spk := newFakeSpeaker(true)
	eng, _ := newTestEngine(t, Components{
		Generator: &fakeGenerator{},
		Greeter:   &fakeGreeter{err: errors.New("no key")},
		Speaker:   spk,
	})

	require.NoError(t, eng.SpeakGreeting(context.Background()))

	spoken := spk.spokenText()
	require.Len(t, spoken, 1)
	assert.Equal(t, "Hello! It's great to see you!", spoken[0])
}

func TestGreetingDroppedWhileListening(t *testing.T) {
	greeter := &fakeGreeter{greeting: "hi"}
	tr := &fakeTranscriber{available: true}
	eng, _ := newTestEngine(t, Components{
		Generator:   &fakeGenerator{},
		Greeter:     greeter,
		Speaker:     newFakeSpeaker(true),
		Transcriber: tr,
	})

	require.NoError(t, eng.ToggleListening(context.Background()))
	require.True(t, eng.State().IsListening)

	require.NoError(t, eng.SpeakGreeting(context.Background()))
	assert.Equal(t, 0, greeter.calls, "greeting must defer to an active listen")
}

func TestToggleListeningUnavailableWithoutRecognizer(t *testing.T) {
	eng, _ := newTestEngine(t, Components{Generator: &fakeGenerator{}, Speaker: newFakeSpeaker(true)})

	err := eng.ToggleListening(context.Background())
	assert.ErrorIs(t, err, stt.ErrUnavailable)
}

func TestTranscriptFeedsPipeline(t *testing.T) {
	gen := &fakeGenerator{reply: "the rocket hall is upstairs"}
	spk := newFakeSpeaker(true)
	tr := &fakeTranscriber{available: true}
	eng, hist := newTestEngine(t, Components{Generator: gen, Speaker: spk, Transcriber: tr})

	require.NoError(t, eng.ToggleListening(context.Background()))
	tr.handlers.OnResult("where are the rockets")

	turns := hist.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "where are the rockets", turns[0].Content)
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestStopIsIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t, Components{Generator: &fakeGenerator{}, Speaker: newFakeSpeaker(true)})

	eng.Stop()
	eng.Stop()
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestStopInterruptsSpeech(t *testing.T) {
	gen := &fakeGenerator{reply: "an endless monologue"}
	spk := newFakeSpeaker(false)
	eng, _ := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	done := make(chan struct{})
	go func() {
		_ = eng.SendText(context.Background(), "go on")
		close(done)
	}()

	select {
	case <-spk.handles:
	case <-time.After(time.Second):
		t.Fatal("pipeline never spoke")
	}

	eng.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupted pipeline never returned")
	}
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestStopDuringGenerationStaysSilent(t *testing.T) {
	gen := newBlockingGenerator("too late")
	spk := newFakeSpeaker(true)
	eng, _ := newTestEngine(t, Components{Generator: gen, Speaker: spk})

	done := make(chan struct{})
	go func() {
		_ = eng.SendText(context.Background(), "hello")
		close(done)
	}()

	select {
	case <-gen.started:
	case <-time.After(time.Second):
		t.Fatal("generation never started")
	}
	eng.Stop()
	close(gen.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline never returned")
	}
	assert.Empty(t, spk.spokenText(), "superseded reply must not be voiced")
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestTimelineLipSyncEmitsLetterShapes(t *testing.T) {
	face := &recordingFace{}
	spk := newFakeSpeaker(false)
	eng, _ := newTestEngine(t, Components{
		Generator:       &fakeGenerator{reply: "mama"},
		Speaker:         spk,
		Visemes:         viseme.NewDriver(zerolog.Nop(), face, nil, 0),
		TimelineLipSync: true,
	})

	done := make(chan struct{})
	go func() {
		_ = eng.SendText(context.Background(), "say it")
		close(done)
	}()

	var h *audio.Handle
	select {
	case h = <-spk.handles:
	case <-time.After(time.Second):
		t.Fatal("pipeline never spoke")
	}

	assert.Eventually(t, func() bool {
		return face.saw("viseme_PP") && face.saw("viseme_aa")
	}, 2*time.Second, 10*time.Millisecond, "timeline shapes follow the spelled reply")

	h.Finish(nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline never finished")
	}
	assert.Eventually(t, func() bool {
		face.mu.Lock()
		defer face.mu.Unlock()
		return face.closes == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionCreatedAfterThreshold(t *testing.T) {
	sessions := &fakeSessions{id: "sess-99"}
	hist := history.New(history.Config{ChatCountThreshold: 1})
	eng := New(zerolog.Nop(), bus.New(), hist, Components{
		Generator: &fakeGenerator{reply: "sure"},
		Speaker:   newFakeSpeaker(true),
		Sessions:  sessions,
	})

	require.NoError(t, eng.SendText(context.Background(), "hello"))

	assert.Eventually(t, func() bool {
		return hist.SessionID() == "sess-99"
	}, time.Second, 10*time.Millisecond, "session id should land after crossing the threshold")
}

func TestSessionFailureReleasesLatch(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("backend down")}
	hist := history.New(history.Config{ChatCountThreshold: 1})
	eng := New(zerolog.Nop(), bus.New(), hist, Components{
		Generator: &fakeGenerator{reply: "sure"},
		Speaker:   newFakeSpeaker(true),
		Sessions:  sessions,
	})

	require.NoError(t, eng.SendText(context.Background(), "hello"))

	assert.Eventually(t, func() bool {
		sessions.mu.Lock()
		defer sessions.mu.Unlock()
		return sessions.calls == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, hist.SessionID())

	// A later turn retries.
	sessions.mu.Lock()
	sessions.err = nil
	sessions.id = "sess-retry"
	sessions.mu.Unlock()

	require.NoError(t, eng.SendText(context.Background(), "again"))
	assert.Eventually(t, func() bool {
		return hist.SessionID() == "sess-retry"
	}, time.Second, 10*time.Millisecond)
}

func TestResetConversationClearsTranscript(t *testing.T) {
	eng, hist := newTestEngine(t, Components{Generator: &fakeGenerator{reply: "ok"}, Speaker: newFakeSpeaker(true)})

	require.NoError(t, eng.SendText(context.Background(), "hello"))
	require.Equal(t, 2, hist.Len())

	eng.ResetConversation()
	assert.Equal(t, 0, hist.Len())
	assert.Empty(t, hist.SessionID())
}

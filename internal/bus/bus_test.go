package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()

	got := make(chan Event, 1)
	b.Subscribe(EventSessionCreated, func(ev Event) { got <- ev })

	b.Publish(SessionCreated{SessionID: "sess-1"})

	select {
	case ev := <-got:
		sc, ok := ev.(SessionCreated)
		assert.True(t, ok)
		assert.Equal(t, "sess-1", sc.SessionID)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	b := New()

	var mu sync.Mutex
	calls := 0
	b.Subscribe(EventMouthClosed, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.PublishSync(SessionCreated{SessionID: "sess-1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestSubscribeMultiple(t *testing.T) {
	b := New()

	var mu sync.Mutex
	seen := map[EventType]int{}
	b.SubscribeMultiple([]EventType{EventVisemeChanged, EventMouthClosed}, func(ev Event) {
		mu.Lock()
		seen[ev.Type()]++
		mu.Unlock()
	})

	b.PublishSync(VisemeChanged{Name: "viseme_aa", Intensity: 1})
	b.PublishSync(MouthClosed{})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[EventVisemeChanged])
	assert.Equal(t, 1, seen[EventMouthClosed])
}

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	b := New()

	done := false
	b.Subscribe(EventStateChanged, func(Event) {
		time.Sleep(20 * time.Millisecond)
		done = true
	})

	b.PublishSync(StateChanged{Status: "idle"})
	assert.True(t, done)
}

func TestClearRemovesHandlers(t *testing.T) {
	b := New()

	called := false
	b.Subscribe(EventPersonDetected, func(Event) { called = true })
	b.Clear()

	b.PublishSync(PersonDetected{Score: 0.9})
	assert.False(t, called)
}

// Package presence subscribes to the kiosk vision service's detection feed
// and decides when a detected visitor should trigger a spoken greeting.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/bus"
)

// Config configures the presence detector.
type Config struct {
	FeedURL        string        `json:"feed_url"`
	ScoreThreshold float64       `json:"score_threshold"`
	Cooldown       time.Duration `json:"cooldown"`
	CheckInterval  time.Duration `json:"check_interval"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ScoreThreshold: 0.5,
		Cooldown:       750 * time.Second,
		CheckInterval:  2 * time.Second,
	}
}

// Detector consumes detection scores and fires onPerson at most once per
// cooldown window. The engine's busy-state predicate is consulted first, so
// a hit while a conversation is running leaves the cooldown window intact.
type Detector struct {
	config     *Config
	eventBus   *bus.EventBus
	logger     zerolog.Logger
	canTrigger func() bool
	onPerson   func()

	mu            sync.Mutex
	lastTriggered time.Time
	running       bool
	cancel        context.CancelFunc

	now func() time.Time
}

// NewDetector creates a presence detector. canTrigger is the engine's
// busy-state query; nil means always ready.
func NewDetector(logger zerolog.Logger, eventBus *bus.EventBus, config *Config, canTrigger func() bool, onPerson func()) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{
		config:     config,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "presence").Logger(),
		canTrigger: canTrigger,
		onPerson:   onPerson,
		now:        time.Now,
	}
}

type detectionMessage struct {
	Score float64 `json:"score"`
}

// Start connects to the detection feed and keeps reading until ctx is
// cancelled, reconnecting with a fixed backoff. Without a configured feed
// URL it returns immediately; the guide then greets only on demand.
func (d *Detector) Start(ctx context.Context) {
	if d.config.FeedURL == "" {
		d.logger.Info().Msg("No detection feed configured; presence greeting disabled")
		return
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	go d.run(ctx)
}

func (d *Detector) run(ctx context.Context) {
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.config.FeedURL, nil)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Detection feed unreachable, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.config.CheckInterval):
			}
			continue
		}

		d.logger.Info().Str("url", d.config.FeedURL).Msg("Detection feed connected")
		d.readFeed(ctx, conn)
		conn.Close()
	}
}

func (d *Detector) readFeed(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg detectionMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				d.logger.Warn().Err(err).Msg("Detection feed read failed")
			}
			return
		}
		d.handleScore(msg.Score)
	}
}

func (d *Detector) handleScore(score float64) {
	if score <= d.config.ScoreThreshold {
		return
	}
	// Check the engine first: a refused greeting must not burn the window.
	if d.canTrigger != nil && !d.canTrigger() {
		return
	}
	if !d.cooldownReady() {
		return
	}

	d.logger.Info().Float64("score", score).Msg("Person detected")
	if d.eventBus != nil {
		d.eventBus.Publish(bus.PersonDetected{Score: score})
	}
	if d.onPerson != nil {
		d.onPerson()
	}
}

// cooldownReady consumes the cooldown window when it returns true.
func (d *Detector) cooldownReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.lastTriggered.IsZero() && now.Sub(d.lastTriggered) < d.config.Cooldown {
		return false
	}
	d.lastTriggered = now
	return true
}

// Stop tears down the feed connection.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

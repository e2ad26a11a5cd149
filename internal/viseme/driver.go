// Package viseme drives the avatar's mouth while synthesized audio plays.
// The default signal is a coarse two-shape alternation at a fixed cadence;
// a phoneme-derived timeline can be supplied instead. Either way the
// consumer sees a stream of named viseme events terminated by a single
// mouth-closed signal.
package viseme

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kioskguide/internal/audio"
	"github.com/normanking/kioskguide/internal/bus"
)

// Canonical mouth shapes for the coarse speaking signal.
const (
	ShapeOpen   = "viseme_aa"
	ShapeSmile  = "viseme_E"
	ShapeSilent = "viseme_sil"
)

// DefaultCadence is the interval between coarse mouth-shape flips.
const DefaultCadence = 150 * time.Millisecond

// Face is the avatar consumer. Implementations must tolerate high-frequency
// calls; a nil Face is a no-op.
type Face interface {
	SetViseme(name string, intensity float64)
	CloseMouth()
}

// Driver emits mouth-shape signals for the duration of a playback.
type Driver struct {
	face     Face
	eventBus *bus.EventBus
	cadence  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	current chan struct{} // closes to cancel the active track
}

// NewDriver creates a viseme driver. face and eventBus may be nil.
func NewDriver(logger zerolog.Logger, face Face, eventBus *bus.EventBus, cadence time.Duration) *Driver {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Driver{
		face:     face,
		eventBus: eventBus,
		cadence:  cadence,
		logger:   logger.With().Str("component", "viseme").Logger(),
	}
}

// Track animates the mouth until pb completes, replacing any active track.
// Exactly one mouth-closed signal fires when the playback ends, errors, or
// is torn down mid-utterance.
func (d *Driver) Track(pb audio.Playback) {
	cancel := d.swap()

	go func() {
		ticker := time.NewTicker(d.cadence)
		defer ticker.Stop()

		toggle := false
		for {
			select {
			case <-pb.Done():
				d.closeMouth()
				return
			case <-cancel:
				d.closeMouth()
				return
			case <-ticker.C:
				shape := ShapeSmile
				if toggle {
					shape = ShapeOpen
				}
				toggle = !toggle
				d.setViseme(shape, 1)
			}
		}
	}()
}

// TrackTimeline animates the mouth from a phoneme-derived timeline instead
// of the coarse alternation. Event times are offsets from playback start.
func (d *Driver) TrackTimeline(pb audio.Playback, tl *Timeline) {
	cancel := d.swap()

	go func() {
		start := time.Now()
		for _, ev := range tl.Events {
			wait := ev.At - time.Since(start)
			if wait > 0 {
				select {
				case <-pb.Done():
					d.closeMouth()
					return
				case <-cancel:
					d.closeMouth()
					return
				case <-time.After(wait):
				}
			}
			d.setViseme(ev.Name, ev.Intensity)
		}

		select {
		case <-pb.Done():
		case <-cancel:
		}
		d.closeMouth()
	}()
}

// Stop cancels the active track; its mouth-closed signal still fires.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		close(d.current)
		d.current = nil
	}
}

// swap cancels any active track and installs a fresh cancel channel.
func (d *Driver) swap() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		close(d.current)
	}
	d.current = make(chan struct{})
	return d.current
}

func (d *Driver) setViseme(name string, intensity float64) {
	if d.face != nil {
		d.face.SetViseme(name, intensity)
	}
	if d.eventBus != nil {
		d.eventBus.Publish(bus.VisemeChanged{Name: name, Intensity: intensity})
	}
}

func (d *Driver) closeMouth() {
	if d.face != nil {
		d.face.CloseMouth()
	}
	if d.eventBus != nil {
		d.eventBus.Publish(bus.MouthClosed{})
	}
}

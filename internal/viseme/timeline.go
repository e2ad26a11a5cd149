package viseme

import (
	"strings"
	"time"
)

// Event is one named mouth shape at an offset from playback start.
type Event struct {
	Name      string        `json:"name"`
	At        time.Duration `json:"at"`
	Intensity float64       `json:"intensity"`
}

// Timeline is a phoneme-derived lip-sync plan for one utterance.
type Timeline struct {
	Events   []Event       `json:"events"`
	Duration time.Duration `json:"duration"`
}

// letterVisemes maps spelled letters to canonical mouth shapes. This is an
// orthographic approximation; it only needs to look plausible at a glance.
var letterVisemes = map[string]string{
	"a": "viseme_aa", "e": "viseme_E", "i": "viseme_I",
	"o": "viseme_O", "u": "viseme_U",
	"p": "viseme_PP", "b": "viseme_PP", "m": "viseme_PP",
	"f": "viseme_FF", "v": "viseme_FF",
	"th": "viseme_TH",
	"t": "viseme_DD", "d": "viseme_DD",
	"k": "viseme_kk", "g": "viseme_kk", "c": "viseme_kk", "q": "viseme_kk", "x": "viseme_kk",
	"ch": "viseme_CH", "sh": "viseme_CH", "j": "viseme_CH",
	"s": "viseme_SS", "z": "viseme_SS",
	"n": "viseme_nn", "l": "viseme_nn",
	"r": "viseme_RR",
	"w": "viseme_U", "y": "viseme_I", "h": "viseme_aa",
}

func isVowel(ch byte) bool {
	switch ch {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// TimelineFromText builds an approximate lip-sync timeline from spelled
// text, spread over the expected utterance duration. Word and sentence
// boundaries insert brief silences; the timeline always ends in silence.
func TimelineFromText(text string, duration time.Duration) *Timeline {
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" {
		return &Timeline{
			Events: []Event{{Name: ShapeSilent, At: 0, Intensity: 1}},
		}
	}

	events := []Event{{Name: ShapeSilent, At: 0, Intensity: 1}}
	at := 50 * time.Millisecond

	chars := []byte(clean)
	for i := 0; i < len(chars); i++ {
		ch := chars[i]

		switch ch {
		case ' ', '\n', '\t':
			events = append(events, Event{Name: ShapeSilent, At: at, Intensity: 0.5})
			at += 80 * time.Millisecond
			continue
		case '.', '!', '?':
			events = append(events, Event{Name: ShapeSilent, At: at, Intensity: 1})
			at += 150 * time.Millisecond
			continue
		case ',', ';', ':':
			events = append(events, Event{Name: ShapeSilent, At: at, Intensity: 0.7})
			at += 100 * time.Millisecond
			continue
		}
		if ch < 'a' || ch > 'z' {
			continue
		}

		key := string(ch)
		if i < len(chars)-1 {
			digraph := string(chars[i : i+2])
			if digraph == "th" || digraph == "ch" || digraph == "sh" {
				key = digraph
				i++
			}
		}

		name, ok := letterVisemes[key]
		if !ok {
			name = ShapeSilent
		}

		// Skip immediate repeats so the mouth visibly moves
		if events[len(events)-1].Name != name {
			events = append(events, Event{Name: name, At: at, Intensity: 0.8})
		}

		step := 60 * time.Millisecond
		if isVowel(ch) {
			step = 100 * time.Millisecond
		}
		at += step
	}

	events = append(events, Event{Name: ShapeSilent, At: at, Intensity: 1})
	total := at + 50*time.Millisecond

	// Rescale onto the actual audio duration when one is known
	if duration > 0 {
		scale := float64(duration) / float64(total)
		for i := range events {
			events[i].At = time.Duration(float64(events[i].At) * scale)
		}
		total = duration
	}

	return &Timeline{Events: events, Duration: total}
}

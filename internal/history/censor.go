package history

import (
	"regexp"
	"strings"
)

// DefaultBlocklist contains the words masked out of the public transcript.
var DefaultBlocklist = []string{
	"fuck", "shit", "bitch", "asshole", "bastard",
	"damn", "dick", "crap", "piss", "slut", "whore",
}

// Censor masks blocked words in display text. Matching is tolerant of
// non-letter characters interleaved inside a word ("f.u-c k" still masks),
// and every matched span is replaced by asterisks of the blocked word's
// length.
type Censor struct {
	words    []string
	patterns []*regexp.Regexp
}

// NewCensor creates a Censor for the given blocklist.
// If words is nil, DefaultBlocklist is used.
func NewCensor(words []string) *Censor {
	if words == nil {
		words = DefaultBlocklist
	}

	c := &Censor{words: words}
	for _, w := range words {
		c.patterns = append(c.patterns, regexp.MustCompile(`(?i)`+loosePattern(w)))
	}
	return c
}

// loosePattern joins the letters of a word with an optional non-letter gap,
// so punctuation or spacing inside the word does not defeat the filter.
func loosePattern(word string) string {
	letters := strings.Split(word, "")
	for i, l := range letters {
		letters[i] = regexp.QuoteMeta(l)
	}
	return strings.Join(letters, `[^a-zA-Z]*`)
}

// Censor returns text with every blocked word replaced by asterisks.
// Text without blocked words is returned unchanged.
func (c *Censor) Censor(text string) string {
	result := text
	for i, p := range c.patterns {
		mask := strings.Repeat("*", len(c.words[i]))
		result = p.ReplaceAllString(result, mask)
	}
	return result
}

package engine

import (
	"regexp"
	"strings"
)

// Model output is written for a chat window; before it reaches the speech
// synthesizer the markdown decoration has to go or it gets read aloud.
var (
	asteriskPattern  = regexp.MustCompile(`\*`)
	markupPattern    = regexp.MustCompile("[_~`#]")
	bracketedPattern = regexp.MustCompile(`\[[^\]]*\]`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// SanitizeForSpeech strips markdown emphasis, stray markup characters and
// bracketed asides from generated text, then collapses whitespace.
func SanitizeForSpeech(text string) string {
	out := asteriskPattern.ReplaceAllString(text, "")
	out = bracketedPattern.ReplaceAllString(out, "")
	out = markupPattern.ReplaceAllString(out, "")
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

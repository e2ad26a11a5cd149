package stt

import (
	"regexp"
	"strings"
)

// DefaultFillerWords contains common English filler words stripped from
// final transcripts before they reach the conversation pipeline.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm",
	"er", "ah", "hmm", "mm",
}

// TranscriptFilter removes filler words and noise from final transcripts.
type TranscriptFilter struct {
	pattern *regexp.Regexp
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NewTranscriptFilter creates a filter for the given filler words.
// If fillerWords is nil, DefaultFillerWords is used.
func NewTranscriptFilter(fillerWords []string) *TranscriptFilter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	if len(fillerWords) == 0 {
		return &TranscriptFilter{}
	}

	parts := make([]string, 0, len(fillerWords))
	for _, word := range fillerWords {
		parts = append(parts, `\b`+regexp.QuoteMeta(strings.ToLower(word))+`\b`)
	}

	return &TranscriptFilter{
		pattern: regexp.MustCompile(`(?i)(` + strings.Join(parts, `|`) + `)`),
	}
}

// Filter strips filler words and normalizes whitespace. Filtering never
// empties a transcript entirely: if only fillers were heard, the original
// trimmed text is returned so the user still sees what was recognized.
func (f *TranscriptFilter) Filter(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || f.pattern == nil {
		return trimmed
	}

	cleaned := f.pattern.ReplaceAllString(trimmed, "")
	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return trimmed
	}
	return cleaned
}

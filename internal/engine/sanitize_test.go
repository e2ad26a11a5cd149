package engine

import "testing"

func TestSanitizeForSpeech(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Welcome to the Science Centre!", "Welcome to the Science Centre!"},
		{"bold markers stripped", "That is **very** cool", "That is very cool"},
		{"italics stripped", "a *wild* idea", "a wild idea"},
		{"markup characters stripped", "some `code` and _emphasis_ and #tags", "some code and emphasis and tags"},
		{"bracketed asides removed", "Hello [waves enthusiastically] there", "Hello there"},
		{"whitespace collapsed", "too   many\n\nspaces", "too many spaces"},
		{"everything at once", "**Hi!** [smiles] Come ~see~ the `lab`", "Hi! Come see the lab"},
		{"only decoration becomes empty", "*[gestures]*", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForSpeech(tt.in); got != tt.want {
				t.Errorf("SanitizeForSpeech(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// TestModerator_Censor
// The dictionary mirrors the embedded wordlists: scamming vocabulary that
// must never reach a mentee, in English and French.
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"scam", "fraud", "arnaque"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "This deal is a scam",
			expected: "This deal is a ****",
			words:    []string{"scam"},
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "scam scam scam",
			expected: "**** **** ****",
			words:    []string{"scam", "scam", "scam"},
		},
		{
			name: "Leet speak and internal punctuation",
			// s (index 8) . c . 4 . m (index 14) -> 7 characters
			input:    "It is a s.c.4.m !",
			expected: "It is a ******* !",
			words:    []string{"scam"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "Pure F-R-A-U-D and a S.C.4.M",
			expected: "Pure ********* and a *******",
			words:    []string{"fraud", "scam"},
		},
		{
			name:     "Accents and special characters (UTF-8)",
			input:    "Méfiez-vous de cette arnaque",
			expected: "Méfiez-vous de cette *******",
			words:    []string{"arnaque"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "That offer is a fraud!",
			expected: "That offer is a *****!",
			words:    []string{"fraud"},
		},
		{
			name:     "Nothing to censor",
			input:    "Happy to mentor you",
			expected: "Happy to mentor you",
			words:    nil,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise entries that normalize to nothing
	dictionary := []string{"...", ",,,", "", "scam"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	// Then the sentence is censored
	input := "This deal is a scam"
	expected := "This deal is a ****"
	content, words := mod.Censor(input)
	req.Equal(expected, content)
	req.Equal([]string{"scam"}, words)

	// Then real noise is uncensored
	input = "Hello ..."
	expected = "Hello ..."
	content, words = mod.Censor(input)
	req.Equal(expected, content)
	req.Nil(words)
}

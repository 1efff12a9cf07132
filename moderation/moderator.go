// Package moderation censors disallowed terms in message content before it
// reaches the message store or any channel.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	hasPatterns  bool
	censoredChar rune
	log          *slog.Logger
}

// textMapping links the normalized searchable runes back to their original
// positions, so censoring preserves spacing and punctuation.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized
// version of the provided censored words list. Words that normalize to
// nothing (pure punctuation) are skipped, the automaton rejects empty
// patterns.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		normalized := normalizeRunes([]rune(word))
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}

	m := new(goahocorasick.Machine)
	if len(patterns) > 0 {
		if err := m.Build(patterns); err != nil {
			return Moderator{}, err
		}
	}
	return Moderator{
		matcher:      m,
		hasPatterns:  len(patterns) > 0,
		censoredChar: censoredChar,
		log:          log,
	}, nil
}

// Censor replaces every forbidden pattern with the replacement character
// while preserving spacing. It returns the censored content and the list of
// matched normalized words, in match order.
func (m *Moderator) Censor(original string) (string, []string) {
	if !m.hasPatterns {
		return original, nil
	}
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	var matched []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		lastCharOrigIdx := mapping.origIdx[normEnd-1]

		for i := origStart; i <= lastCharOrigIdx; i++ {
			origRunes[i] = m.censoredChar
		}
		matched = append(matched, string(span.Word))
	}

	return string(origRunes), matched
}

// normalize transforms the input into a searchable format and tracks
// original rune positions.
func normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

// normalizeRunes applies simplification and noise removal to a slice of runes.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common Leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters ignored during the pattern matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}

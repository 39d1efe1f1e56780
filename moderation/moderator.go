// Package moderation censors forbidden words in message bodies before they
// reach the store or any receiver. Matching is leet-speak and punctuation
// tolerant: "B.4.d" matches "bad".
package moderation

import (
	"unicode"

	"chat-broker/errors"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

// textMapping links the normalized search text back to the original rune
// positions, so masking preserves spacing and punctuation.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list.
func NewModerator(words []string, maskChar rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		normalized := normalizeRunes([]rune(word))
		// Noise-only entries normalize to nothing and would match everywhere.
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, maskChar: maskChar}, nil
}

// Censor masks every forbidden pattern in the input, preserving spacing,
// and returns the sanitized text alongside the matched patterns.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	matched := make([]string, 0, len(spans))
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		matched = append(matched, string(span.Word))

		// Mask the whole original span, punctuation and all.
		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskChar
		}
	}
	return string(origRunes), matched
}

// normalize lowercases, de-leets and strips noise while tracking where
// each kept rune came from.
func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

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

// simplifyRune maps common leet speak characters back to their standard
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

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}

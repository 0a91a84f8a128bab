package bm25

import (
	"strings"
	"unicode"

	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// tokenize lowercases the input and keeps runs of Cyrillic, Latin and digit
// runes, matching the corpus language (Russian municipal pages with Latin
// names and numbers mixed in).
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if isTokenRune(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я':
		return true
	case r == 'ё':
		return true
	default:
		return false
	}
}

// lemmatizeTokens normalizes each token through the morphology collaborator,
// falling back to the raw token when normalization fails.
func lemmatizeTokens(lemma ports.Lemmatizer, tokens []string) []string {
	if lemma == nil {
		return tokens
	}
	out := make([]string, len(tokens))
	for i, token := range tokens {
		normalized, err := lemma.Lemma(token)
		if err != nil || normalized == "" {
			out[i] = token
			continue
		}
		out[i] = normalized
	}
	return out
}

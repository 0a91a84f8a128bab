// Package morph adapts a Snowball stemmer as the morphology collaborator of
// the lexical index. Stemming is a coarser normalization than full
// lemmatization, but it folds the case endings that dominate Russian query
// mismatch; callers keep the raw token whenever stemming fails.
package morph

import (
	"unicode"

	"github.com/kljensen/snowball"
)

type Stemmer struct{}

func NewStemmer() *Stemmer {
	return &Stemmer{}
}

func (s *Stemmer) Lemma(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return snowball.Stem(token, languageOf(token), false)
}

func languageOf(token string) string {
	for _, r := range token {
		if unicode.Is(unicode.Cyrillic, r) {
			return "russian"
		}
	}
	return "english"
}

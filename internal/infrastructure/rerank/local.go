package rerank

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

// LocalReranker is the in-process fallback used when no cross-encoder
// service is configured. It scores documents by query token overlap and
// keeps the original order for ties, so the result is always a valid
// permutation.
type LocalReranker struct{}

func NewLocal() *LocalReranker {
	return &LocalReranker{}
}

func (r *LocalReranker) Rerank(ctx context.Context, query string, documents []string) ([]domain.RankedIndex, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := toTokenSet(query)
	out := make([]domain.RankedIndex, len(documents))
	for i, doc := range documents {
		out[i] = domain.RankedIndex{
			Index: i,
			Score: tokenOverlap(queryTokens, toTokenSet(doc)),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func tokenOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// AnswerService serves direct knowledge-base questions: hybrid retrieval,
// rerank, then a grounded generation over the top documents.
type AnswerService struct {
	kb        *KnowledgeBase
	reranker  ports.Reranker
	generator ports.AnswerGenerator
	prompts   ports.PromptRenderer

	contextTopN int
}

func NewAnswerService(
	kb *KnowledgeBase,
	reranker ports.Reranker,
	generator ports.AnswerGenerator,
	prompts ports.PromptRenderer,
	contextTopN int,
) *AnswerService {
	if contextTopN <= 0 {
		contextTopN = 5
	}
	return &AnswerService{
		kb:          kb,
		reranker:    reranker,
		generator:   generator,
		prompts:     prompts,
		contextTopN: contextTopN,
	}
}

type rankedDocument struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Text  string `json:"text"`
}

func (s *AnswerService) GetAnswer(ctx context.Context, question string) (string, domain.TokenUsage, error) {
	var usage domain.TokenUsage

	candidates, err := s.kb.HybridSearch(ctx, question)
	if err != nil {
		return "", usage, fmt.Errorf("hybrid search: %w", err)
	}
	if len(candidates) == 0 {
		return "", usage, domain.WrapError(domain.ErrNotFound, "get_answer",
			fmt.Errorf("no documents match the question"))
	}

	ordered := rerankOrKeepOrder(ctx, s.reranker, question, candidates)
	if len(ordered) > s.contextTopN {
		ordered = ordered[:s.contextTopN]
	}

	documents := make([]rankedDocument, 0, len(ordered))
	for _, c := range ordered {
		documents = append(documents, rankedDocument{
			Title: c.Chunk.Title,
			Link:  c.Chunk.SourceURL,
			Text:  c.Chunk.Text,
		})
	}
	data, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return "", usage, fmt.Errorf("marshal documents: %w", err)
	}

	prompt, err := s.prompts.Render("rag_answer", map[string]any{
		"question": question,
		"data":     string(data),
	})
	if err != nil {
		return "", usage, err
	}

	answer, genUsage, err := s.generator.GenerateFromPrompt(ctx, prompt)
	usage.Add(genUsage)
	if err != nil {
		return "", usage, fmt.Errorf("generate answer: %w", err)
	}
	return answer, usage, nil
}

// rerankOrKeepOrder reorders the fused set by the reranker's permutation. Any
// response that is not a valid permutation of the input indices keeps the
// fused order instead.
func rerankOrKeepOrder(ctx context.Context, reranker ports.Reranker, question string, candidates []domain.RetrievalCandidate) []domain.RetrievalCandidate {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Chunk.Text
	}

	ranked, err := reranker.Rerank(ctx, question, documents)
	if err != nil {
		slog.Warn("rerank_failed", "error", err)
		return candidates
	}
	if !validPermutation(ranked, len(candidates)) {
		slog.Warn("rerank_invalid_permutation", "documents", len(candidates), "indices", len(ranked))
		return candidates
	}

	out := make([]domain.RetrievalCandidate, len(candidates))
	for pos, ri := range ranked {
		out[pos] = candidates[ri.Index]
	}
	return out
}

func validPermutation(ranked []domain.RankedIndex, n int) bool {
	if len(ranked) != n {
		return false
	}
	seen := make([]bool, n)
	for _, ri := range ranked {
		if ri.Index < 0 || ri.Index >= n || seen[ri.Index] {
			return false
		}
		seen[ri.Index] = true
	}
	return true
}

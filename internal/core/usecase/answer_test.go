package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

func answerKB(semantic []domain.RetrievalCandidate) *KnowledgeBase {
	return NewKnowledgeBase(&fakeLexical{}, &fakeVectors{queryRes: semantic}, &fakeEmbedder{}, 10)
}

func TestGetAnswerAppliesRerankPermutation(t *testing.T) {
	semantic := []domain.RetrievalCandidate{
		semCand("a", 0.9),
		semCand("b", 0.8),
		semCand("c", 0.7),
	}
	reranker := &fakeReranker{ranked: []domain.RankedIndex{
		{Index: 2, Score: 0.99},
		{Index: 0, Score: 0.5},
		{Index: 1, Score: 0.1},
	}}
	gen := &fakeGenerator{answer: "ответ"}
	svc := NewAnswerService(answerKB(semantic), reranker, gen, fakePrompts{}, 5)

	answer, usage, err := svc.GetAnswer(context.Background(), "вопрос")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if answer != "ответ" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if usage.Total() == 0 {
		t.Fatalf("generation usage must be accumulated")
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one generation, got %d", len(gen.prompts))
	}
	// Document c must be serialized before a and b.
	prompt := gen.prompts[0]
	if strings.Index(prompt, "text-c") > strings.Index(prompt, "text-a") {
		t.Fatalf("permutation not applied to documents: %s", prompt)
	}
}

func TestGetAnswerInvalidPermutationKeepsFusedOrder(t *testing.T) {
	semantic := []domain.RetrievalCandidate{semCand("a", 0.9), semCand("b", 0.8)}
	// Duplicate index: not a permutation.
	reranker := &fakeReranker{ranked: []domain.RankedIndex{{Index: 0}, {Index: 0}}}
	gen := &fakeGenerator{answer: "ответ"}
	svc := NewAnswerService(answerKB(semantic), reranker, gen, fakePrompts{}, 5)

	if _, _, err := svc.GetAnswer(context.Background(), "вопрос"); err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	prompt := gen.prompts[0]
	if strings.Index(prompt, "text-a") > strings.Index(prompt, "text-b") {
		t.Fatalf("fused order must be kept on invalid permutation: %s", prompt)
	}
}

func TestGetAnswerRerankerFailureKeepsFusedOrder(t *testing.T) {
	semantic := []domain.RetrievalCandidate{semCand("a", 0.9), semCand("b", 0.8)}
	reranker := &fakeReranker{err: errors.New("cross-encoder down")}
	gen := &fakeGenerator{answer: "ответ"}
	svc := NewAnswerService(answerKB(semantic), reranker, gen, fakePrompts{}, 5)

	if _, _, err := svc.GetAnswer(context.Background(), "вопрос"); err != nil {
		t.Fatalf("reranker failure must not fail the answer: %v", err)
	}
}

func TestGetAnswerTruncatesToTopN(t *testing.T) {
	semantic := []domain.RetrievalCandidate{
		semCand("a", 0.9), semCand("b", 0.8), semCand("c", 0.7), semCand("d", 0.6),
	}
	gen := &fakeGenerator{answer: "ответ"}
	svc := NewAnswerService(answerKB(semantic), &fakeReranker{}, gen, fakePrompts{}, 2)

	if _, _, err := svc.GetAnswer(context.Background(), "вопрос"); err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	prompt := gen.prompts[0]
	if strings.Contains(prompt, "text-c") || strings.Contains(prompt, "text-d") {
		t.Fatalf("documents beyond top-N must not reach the prompt: %s", prompt)
	}
}

func TestGetAnswerNoDocumentsIsNotFound(t *testing.T) {
	svc := NewAnswerService(answerKB(nil), &fakeReranker{}, &fakeGenerator{}, fakePrompts{}, 5)
	_, _, err := svc.GetAnswer(context.Background(), "вопрос")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

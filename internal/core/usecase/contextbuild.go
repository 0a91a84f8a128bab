package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

const noDataMark = "Нет данных"

// ContextAssembler builds the generation inputs: the system prompt, the
// aggregated context block, and a history trimmed to the token budget.
type ContextAssembler struct {
	prompts   ports.PromptRenderer
	generator ports.AnswerGenerator
	counter   ports.Chunker

	historyBudget int
}

func NewContextAssembler(
	prompts ports.PromptRenderer,
	generator ports.AnswerGenerator,
	counter ports.Chunker,
	historyBudget int,
) *ContextAssembler {
	if historyBudget <= 0 {
		historyBudget = 4000
	}
	return &ContextAssembler{
		prompts:       prompts,
		generator:     generator,
		counter:       counter,
		historyBudget: historyBudget,
	}
}

func (a *ContextAssembler) SystemPrompt() (string, error) {
	return a.prompts.Render("context_system", nil)
}

// BuildContext folds the retrieval outcome into one context string through a
// summarizing generation pass. Absent sources are marked explicitly so the
// model does not hallucinate them.
func (a *ContextAssembler) BuildContext(ctx context.Context, state *domain.PipelineState) (string, domain.TokenUsage, error) {
	apiData := noDataMark
	if state.APIResult != "" {
		apiData = state.APIResult
	}

	webData := noDataMark
	if len(state.WebResults) > 0 {
		raw, err := json.Marshal(state.WebResults)
		if err != nil {
			return "", domain.TokenUsage{}, fmt.Errorf("marshal web results: %w", err)
		}
		webData = string(raw)
	}

	knowledge := noDataMark
	if state.KnowledgeContext != "" {
		knowledge = state.KnowledgeContext
	}

	hasDocuments := "Нет"
	if state.HasUserDocuments {
		hasDocuments = "Да"
	}

	prompt, err := a.prompts.Render("context_prepare", map[string]any{
		"message":            state.Message,
		"api_data":           apiData,
		"web_search_results": webData,
		"rag_context":        knowledge,
		"has_user_documents": hasDocuments,
	})
	if err != nil {
		return "", domain.TokenUsage{}, err
	}

	contextBlock, usage, err := a.generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		return "", usage, fmt.Errorf("prepare context: %w", err)
	}
	return contextBlock, usage, nil
}

// TrimHistory drops whole turns from the front until the token total fits
// the budget. Role/content pairing is never split.
func (a *ContextAssembler) TrimHistory(history []domain.ConversationTurn) []domain.ConversationTurn {
	total := 0
	counts := make([]int, len(history))
	for i, turn := range history {
		counts[i] = a.counter.CountTokens(turn.Content)
		total += counts[i]
	}

	start := 0
	for start < len(history) && total > a.historyBudget {
		total -= counts[start]
		start++
	}
	if start == 0 {
		return history
	}
	return append([]domain.ConversationTurn(nil), history[start:]...)
}

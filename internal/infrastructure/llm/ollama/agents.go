package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// SafetyAgent runs the toxicity gate on incoming messages. A malformed model
// response degrades to "not toxic" rather than blocking the pipeline.
type SafetyAgent struct {
	client  *Client
	prompts ports.PromptRenderer
}

func NewSafetyAgent(client *Client, prompts ports.PromptRenderer) *SafetyAgent {
	return &SafetyAgent{client: client, prompts: prompts}
}

func (a *SafetyAgent) CheckToxicity(ctx context.Context, message string) (bool, domain.TokenUsage, error) {
	prompt, err := a.prompts.Render("toxicity_check", map[string]any{"message": message})
	if err != nil {
		return false, domain.TokenUsage{}, err
	}

	raw, usage, err := a.client.generateJSON(ctx, prompt)
	if err != nil {
		return false, usage, err
	}

	var result struct {
		IsToxic bool   `json:"is_toxic"`
		Reason  string `json:"reason"`
	}
	if !decodeStrict(raw, &result, "toxicity_check") {
		return false, usage, nil
	}
	return result.IsToxic, usage, nil
}

// RouterAgent decides which sources a message needs and whether it is clear
// enough to answer without clarification.
type RouterAgent struct {
	client  *Client
	prompts ports.PromptRenderer
}

func NewRouterAgent(client *Client, prompts ports.PromptRenderer) *RouterAgent {
	return &RouterAgent{client: client, prompts: prompts}
}

func (a *RouterAgent) ClassifySources(ctx context.Context, message string, history []domain.ConversationTurn) (domain.SourceNeeds, domain.TokenUsage, error) {
	prompt, err := a.prompts.Render("classify_sources", map[string]any{
		"message": message,
		"history": formatHistory(history),
	})
	if err != nil {
		return domain.SourceNeeds{}, domain.TokenUsage{}, err
	}

	raw, usage, err := a.client.generateJSON(ctx, prompt)
	if err != nil {
		return domain.SourceNeeds{}, usage, err
	}

	var result struct {
		RequiresRAG       bool   `json:"requires_rag"`
		RequiresAPI       bool   `json:"requires_api"`
		RequiresWebSearch bool   `json:"requires_web_search"`
		IsClear           bool   `json:"is_clear"`
		Reasoning         string `json:"reasoning"`
	}
	if !decodeStrict(raw, &result, "classify_sources") {
		return domain.SourceNeeds{}, usage, nil
	}
	return domain.SourceNeeds{
		NeedsKnowledgeBase: result.RequiresRAG,
		NeedsLiveAPI:       result.RequiresAPI,
		NeedsWebSearch:     result.RequiresWebSearch,
		IsClear:            result.IsClear,
		Reasoning:          result.Reasoning,
	}, usage, nil
}

// ClarificationAgent writes follow-up questions for under-specified requests.
type ClarificationAgent struct {
	client  *Client
	prompts ports.PromptRenderer
}

func NewClarificationAgent(client *Client, prompts ports.PromptRenderer) *ClarificationAgent {
	return &ClarificationAgent{client: client, prompts: prompts}
}

func (a *ClarificationAgent) ClarificationQuestions(ctx context.Context, message string, history []domain.ConversationTurn) ([]string, domain.TokenUsage, error) {
	prompt, err := a.prompts.Render("clarification_check", map[string]any{
		"message": message,
		"history": formatHistory(history),
	})
	if err != nil {
		return nil, domain.TokenUsage{}, err
	}

	raw, usage, err := a.client.generateJSON(ctx, prompt)
	if err != nil {
		return nil, usage, err
	}

	var result struct {
		NeedsClarification bool     `json:"needs_clarification"`
		Questions          []string `json:"questions"`
	}
	if !decodeStrict(raw, &result, "clarification_check") {
		return nil, usage, nil
	}
	if !result.NeedsClarification {
		return nil, usage, nil
	}
	return result.Questions, usage, nil
}

// ToolAgent picks one tool from the catalog for a live-API request. A nil
// call means no tool fits.
type ToolAgent struct {
	client  *Client
	prompts ports.PromptRenderer
}

func NewToolAgent(client *Client, prompts ports.PromptRenderer) *ToolAgent {
	return &ToolAgent{client: client, prompts: prompts}
}

func (a *ToolAgent) SelectTool(ctx context.Context, message string, catalog []domain.ToolSpec) (*domain.ToolCall, domain.TokenUsage, error) {
	tools, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("marshal tool catalog: %w", err)
	}
	prompt, err := a.prompts.Render("tool_select", map[string]any{
		"message": message,
		"tools":   string(tools),
	})
	if err != nil {
		return nil, domain.TokenUsage{}, err
	}

	raw, usage, err := a.client.generateJSON(ctx, prompt)
	if err != nil {
		return nil, usage, err
	}

	var result struct {
		Tool      *string        `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if !decodeStrict(raw, &result, "tool_select") {
		return nil, usage, nil
	}
	if result.Tool == nil || strings.TrimSpace(*result.Tool) == "" || *result.Tool == "null" {
		return nil, usage, nil
	}
	if result.Arguments == nil {
		result.Arguments = map[string]any{}
	}
	return &domain.ToolCall{Name: *result.Tool, Arguments: result.Arguments}, usage, nil
}

// Generator produces the final answer and the aggregated context block.
type Generator struct {
	client  *Client
	prompts ports.PromptRenderer
}

func NewGenerator(client *Client, prompts ports.PromptRenderer) *Generator {
	return &Generator{client: client, prompts: prompts}
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, contextBlock string, history []domain.ConversationTurn, question string) (string, domain.TokenUsage, error) {
	prompt, err := g.prompts.Render("answer", map[string]any{
		"system_prompt": systemPrompt,
		"context":       contextBlock,
		"history":       formatHistory(history),
		"question":      question,
	})
	if err != nil {
		return "", domain.TokenUsage{}, err
	}
	return g.client.generateText(ctx, prompt)
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, domain.TokenUsage, error) {
	return g.client.generateText(ctx, prompt)
}

// decodeStrict parses a model JSON reply, rejecting unknown fields. On
// failure it logs and reports false so callers fall back to safe defaults.
func decodeStrict(raw string, target any, operation string) bool {
	dec := json.NewDecoder(strings.NewReader(extractJSONObject(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		slog.Warn("model_response_rejected", "operation", operation, "error", err)
		return false
	}
	return true
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func formatHistory(history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return "пусто"
	}
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString(string(turn.Role))
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/resilience"
)

// Client is the shared transport for every Ollama-backed adapter: the
// embedder, the pipeline agents and the answer generator. Calls go through
// the resilience executor so retries and the breaker are applied uniformly.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, domain.TokenUsage, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, domain.TokenUsage, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, domain.TokenUsage, error) {
	var response generateResponse
	err := c.executor.Execute(ctx, "ollama_generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	}, classifyOllamaError)
	if err != nil {
		return "", domain.TokenUsage{}, wrapUnavailableIfNeeded("ollama_generate", err)
	}
	usage := domain.TokenUsage{
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}
	return strings.TrimSpace(response.Response), usage, nil
}

// Embedder batches embedding requests against the configured embed model.
type Embedder struct {
	client    *Client
	batchSize int
}

func NewEmbedder(client *Client, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Embedder{client: client, batchSize: batchSize}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		request := map[string]any{
			"model": e.client.embedModel,
			"input": texts[start:end],
		}
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		err := e.client.executor.Execute(ctx, "ollama_embed", func(ctx context.Context) error {
			return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
		}, classifyOllamaError)
		if err != nil {
			return nil, wrapUnavailableIfNeeded("ollama_embed", err)
		}
		if len(response.Embeddings) != end-start {
			return nil, domain.WrapError(domain.ErrSourceUnavailable, "ollama_embed",
				&HTTPStatusError{Operation: "embed", Status: "incomplete embeddings"})
		}
		out = append(out, response.Embeddings...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "ollama_embed",
			&HTTPStatusError{Operation: "embed", Status: "empty embedding result"})
	}
	return vectors[0], nil
}

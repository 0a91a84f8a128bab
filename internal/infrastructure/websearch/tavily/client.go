// Package tavily implements web search through the Tavily REST API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

const defaultBaseURL = "https://api.tavily.com"

type Client struct {
	baseURL     string
	apiKey      string
	maxResults  int
	searchDepth string
	httpClient  *http.Client
}

func New(apiKey string, maxResults int, searchDepth string) *Client {
	if maxResults <= 0 {
		maxResults = 5
	}
	if searchDepth == "" {
		searchDepth = "basic"
	}
	return &Client{
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		maxResults:  maxResults,
		searchDepth: searchDepth,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Search(ctx context.Context, query string) ([]domain.WebSearchResult, error) {
	payload := map[string]any{
		"api_key":      c.apiKey,
		"query":        query,
		"max_results":  c.maxResults,
		"search_depth": c.searchDepth,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "web_search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "web_search",
			fmt.Errorf("tavily status %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.WebSearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		out = append(out, domain.WebSearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return out, nil
}

// Package rerank orders retrieval candidates by relevance to the question.
// Both implementations honor the same contract: the result is a permutation
// of the input document indices, most relevant first.
package rerank

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

// RemoteReranker calls an external cross-encoder service.
type RemoteReranker struct {
	baseURL    string
	topN       int
	httpClient *http.Client
}

func NewRemote(baseURL string, topN int) *RemoteReranker {
	return &RemoteReranker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topN:       topN,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *RemoteReranker) Rerank(ctx context.Context, query string, documents []string) ([]domain.RankedIndex, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"query":     query,
		"documents": documents,
		"top_n":     len(documents),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "rerank",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]domain.RankedIndex, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		out = append(out, domain.RankedIndex{Index: res.Index, Score: res.RelevanceScore})
	}
	return out, nil
}

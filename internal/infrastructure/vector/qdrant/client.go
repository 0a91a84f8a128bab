package qdrant

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

const upsertBatchSize = 64

// Client talks to Qdrant over its REST API and maps collection points to
// domain chunks. The collection is fixed-dimension cosine, payload schema
// {text, url, title, parsed_at, filename, chunk_id}.
type Client struct {
	baseURL    string
	collection string
	vectorSize int
	httpClient *http.Client
}

func New(baseURL, collection string, vectorSize int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorSize: vectorSize,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Ping verifies the Qdrant endpoint is reachable. Bootstrap treats a failure
// here as fatal.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	return nil
}

// EnsureCollection creates the target collection with the configured vector
// size and cosine distance if absent. Safe to call repeatedly.
func (c *Client) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil)
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	// 409 means the collection already exists.
	if asStatusError(err, &statusErr) && statusErr.Code == http.StatusConflict {
		return nil
	}
	return err
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:     chunk.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"text":      chunk.Text,
				"url":       chunk.SourceURL,
				"title":     chunk.Title,
				"parsed_at": chunk.ParsedAt,
				"filename":  chunk.SourceFilename,
				"chunk_id":  chunk.ChunkID,
			},
		})
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		body := map[string]any{"points": points[start:end]}
		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
			return fmt.Errorf("qdrant upsert batch %d..%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, limit int) ([]domain.RetrievalCandidate, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]domain.RetrievalCandidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.RetrievalCandidate{
			Chunk:  chunkFromPayload(r.ID, r.Payload),
			Score:  r.Score,
			Origin: domain.OriginSemantic,
		})
	}
	return out, nil
}

// ScrollAll pages through every stored payload. Used to rebuild the lexical
// index when its disk snapshot is missing or stale.
func (c *Client) ScrollAll(ctx context.Context) ([]domain.Chunk, error) {
	var out []domain.Chunk
	var offset any

	for {
		body := map[string]any{
			"limit":        1000,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
		if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}

		for _, p := range resp.Result.Points {
			out = append(out, chunkFromPayload(p.ID, p.Payload))
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// Recreate drops and recreates the collection.
func (c *Client) Recreate(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/collections/"+c.collection, nil, nil); err != nil {
		var statusErr *StatusError
		if !asStatusError(err, &statusErr) || statusErr.Code != http.StatusNotFound {
			return fmt.Errorf("qdrant delete collection: %w", err)
		}
	}
	return c.EnsureCollection(ctx)
}

func (c *Client) Info(ctx context.Context) (domain.CollectionInfo, error) {
	var resp struct {
		Result struct {
			Status              string `json:"status"`
			PointsCount         int    `json:"points_count"`
			VectorsCount        int    `json:"vectors_count"`
			IndexedVectorsCount int    `json:"indexed_vectors_count"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, &resp); err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("qdrant collection info: %w", err)
	}

	vectors := resp.Result.VectorsCount
	if vectors == 0 {
		vectors = resp.Result.IndexedVectorsCount
	}
	return domain.CollectionInfo{
		Name:         c.collection,
		PointsCount:  resp.Result.PointsCount,
		VectorsCount: vectors,
		Status:       resp.Result.Status,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(raw)),
		}
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func chunkFromPayload(id string, payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:             id,
		Text:           payloadString(payload, "text"),
		SourceURL:      payloadString(payload, "url"),
		Title:          payloadString(payload, "title"),
		ParsedAt:       payloadString(payload, "parsed_at"),
		SourceFilename: payloadString(payload, "filename"),
		ChunkID:        payloadString(payload, "chunk_id"),
	}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

func TestEnsureCollectionToleratesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/kb" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 768)
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
}

func TestUpsertSendsPayloadSchema(t *testing.T) {
	var got struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Fatalf("expected wait=true, got %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode upsert body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	chunks := []domain.Chunk{{
		ID:             "11111111-1111-1111-1111-111111111111",
		Text:           "Запись в МФЦ",
		SourceURL:      "https://example.org/mfc",
		Title:          "МФЦ",
		SourceFilename: "mfc.json",
		ChunkID:        "mfc.json#0",
		ParsedAt:       "2025-01-01",
	}}
	if err := c.Upsert(context.Background(), chunks, [][]float32{{0.1, 0.2, 0.3, 0.4}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if len(got.Points) != 1 {
		t.Fatalf("expected one point, got %d", len(got.Points))
	}
	p := got.Points[0]
	if p.ID != chunks[0].ID {
		t.Fatalf("point id mismatch: %s", p.ID)
	}
	for _, key := range []string{"text", "url", "title", "parsed_at", "filename", "chunk_id"} {
		if _, ok := p.Payload[key]; !ok {
			t.Fatalf("payload missing %q", key)
		}
	}
}

func TestUpsertRejectsVectorMismatch(t *testing.T) {
	c := New("http://unused", "kb", 4)
	err := c.Upsert(context.Background(), []domain.Chunk{{ID: "a"}}, nil)
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestQueryReturnsSemanticCandidatesWithPointIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/kb/points/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "p1", "score": 0.92, "payload": map[string]any{"text": "Поликлиника по адресу", "title": "Поликлиники"}},
				{"id": "p2", "score": 0.81, "payload": map[string]any{"text": "Школы района"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	got, err := c.Query(context.Background(), []float32{0.1, 0.2, 0.3, 0.4}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Chunk.ID != "p1" || got[1].Chunk.ID != "p2" {
		t.Fatalf("point ids must carry through, got %s %s", got[0].Chunk.ID, got[1].Chunk.ID)
	}
	for _, cand := range got {
		if cand.Origin != domain.OriginSemantic {
			t.Fatalf("unexpected origin %s", cand.Origin)
		}
	}
}

func TestScrollAllPagesUntilExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode scroll body: %v", err)
		}
		switch calls {
		case 1:
			if _, ok := body["offset"]; ok {
				t.Fatalf("first page must not carry an offset")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"points":           []map[string]any{{"id": "p1", "payload": map[string]any{"text": "a"}}},
					"next_page_offset": "p2",
				},
			})
		case 2:
			if body["offset"] != "p2" {
				t.Fatalf("expected offset p2, got %v", body["offset"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"points":           []map[string]any{{"id": "p2", "payload": map[string]any{"text": "b"}}},
					"next_page_offset": nil,
				},
			})
		default:
			t.Fatalf("unexpected extra scroll call")
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	got, err := c.ScrollAll(context.Background())
	if err != nil {
		t.Fatalf("ScrollAll() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("unexpected scroll result %+v", got)
	}
}

func TestRecreateDeletesThenEnsures(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	if err := c.Recreate(context.Background()); err != nil {
		t.Fatalf("Recreate() error = %v", err)
	}
	if len(methods) != 2 || methods[0] != http.MethodDelete || methods[1] != http.MethodPut {
		t.Fatalf("unexpected call sequence %v", methods)
	}
}

func TestInfoMapsCollectionStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"status":       "green",
				"points_count": 42,
				"indexed_vectors_count": 42,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Name != "kb" || info.PointsCount != 42 || info.VectorsCount != 42 || info.Status != "green" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":{"error":"bad vector size"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "kb", 4)
	_, err := c.Query(context.Background(), []float32{0.1}, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	var statusErr *StatusError
	if !asStatusError(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", statusErr.Code)
	}
}

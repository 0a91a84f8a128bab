package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func assertPermutation(t *testing.T, n int, got []int) {
	t.Helper()
	if len(got) != n {
		t.Fatalf("expected %d indices, got %d", n, len(got))
	}
	seen := make(map[int]bool, n)
	for _, idx := range got {
		if idx < 0 || idx >= n || seen[idx] {
			t.Fatalf("not a permutation: %v", got)
		}
		seen[idx] = true
	}
}

func TestLocalRerankOrdersByOverlap(t *testing.T) {
	r := NewLocal()
	docs := []string{
		"Афиша концертов на выходные",
		"Ближайший МФЦ принимает документы на паспорт",
		"Запись к врачу в поликлинику",
	}
	got, err := r.Rerank(context.Background(), "мфц документы паспорт", docs)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	indices := make([]int, len(got))
	for i, ri := range got {
		indices[i] = ri.Index
	}
	assertPermutation(t, len(docs), indices)
	if indices[0] != 1 {
		t.Fatalf("expected document 1 first, got order %v", indices)
	}
}

func TestLocalRerankStableForTies(t *testing.T) {
	r := NewLocal()
	docs := []string{"школа района", "школа района", "школа района"}
	got, err := r.Rerank(context.Background(), "школа", docs)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	for i, ri := range got {
		if ri.Index != i {
			t.Fatalf("ties must keep input order, got %v", got)
		}
	}
}

func TestLocalRerankEmptyInput(t *testing.T) {
	r := NewLocal()
	got, err := r.Rerank(context.Background(), "вопрос", nil)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestRemoteRerankMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rerank request: %v", err)
		}
		if len(req.Documents) != 2 {
			t.Fatalf("expected 2 documents, got %d", len(req.Documents))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.2},
			},
		})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, 10)
	got, err := r.Rerank(context.Background(), "вопрос", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 0 {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRemoteRerankServerErrorIsSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, 10)
	if _, err := r.Rerank(context.Background(), "вопрос", []string{"a"}); err == nil {
		t.Fatalf("expected error on server failure")
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// KnowledgeBase owns both retrieval engines and keeps them aligned: every
// chunk lives in the vector collection and the lexical index under the same
// id. Mutation takes the write lock; searches share the read lock.
type KnowledgeBase struct {
	mu sync.RWMutex

	lexical  ports.LexicalIndex
	vectors  ports.VectorStore
	embedder ports.Embedder

	semanticTopK int
}

func NewKnowledgeBase(
	lexical ports.LexicalIndex,
	vectors ports.VectorStore,
	embedder ports.Embedder,
	semanticTopK int,
) *KnowledgeBase {
	if semanticTopK <= 0 {
		semanticTopK = 10
	}
	return &KnowledgeBase{
		lexical:      lexical,
		vectors:      vectors,
		embedder:     embedder,
		semanticTopK: semanticTopK,
	}
}

// Sync aligns the lexical index with the vector collection at startup. A
// persisted snapshot is reused only when its corpus size matches the live
// point count; anything else forces a full rebuild from the collection.
func (kb *KnowledgeBase) Sync(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if err := kb.vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	loaded, err := kb.lexical.Load()
	if err != nil {
		slog.Warn("lexical_snapshot_unusable", "error", err)
		loaded = false
	}

	info, err := kb.vectors.Info(ctx)
	if err != nil {
		return fmt.Errorf("collection info: %w", err)
	}

	if loaded && kb.lexical.Len() == info.PointsCount {
		slog.Info("lexical_snapshot_reused", "documents", kb.lexical.Len())
		return nil
	}
	if loaded {
		slog.Warn("lexical_snapshot_stale",
			"snapshot_documents", kb.lexical.Len(),
			"collection_points", info.PointsCount,
		)
	}

	chunks, err := kb.vectors.ScrollAll(ctx)
	if err != nil {
		return fmt.Errorf("scroll collection: %w", err)
	}
	if err := kb.lexical.Index(chunks); err != nil {
		return fmt.Errorf("rebuild lexical index: %w", err)
	}
	if err := kb.lexical.Save(); err != nil {
		return fmt.Errorf("persist lexical index: %w", err)
	}
	slog.Info("lexical_index_rebuilt", "documents", len(chunks))
	return nil
}

// AddChunks embeds and stores new chunks, vector collection first. If the
// vector write fails nothing reaches the lexical index, so the shared-id
// invariant cannot break in the lexical direction.
func (kb *KnowledgeBase) AddChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := kb.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if err := kb.vectors.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	if err := kb.lexical.Add(chunks); err != nil {
		return fmt.Errorf("extend lexical index: %w", err)
	}
	if err := kb.lexical.Save(); err != nil {
		return fmt.Errorf("persist lexical index: %w", err)
	}
	return nil
}

// HybridSearch runs both engines and fuses their hits by chunk id.
func (kb *KnowledgeBase) HybridSearch(ctx context.Context, query string) ([]domain.RetrievalCandidate, error) {
	queryVector, err := kb.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	semantic, err := kb.vectors.Query(ctx, queryVector, kb.semanticTopK)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	lexical := kb.lexical.Search(query)

	return fuseHybridCandidates(lexical, semantic), nil
}

// Clear drops both engines and persists the empty lexical state.
func (kb *KnowledgeBase) Clear(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if err := kb.vectors.Recreate(ctx); err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	kb.lexical.Clear()
	if err := kb.lexical.Save(); err != nil {
		return fmt.Errorf("persist lexical index: %w", err)
	}
	slog.Info("knowledge_base_cleared")
	return nil
}

func (kb *KnowledgeBase) Info(ctx context.Context) (domain.CollectionInfo, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.vectors.Info(ctx)
}

// newChunkID mints the shared identity used by both engines.
func newChunkID() string {
	return uuid.NewString()
}

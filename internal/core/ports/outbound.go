package ports

import (
	"context"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

// LexicalIndex is the BM25-family ranking engine over lemmatized tokens.
// Search on an empty or unbuilt index returns an empty list, never an error.
// Mutation (Index/Add/Clear) is not internally synchronized; the owning
// service serializes writers.
type LexicalIndex interface {
	Index(chunks []domain.Chunk) error
	Add(chunks []domain.Chunk) error
	Search(query string) []domain.RetrievalCandidate
	Clear()
	Save() error
	Load() (bool, error)
	Len() int
}

// VectorStore wraps the semantic similarity collection.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, limit int) ([]domain.RetrievalCandidate, error)
	ScrollAll(ctx context.Context) ([]domain.Chunk, error)
	Recreate(ctx context.Context) error
	Info(ctx context.Context) (domain.CollectionInfo, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores (query, document) pairs and returns a permutation of the
// input indices ordered by relevance. It never truncates.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]domain.RankedIndex, error)
}

// Lemmatizer is the morphology collaborator of the lexical index. Callers
// fall back to the raw token on error.
type Lemmatizer interface {
	Lemma(token string) (string, error)
}

// SafetyClassifier runs the moderation gate.
type SafetyClassifier interface {
	CheckToxicity(ctx context.Context, message string) (bool, domain.TokenUsage, error)
}

// SourceClassifier produces the source-need booleans plus the clarity flag.
type SourceClassifier interface {
	ClassifySources(ctx context.Context, message string, history []domain.ConversationTurn) (domain.SourceNeeds, domain.TokenUsage, error)
}

// ClarificationWriter produces follow-up questions for an unclear message.
type ClarificationWriter interface {
	ClarificationQuestions(ctx context.Context, message string, history []domain.ConversationTurn) ([]string, domain.TokenUsage, error)
}

// ToolSelector picks one city-service function call for a message, or nil
// when none of the catalogue applies.
type ToolSelector interface {
	SelectTool(ctx context.Context, message string, catalog []domain.ToolSpec) (*domain.ToolCall, domain.TokenUsage, error)
}

// CityGateway invokes a validated city-service function.
type CityGateway interface {
	Catalog() []domain.ToolSpec
	Invoke(ctx context.Context, call domain.ToolCall) (string, error)
}

// WebSearcher queries the external web-search collaborator.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]domain.WebSearchResult, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	Generate(ctx context.Context, systemPrompt, contextBlock string, history []domain.ConversationTurn, question string) (string, domain.TokenUsage, error)
	GenerateFromPrompt(ctx context.Context, prompt string) (string, domain.TokenUsage, error)
}

// Chunker splits long source text into overlapping, token-bounded chunks.
type Chunker interface {
	Split(text string) []string
	CountTokens(text string) int
}

// TextExtractor extracts plain text from an uploaded file.
type TextExtractor interface {
	Extract(filename string, data []byte) (string, error)
}

// IngestQueue carries accepted ingest records from the API to the indexer.
type IngestQueue interface {
	PublishBatch(ctx context.Context, records []domain.IngestRecord) error
	SubscribeBatches(ctx context.Context, handler func(context.Context, []domain.IngestRecord) error) error
}

// ConversationStore keeps per-session dialogue history between requests.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	History(sessionID string) []domain.ConversationTurn
	Save(sessionID string, history []domain.ConversationTurn)
	Clear(sessionID string)
}

// PromptRenderer renders a named prompt template with its arguments.
type PromptRenderer interface {
	Render(name string, args map[string]any) (string, error)
}

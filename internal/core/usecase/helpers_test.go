package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

type fakeLexical struct {
	corpus  []domain.Chunk
	results []domain.RetrievalCandidate

	loadOK  bool
	loadErr error
	saveErr error

	saves   int
	indexed int
	added   int
	cleared bool
}

func (f *fakeLexical) Index(chunks []domain.Chunk) error {
	f.corpus = append([]domain.Chunk(nil), chunks...)
	f.indexed++
	return nil
}

func (f *fakeLexical) Add(chunks []domain.Chunk) error {
	f.corpus = append(f.corpus, chunks...)
	f.added++
	return nil
}

func (f *fakeLexical) Search(query string) []domain.RetrievalCandidate {
	return f.results
}

func (f *fakeLexical) Clear() {
	f.corpus = nil
	f.cleared = true
}

func (f *fakeLexical) Save() error {
	f.saves++
	return f.saveErr
}

func (f *fakeLexical) Load() (bool, error) {
	return f.loadOK, f.loadErr
}

func (f *fakeLexical) Len() int {
	return len(f.corpus)
}

type fakeVectors struct {
	upserted  []domain.Chunk
	upsertErr error
	queryRes  []domain.RetrievalCandidate
	queryErr  error
	scrolled  []domain.Chunk
	recreated bool
	info      domain.CollectionInfo
	infoErr   error
	ensureErr error
}

func (f *fakeVectors) EnsureCollection(ctx context.Context) error { return f.ensureErr }

func (f *fakeVectors) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeVectors) Query(ctx context.Context, vector []float32, limit int) ([]domain.RetrievalCandidate, error) {
	return f.queryRes, f.queryErr
}

func (f *fakeVectors) ScrollAll(ctx context.Context) ([]domain.Chunk, error) {
	return f.scrolled, nil
}

func (f *fakeVectors) Recreate(ctx context.Context) error {
	f.recreated = true
	return nil
}

func (f *fakeVectors) Info(ctx context.Context) (domain.CollectionInfo, error) {
	return f.info, f.infoErr
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

type fakeReranker struct {
	ranked []domain.RankedIndex
	err    error
	calls  int
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, documents []string) ([]domain.RankedIndex, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.ranked != nil {
		return f.ranked, nil
	}
	out := make([]domain.RankedIndex, len(documents))
	for i := range documents {
		out[i] = domain.RankedIndex{Index: i, Score: 1}
	}
	return out, nil
}

type fakeSafety struct {
	toxic bool
	err   error
}

func (f *fakeSafety) CheckToxicity(ctx context.Context, message string) (bool, domain.TokenUsage, error) {
	return f.toxic, domain.TokenUsage{PromptTokens: 5, CompletionTokens: 1}, f.err
}

type fakeClassifier struct {
	needs domain.SourceNeeds
	err   error
}

func (f *fakeClassifier) ClassifySources(ctx context.Context, message string, history []domain.ConversationTurn) (domain.SourceNeeds, domain.TokenUsage, error) {
	return f.needs, domain.TokenUsage{PromptTokens: 7, CompletionTokens: 2}, f.err
}

type fakeClarifier struct {
	questions []string
	err       error
}

func (f *fakeClarifier) ClarificationQuestions(ctx context.Context, message string, history []domain.ConversationTurn) ([]string, domain.TokenUsage, error) {
	return f.questions, domain.TokenUsage{PromptTokens: 3, CompletionTokens: 3}, f.err
}

type fakeToolSelector struct {
	call *domain.ToolCall
	err  error
}

func (f *fakeToolSelector) SelectTool(ctx context.Context, message string, catalog []domain.ToolSpec) (*domain.ToolCall, domain.TokenUsage, error) {
	return f.call, domain.TokenUsage{PromptTokens: 4, CompletionTokens: 2}, f.err
}

type fakeCity struct {
	result  string
	err     error
	invoked []domain.ToolCall
}

func (f *fakeCity) Catalog() []domain.ToolSpec {
	return []domain.ToolSpec{{Name: "find_nearest_mfc"}}
}

func (f *fakeCity) Invoke(ctx context.Context, call domain.ToolCall) (string, error) {
	f.invoked = append(f.invoked, call)
	return f.result, f.err
}

type fakeWeb struct {
	results []domain.WebSearchResult
	err     error
	calls   int
}

func (f *fakeWeb) Search(ctx context.Context, query string) ([]domain.WebSearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, contextBlock string, history []domain.ConversationTurn, question string) (string, domain.TokenUsage, error) {
	return f.answer, domain.TokenUsage{PromptTokens: 30, CompletionTokens: 10}, f.err
}

func (f *fakeGenerator) GenerateFromPrompt(ctx context.Context, prompt string) (string, domain.TokenUsage, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, domain.TokenUsage{PromptTokens: 30, CompletionTokens: 10}, f.err
}

type fakePrompts struct{}

func (fakePrompts) Render(name string, args map[string]any) (string, error) {
	if len(args) == 0 {
		return name, nil
	}
	return fmt.Sprintf("%s %v", name, args), nil
}

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(filename string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(data), nil
}

// wordChunker splits on whitespace into windows of size words, no overlap.
type wordChunker struct {
	size int
}

func (c wordChunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	size := c.size
	if size <= 0 {
		size = 100
	}
	var out []string
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

func (c wordChunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}

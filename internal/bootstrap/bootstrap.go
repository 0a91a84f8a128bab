package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorsovet/urban-advisor/internal/config"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
	"github.com/gorsovet/urban-advisor/internal/core/usecase"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/chunking"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/cityapi"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/extractor"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/index/bm25"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/llm/ollama"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/morph"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/prompts"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/queue/nats"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/rerank"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/resilience"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/vector/qdrant"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/websearch/tavily"
	"github.com/gorsovet/urban-advisor/internal/observability/logging"
	"github.com/gorsovet/urban-advisor/internal/observability/metrics"
)

// App wires the full dependency graph once; api and indexer each pick the
// pieces they serve.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       *nats.Queue
	Knowledge   *usecase.KnowledgeBase
	Answer      *usecase.AnswerService
	Advisor     *usecase.Advisor
	Ingestor    *usecase.Ingestor
	Extractor   ports.TextExtractor
	Chunker     ports.Chunker
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorSize)
	if err := vectors.Ping(ctx); err != nil {
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	lexical := bm25.New(cfg.BM25DataDir, cfg.LexicalTopK, morph.NewStemmer())

	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(llmClient, cfg.EmbedBatchSize)

	promptStore, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	knowledge := usecase.NewKnowledgeBase(lexical, vectors, embedder, cfg.SemanticTopK)
	if err := knowledge.Sync(ctx); err != nil {
		return nil, fmt.Errorf("sync knowledge base: %w", err)
	}

	var reranker ports.Reranker
	if cfg.RerankerURL != "" {
		reranker = rerank.NewRemote(cfg.RerankerURL, cfg.RerankTopN)
	} else {
		slog.Info("reranker_local_fallback")
		reranker = rerank.NewLocal()
	}

	safety := ollama.NewSafetyAgent(llmClient, promptStore)
	router := ollama.NewRouterAgent(llmClient, promptStore)
	clarifier := ollama.NewClarificationAgent(llmClient, promptStore)
	toolAgent := ollama.NewToolAgent(llmClient, promptStore)
	generator := ollama.NewGenerator(llmClient, promptStore)

	city, err := cityapi.New(cfg.CityGeoAPIURL, cfg.CityMainAPIURL, cfg.CityAPITimeout, executor)
	if err != nil {
		return nil, fmt.Errorf("build city gateway: %w", err)
	}
	web := tavily.New(cfg.TavilyAPIKey, cfg.TavilyMaxResults, cfg.TavilySearchDepth)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extract := extractor.New()

	httpMetrics := metrics.NewHTTPServerMetrics(service)

	coordinator := usecase.NewRetrievalCoordinator(
		knowledge, reranker, toolAgent, city, web,
		cfg.RetrievalTaskTimeout, cfg.ContextTopN,
	)
	coordinator.SetObserver(retrievalMetricsObserver{metrics: httpMetrics, service: service})

	assembler := usecase.NewContextAssembler(promptStore, generator, chunker, cfg.HistoryTokenBudget)

	advisor := usecase.NewAdvisor(
		safety, router, clarifier, extract, chunker,
		coordinator, assembler, generator,
		cfg.PipelineDeadline, cfg.HistoryKeepOnClarify,
	)

	answer := usecase.NewAnswerService(knowledge, reranker, generator, promptStore, cfg.ContextTopN)
	ingestor := usecase.NewIngestor(knowledge, chunker)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:       queue,
		Knowledge:   knowledge,
		Answer:      answer,
		Advisor:     advisor,
		Ingestor:    ingestor,
		Extractor:   extract,
		Chunker:     chunker,
		HTTPMetrics: httpMetrics,

		closeFn: func() {
			queue.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

type retrievalMetricsObserver struct {
	metrics *metrics.HTTPServerMetrics
	service string
}

func (o retrievalMetricsObserver) RetrievalTaskFinished(source string, err error) {
	o.metrics.RecordRetrievalTask(o.service, source, err)
}

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	QdrantURL        string
	QdrantCollection string
	VectorSize       int
	SemanticTopK     int

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	EmbedBatchSize   int

	BM25DataDir string
	LexicalTopK int

	RerankerURL string
	RerankTopN  int
	ContextTopN int

	TavilyAPIKey      string
	TavilyMaxResults  int
	TavilySearchDepth string

	CityGeoAPIURL  string
	CityMainAPIURL string
	CityAPITimeout time.Duration

	NATSURL     string
	NATSSubject string

	PromptsPath string

	ChunkSize    int
	ChunkOverlap int

	HistoryTokenBudget   int
	HistoryKeepOnClarify bool
	RetrievalTaskTimeout time.Duration
	PipelineDeadline     time.Duration

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxConcurrent    int
	APIBackpressureWait time.Duration

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "knowledge_base"),
		VectorSize:       mustEnvInt("QDRANT_VECTOR_SIZE", 768),
		SemanticTopK:     mustEnvInt("SEMANTIC_TOP_K", 10),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		EmbedBatchSize:   mustEnvInt("EMBED_BATCH_SIZE", 16),

		BM25DataDir: mustEnv("BM25_DATA_DIR", "./data/bm25"),
		LexicalTopK: mustEnvInt("LEXICAL_TOP_K", 10),

		RerankerURL: mustEnv("RERANKER_URL", ""),
		RerankTopN:  mustEnvInt("RERANK_TOP_N", 10),
		ContextTopN: mustEnvInt("CONTEXT_TOP_N", 5),

		TavilyAPIKey:      mustEnv("TAVILY_API_KEY", ""),
		TavilyMaxResults:  mustEnvInt("TAVILY_MAX_RESULTS", 5),
		TavilySearchDepth: mustEnv("TAVILY_SEARCH_DEPTH", "basic"),

		CityGeoAPIURL:  mustEnv("CITY_GEO_API_URL", "https://yazzh-geo.gate.petersburg.ru/api/v2"),
		CityMainAPIURL: mustEnv("CITY_MAIN_API_URL", "https://yazzh.gate.petersburg.ru"),
		CityAPITimeout: mustEnvDuration("CITY_API_TIMEOUT", 10*time.Second),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "knowledge.chunks"),

		PromptsPath: mustEnv("PROMPTS_PATH", "./configs/prompts.yml"),

		ChunkSize:    mustEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap: mustEnvInt("CHUNK_OVERLAP", 64),

		HistoryTokenBudget:   mustEnvInt("HISTORY_TOKEN_BUDGET", 4000),
		HistoryKeepOnClarify: mustEnvBool("HISTORY_KEEP_ON_CLARIFY", false),
		RetrievalTaskTimeout: mustEnvDuration("RETRIEVAL_TASK_TIMEOUT", 30*time.Second),
		PipelineDeadline:     mustEnvDuration("PIPELINE_DEADLINE", 90*time.Second),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxConcurrent:    mustEnvInt("API_MAX_CONCURRENT", 64),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 200*time.Millisecond),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

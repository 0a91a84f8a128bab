package ports

import (
	"context"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

// AnswerService is the inbound contract for the ungated hybrid-retrieval
// answer path (GET /get_answer). Toxicity and clarity are assumed handled
// upstream.
type AnswerService interface {
	GetAnswer(ctx context.Context, question string) (string, domain.TokenUsage, error)
}

// AdvisorPipeline is the inbound contract for the full gated pipeline.
type AdvisorPipeline interface {
	Run(ctx context.Context, message string, history []domain.ConversationTurn, files []domain.UploadedFile) (*domain.PipelineResult, error)
}

// KnowledgeIngestor accepts raw pages or uploaded documents, chunks them and
// writes the accepted chunks into both indexes.
type KnowledgeIngestor interface {
	IngestDirectory(ctx context.Context, dir string) (int, error)
	IngestRecords(ctx context.Context, records []domain.IngestRecord) (int, error)
}

// KnowledgeAdmin is the inbound contract for the admin surface.
type KnowledgeAdmin interface {
	Clear(ctx context.Context) error
	Info(ctx context.Context) (domain.CollectionInfo, error)
}

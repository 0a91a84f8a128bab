package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// Advisor drives one message through the staged pipeline. Stages advance via
// an exhaustive switch over the stage enum; the loop stops at the first
// terminal stage or the pipeline deadline.
type Advisor struct {
	safety     ports.SafetyClassifier
	classifier ports.SourceClassifier
	clarifier  ports.ClarificationWriter
	extractor  ports.TextExtractor
	chunker    ports.Chunker

	coordinator *RetrievalCoordinator
	assembler   *ContextAssembler
	generator   ports.AnswerGenerator

	deadline             time.Duration
	keepHistoryOnClarify bool
}

func NewAdvisor(
	safety ports.SafetyClassifier,
	classifier ports.SourceClassifier,
	clarifier ports.ClarificationWriter,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	coordinator *RetrievalCoordinator,
	assembler *ContextAssembler,
	generator ports.AnswerGenerator,
	deadline time.Duration,
	keepHistoryOnClarify bool,
) *Advisor {
	if deadline <= 0 {
		deadline = 90 * time.Second
	}
	return &Advisor{
		safety:               safety,
		classifier:           classifier,
		clarifier:            clarifier,
		extractor:            extractor,
		chunker:              chunker,
		coordinator:          coordinator,
		assembler:            assembler,
		generator:            generator,
		deadline:             deadline,
		keepHistoryOnClarify: keepHistoryOnClarify,
	}
}

func (p *Advisor) Run(ctx context.Context, message string, history []domain.ConversationTurn, files []domain.UploadedFile) (*domain.PipelineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	state := &domain.PipelineState{
		Stage:         domain.StageIntake,
		Message:       message,
		History:       history,
		UploadedFiles: files,
	}

	for !state.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline deadline at stage %s: %w", state.Stage, err)
		}
		next, err := p.step(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", state.Stage, err)
		}
		slog.Debug("pipeline_transition", "from", state.Stage.String(), "to", next.String())
		state.Stage = next
	}

	return &domain.PipelineResult{
		Outcome:                state.Stage.String(),
		Response:               state.Response,
		ClarificationQuestions: state.ClarificationQuestions,
		History:                state.History,
		Tokens:                 state.Tokens,
	}, nil
}

func (p *Advisor) step(ctx context.Context, state *domain.PipelineState) (domain.PipelineStage, error) {
	switch state.Stage {
	case domain.StageIntake:
		if strings.TrimSpace(state.Message) == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "pipeline",
				fmt.Errorf("empty message"))
		}
		return domain.StageSafetyCheck, nil

	case domain.StageSafetyCheck:
		toxic, usage, err := p.safety.CheckToxicity(ctx, state.Message)
		state.Tokens.Add(usage)
		if err != nil {
			return 0, err
		}
		state.IsToxic = toxic
		if toxic {
			// History is deliberately untouched on this branch.
			return domain.EndedToxic, nil
		}
		return domain.StageDocumentIntake, nil

	case domain.StageDocumentIntake:
		p.intakeDocuments(state)
		return domain.StageClassifySources, nil

	case domain.StageClassifySources:
		needs, usage, err := p.classifier.ClassifySources(ctx, state.Message, state.History)
		state.Tokens.Add(usage)
		if err != nil {
			return 0, err
		}
		state.NeedsKnowledgeBase = needs.NeedsKnowledgeBase
		state.NeedsLiveAPI = needs.NeedsLiveAPI
		state.NeedsWebSearch = needs.NeedsWebSearch
		state.IsClear = needs.IsClear
		if !needs.IsClear {
			return domain.StageClarify, nil
		}
		return domain.StageRetrieve, nil

	case domain.StageClarify:
		questions, usage, err := p.clarifier.ClarificationQuestions(ctx, state.Message, state.History)
		state.Tokens.Add(usage)
		if err != nil {
			return 0, err
		}
		if len(questions) == 0 {
			// The clarification pass found nothing to ask; continue.
			return domain.StageRetrieve, nil
		}
		state.ClarificationQuestions = questions
		if p.keepHistoryOnClarify {
			state.History = append(state.History, domain.ConversationTurn{
				Role:    domain.RoleUser,
				Content: state.Message,
			})
		}
		return domain.EndedNeedsClarification, nil

	case domain.StageRetrieve:
		outcome := p.coordinator.Retrieve(ctx, state.Message, domain.SourceNeeds{
			NeedsKnowledgeBase: state.NeedsKnowledgeBase,
			NeedsLiveAPI:       state.NeedsLiveAPI,
			NeedsWebSearch:     state.NeedsWebSearch,
			IsClear:            state.IsClear,
		})
		state.Tokens.Add(outcome.Tokens)
		state.KnowledgeContext = outcome.KnowledgeContext
		state.APIResult = outcome.APIResult
		state.WebResults = outcome.WebResults
		return domain.StageAssembleContext, nil

	case domain.StageAssembleContext:
		systemPrompt, err := p.assembler.SystemPrompt()
		if err != nil {
			return 0, err
		}
		state.SystemPrompt = systemPrompt

		contextBlock, usage, err := p.assembler.BuildContext(ctx, state)
		state.Tokens.Add(usage)
		if err != nil {
			return 0, err
		}
		state.Context = contextBlock

		state.History = append(state.History, domain.ConversationTurn{
			Role:    domain.RoleUser,
			Content: state.Message,
		})
		state.History = p.assembler.TrimHistory(state.History)
		return domain.StageGenerate, nil

	case domain.StageGenerate:
		answer, usage, err := p.generator.Generate(ctx, state.SystemPrompt, state.Context, state.History, state.Message)
		state.Tokens.Add(usage)
		if err != nil {
			return 0, err
		}
		if strings.TrimSpace(answer) == "" {
			return 0, domain.WrapError(domain.ErrSourceUnavailable, "generate",
				fmt.Errorf("model returned an empty answer"))
		}
		state.Response = answer
		state.History = append(state.History, domain.ConversationTurn{
			Role:    domain.RoleAssistant,
			Content: answer,
		})
		return domain.EndedWithResponse, nil

	case domain.EndedToxic, domain.EndedNeedsClarification, domain.EndedWithResponse:
		return state.Stage, nil

	default:
		return 0, fmt.Errorf("unknown pipeline stage %d", state.Stage)
	}
}

// intakeDocuments extracts uploaded files into user-document chunks. A file
// that cannot be parsed is skipped; the rest of the batch still counts.
func (p *Advisor) intakeDocuments(state *domain.PipelineState) {
	for _, file := range state.UploadedFiles {
		text, err := p.extractor.Extract(file.Filename, file.Data)
		if err != nil {
			slog.Warn("uploaded_file_skipped", "filename", file.Filename, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			slog.Warn("uploaded_file_empty", "filename", file.Filename)
			continue
		}
		for i, part := range p.chunker.Split(text) {
			state.UserDocuments = append(state.UserDocuments, domain.Chunk{
				ID:             newChunkID(),
				Text:           part,
				SourceFilename: file.Filename,
				ChunkID:        fmt.Sprintf("%s#%d", file.Filename, i),
			})
		}
	}
	state.HasUserDocuments = len(state.UserDocuments) > 0
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
)

// RetrievalCoordinator fans the retrieve stage out to the knowledge base,
// the city API and web search. Tasks run concurrently under a per-task
// timeout; a failed task leaves its result slot empty and never poisons the
// other two.
type RetrievalCoordinator struct {
	kb           *KnowledgeBase
	reranker     ports.Reranker
	toolSelector ports.ToolSelector
	city         ports.CityGateway
	web          ports.WebSearcher

	taskTimeout time.Duration
	excerptTopN int

	observer RetrievalObserver
}

// RetrievalObserver is notified after each fan-out task finishes. Used for
// metrics; nil means no observation.
type RetrievalObserver interface {
	RetrievalTaskFinished(source string, err error)
}

func NewRetrievalCoordinator(
	kb *KnowledgeBase,
	reranker ports.Reranker,
	toolSelector ports.ToolSelector,
	city ports.CityGateway,
	web ports.WebSearcher,
	taskTimeout time.Duration,
	excerptTopN int,
) *RetrievalCoordinator {
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	if excerptTopN <= 0 {
		excerptTopN = 5
	}
	return &RetrievalCoordinator{
		kb:           kb,
		reranker:     reranker,
		toolSelector: toolSelector,
		city:         city,
		web:          web,
		taskTimeout:  taskTimeout,
		excerptTopN:  excerptTopN,
	}
}

// RetrievalOutcome carries the disjoint result slots of one fan-out. Each
// slot records its own error; the caller decides how much absence it can
// tolerate.
type RetrievalOutcome struct {
	KnowledgeContext string
	KnowledgeErr     error

	APIResult string
	APIErr    error

	WebResults []domain.WebSearchResult
	WebErr     error

	Tokens domain.TokenUsage
}

// Retrieve runs the fan-out for one message. The knowledge-base lookup runs
// on every call; city API and web search only when their need flags are set.
func (c *RetrievalCoordinator) Retrieve(ctx context.Context, message string, needs domain.SourceNeeds) RetrievalOutcome {
	var outcome RetrievalOutcome
	var toolUsage domain.TokenUsage

	var g errgroup.Group

	g.Go(func() error {
		taskCtx, cancel := context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
		outcome.KnowledgeContext, outcome.KnowledgeErr = c.knowledgeTask(taskCtx, message)
		if outcome.KnowledgeErr != nil {
			slog.Warn("retrieval_task_failed", "source", "knowledge_base", "error", outcome.KnowledgeErr)
		}
		c.observe("knowledge_base", outcome.KnowledgeErr)
		return nil
	})

	if needs.NeedsLiveAPI {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, c.taskTimeout)
			defer cancel()
			outcome.APIResult, toolUsage, outcome.APIErr = c.cityTask(taskCtx, message)
			if outcome.APIErr != nil {
				slog.Warn("retrieval_task_failed", "source", "city_api", "error", outcome.APIErr)
			}
			c.observe("city_api", outcome.APIErr)
			return nil
		})
	}

	if needs.NeedsWebSearch {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, c.taskTimeout)
			defer cancel()
			outcome.WebResults, outcome.WebErr = c.web.Search(taskCtx, message)
			if outcome.WebErr != nil {
				slog.Warn("retrieval_task_failed", "source", "web_search", "error", outcome.WebErr)
			}
			c.observe("web_search", outcome.WebErr)
			return nil
		})
	}

	g.Wait()
	outcome.Tokens.Add(toolUsage)
	return outcome
}

// SetObserver attaches the task observer. Not safe to call after Retrieve
// has started.
func (c *RetrievalCoordinator) SetObserver(observer RetrievalObserver) {
	c.observer = observer
}

func (c *RetrievalCoordinator) observe(source string, err error) {
	if c.observer != nil {
		c.observer.RetrievalTaskFinished(source, err)
	}
}

// knowledgeTask serializes the reranked hybrid hits into tagged excerpts.
func (c *RetrievalCoordinator) knowledgeTask(ctx context.Context, message string) (string, error) {
	candidates, err := c.kb.HybridSearch(ctx, message)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}

	ordered := rerankOrKeepOrder(ctx, c.reranker, message, candidates)
	if len(ordered) > c.excerptTopN {
		ordered = ordered[:c.excerptTopN]
	}

	var sb strings.Builder
	for i, candidate := range ordered {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := candidate.Chunk.Title
		if title == "" {
			title = candidate.Chunk.SourceFilename
		}
		fmt.Fprintf(&sb, "[Источник: %s]", title)
		if candidate.Chunk.SourceURL != "" {
			fmt.Fprintf(&sb, " (%s)", candidate.Chunk.SourceURL)
		}
		sb.WriteString("\n")
		sb.WriteString(candidate.Chunk.Text)
	}
	return sb.String(), nil
}

// cityTask selects one tool for the message and invokes it.
func (c *RetrievalCoordinator) cityTask(ctx context.Context, message string) (string, domain.TokenUsage, error) {
	call, usage, err := c.toolSelector.SelectTool(ctx, message, c.city.Catalog())
	if err != nil {
		return "", usage, err
	}
	if call == nil {
		slog.Info("city_tool_not_selected")
		return "", usage, nil
	}

	result, err := c.city.Invoke(ctx, *call)
	if err != nil {
		return "", usage, err
	}
	return result, usage, nil
}

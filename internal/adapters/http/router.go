package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorsovet/urban-advisor/internal/config"
	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/core/ports"
	"github.com/gorsovet/urban-advisor/internal/observability/metrics"
)

const (
	serviceName      = "api"
	defaultSessionID = "default"
)

type Router struct {
	answer    ports.AnswerService
	pipeline  ports.AdvisorPipeline
	admin     ports.KnowledgeAdmin
	queue     ports.IngestQueue
	extractor ports.TextExtractor
	chunker   ports.Chunker
	sessions  ports.ConversationStore
	metrics   *metrics.HTTPServerMetrics

	cfg config.Config
}

func NewRouter(
	cfg config.Config,
	answer ports.AnswerService,
	pipeline ports.AdvisorPipeline,
	admin ports.KnowledgeAdmin,
	queue ports.IngestQueue,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	sessions ports.ConversationStore,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	if serverMetrics == nil {
		serverMetrics = metrics.NewHTTPServerMetrics(serviceName)
	}
	return &Router{
		answer:    answer,
		pipeline:  pipeline,
		admin:     admin,
		queue:     queue,
		extractor: extractor,
		chunker:   chunker,
		sessions:  sessions,
		metrics:   serverMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/api/v1/get_answer", rt.getAnswer)
	mux.HandleFunc("/api/v1/clear", rt.clearKnowledge)
	mux.HandleFunc("/api/v1/info", rt.collectionInfo)
	mux.HandleFunc("/api/v1/message", rt.postMessage)
	mux.HandleFunc("/api/v1/upload", rt.uploadDocuments)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	question := strings.TrimSpace(r.URL.Query().Get("user_question"))
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'user_question' is required"})
		return
	}

	answer, usage, err := rt.answer.GetAnswer(r.Context(), question)
	rt.metrics.RecordAnswerRequest(serviceName, err)
	rt.metrics.RecordTokenUsage(serviceName, "get_answer", usage)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer": answer,
		"tokens": usage,
	})
}

// clearKnowledge wipes both retrieval engines. An optional session_id also
// drops that dialogue history.
func (rt *Router) clearKnowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := rt.admin.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if sessionID := strings.TrimSpace(r.URL.Query().Get("session_id")); sessionID != "" {
		rt.sessions.Clear(sessionID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "база знаний очищена",
	})
}

func (rt *Router) collectionInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	info, err := rt.admin.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"collection_name": info.Name,
		"documents_count": info.PointsCount,
		"vectors_count":   info.VectorsCount,
		"status":          info.Status,
	})
}

type messageRequest struct {
	Message   string                    `json:"message"`
	SessionID string                    `json:"session_id"`
	History   []domain.ConversationTurn `json:"history"`

	UploadedFiles []uploadedFilePayload `json:"uploaded_files"`
}

type uploadedFilePayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	sessionID := sessionIDOrDefault(req.SessionID)
	history := req.History
	if history == nil {
		history = rt.sessions.History(sessionID)
	}

	files := make([]domain.UploadedFile, 0, len(req.UploadedFiles))
	for _, f := range req.UploadedFiles {
		files = append(files, domain.UploadedFile{
			Filename: f.Filename,
			Data:     []byte(f.Content),
		})
	}

	start := time.Now()
	result, err := rt.pipeline.Run(r.Context(), req.Message, history, files)
	if err != nil {
		rt.metrics.RecordPipelineRun(serviceName, "error", time.Since(start))
		writeError(w, err)
		return
	}
	rt.metrics.RecordPipelineRun(serviceName, result.Outcome, time.Since(start))
	rt.metrics.RecordTokenUsage(serviceName, "message", result.Tokens)

	rt.sessions.Save(sessionID, result.History)

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	var (
		records     []domain.IngestRecord
		totalChunks int
		processed   int
	)
	for _, header := range uploads {
		file, err := header.Open()
		if err != nil {
			slog.Warn("upload_open_failed", "filename", header.Filename, "error", err)
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			slog.Warn("upload_read_failed", "filename", header.Filename, "error", err)
			continue
		}

		text, err := rt.extractor.Extract(header.Filename, data)
		if err != nil || strings.TrimSpace(text) == "" {
			slog.Warn("upload_extract_failed", "filename", header.Filename, "error", err)
			continue
		}

		records = append(records, domain.IngestRecord{
			Text:     text,
			Filename: header.Filename,
		})
		totalChunks += len(rt.chunker.Split(text))
		processed++
	}

	if len(records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no readable documents in upload"})
		return
	}

	if err := rt.queue.PublishBatch(r.Context(), records); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("принято документов: %d", processed),
		"total_chunks":    totalChunks,
		"files_processed": processed,
		"total_files":     len(uploads),
	})
}

func sessionIDOrDefault(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return defaultSessionID
	}
	return sessionID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

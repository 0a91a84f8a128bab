package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorsovet/urban-advisor/internal/config"
	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

type fakeAnswerService struct {
	answer string
	err    error
}

func (f fakeAnswerService) GetAnswer(context.Context, string) (string, domain.TokenUsage, error) {
	return f.answer, domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5}, f.err
}

type fakePipeline struct {
	result *domain.PipelineResult
	err    error

	gotMessage string
	gotHistory []domain.ConversationTurn
	gotFiles   []domain.UploadedFile
}

func (f *fakePipeline) Run(_ context.Context, message string, history []domain.ConversationTurn, files []domain.UploadedFile) (*domain.PipelineResult, error) {
	f.gotMessage = message
	f.gotHistory = history
	f.gotFiles = files
	return f.result, f.err
}

type fakeAdmin struct {
	info    domain.CollectionInfo
	err     error
	cleared int
}

func (f *fakeAdmin) Clear(context.Context) error {
	f.cleared++
	return f.err
}

func (f *fakeAdmin) Info(context.Context) (domain.CollectionInfo, error) {
	return f.info, f.err
}

type fakeQueue struct {
	published [][]domain.IngestRecord
	err       error
}

func (f *fakeQueue) PublishBatch(_ context.Context, records []domain.IngestRecord) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, records)
	return nil
}

func (f *fakeQueue) SubscribeBatches(context.Context, func(context.Context, []domain.IngestRecord) error) error {
	return nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(_ string, data []byte) (string, error) {
	return string(data), nil
}

type wordChunker struct{}

func (wordChunker) Split(text string) []string {
	return strings.Fields(text)
}

func (wordChunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}

type routerFixture struct {
	answer   fakeAnswerService
	pipeline *fakePipeline
	admin    *fakeAdmin
	queue    *fakeQueue
	sessions *SessionStore
}

func newTestRouter(cfg config.Config, fx *routerFixture) http.Handler {
	if fx.pipeline == nil {
		fx.pipeline = &fakePipeline{result: &domain.PipelineResult{Outcome: "ended_with_response"}}
	}
	if fx.admin == nil {
		fx.admin = &fakeAdmin{}
	}
	if fx.queue == nil {
		fx.queue = &fakeQueue{}
	}
	if fx.sessions == nil {
		fx.sessions = NewSessionStore()
	}
	router := NewRouter(cfg, fx.answer, fx.pipeline, fx.admin, fx.queue, passthroughExtractor{}, wordChunker{}, fx.sessions, nil)
	return router.Handler()
}

func TestGetAnswerReturnsAnswer(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{
		answer: fakeAnswerService{answer: "МФЦ работает до 21:00"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/get_answer?user_question=когда+работает+мфц", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["answer"] != "МФЦ работает до 21:00" {
		t.Fatalf("unexpected answer: %v", resp["answer"])
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id header must be set")
	}
}

func TestGetAnswerRequiresQuestion(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/get_answer", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetAnswerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not_found", domain.WrapError(domain.ErrNotFound, "answer", context.DeadlineExceeded), http.StatusNotFound},
		{"unavailable", domain.WrapError(domain.ErrSourceUnavailable, "answer", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "answer", context.DeadlineExceeded), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(config.Config{}, &routerFixture{
				answer: fakeAnswerService{err: tc.err},
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/get_answer?user_question=вопрос", nil)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestClearWipesKnowledgeBase(t *testing.T) {
	admin := &fakeAdmin{}
	sessions := NewSessionStore()
	sessions.Save("u1", []domain.ConversationTurn{{Role: domain.RoleUser, Content: "вопрос"}})
	handler := newTestRouter(config.Config{}, &routerFixture{admin: admin, sessions: sessions})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/clear?session_id=u1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("expected success=true, got %v", resp)
	}
	if admin.cleared != 1 {
		t.Fatalf("both indexes must be cleared once, got %d", admin.cleared)
	}
	if len(sessions.History("u1")) != 0 {
		t.Fatalf("named session history must be gone")
	}
}

func TestClearRejectsWrongMethod(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clear", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestInfoReportsCollection(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{
		admin: &fakeAdmin{info: domain.CollectionInfo{
			Name:         "knowledge_base",
			PointsCount:  120,
			VectorsCount: 120,
			Status:       "green",
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["collection_name"] != "knowledge_base" {
		t.Fatalf("unexpected collection name: %v", resp)
	}
	if resp["documents_count"].(float64) != 120 {
		t.Fatalf("unexpected documents count: %v", resp)
	}
}

func TestMessageRunsPipelineAndSavesHistory(t *testing.T) {
	sessions := NewSessionStore()
	pipeline := &fakePipeline{result: &domain.PipelineResult{
		Outcome:  "ended_with_response",
		Response: "ответ",
		History: []domain.ConversationTurn{
			{Role: domain.RoleUser, Content: "вопрос"},
			{Role: domain.RoleAssistant, Content: "ответ"},
		},
	}}
	handler := newTestRouter(config.Config{}, &routerFixture{pipeline: pipeline, sessions: sessions})

	body := `{"message":"вопрос","session_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp domain.PipelineResult
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "ended_with_response" || resp.Response != "ответ" {
		t.Fatalf("unexpected result: %+v", resp)
	}
	if len(sessions.History("u1")) != 2 {
		t.Fatalf("pipeline history must be saved to the session")
	}
}

func TestMessageUsesStoredHistory(t *testing.T) {
	sessions := NewSessionStore()
	sessions.Save("u1", []domain.ConversationTurn{{Role: domain.RoleUser, Content: "прошлый вопрос"}})
	pipeline := &fakePipeline{result: &domain.PipelineResult{Outcome: "ended_with_response"}}
	handler := newTestRouter(config.Config{}, &routerFixture{pipeline: pipeline, sessions: sessions})

	body := `{"message":"а теперь уточняю","session_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(pipeline.gotHistory) != 1 || pipeline.gotHistory[0].Content != "прошлый вопрос" {
		t.Fatalf("stored history must reach the pipeline: %+v", pipeline.gotHistory)
	}
}

func TestMessageClarificationOutcome(t *testing.T) {
	pipeline := &fakePipeline{result: &domain.PipelineResult{
		Outcome:                "ended_needs_clarification",
		ClarificationQuestions: []string{"Какой у вас район?"},
	}}
	handler := newTestRouter(config.Config{}, &routerFixture{pipeline: pipeline})

	body := `{"message":"где школа"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var resp domain.PipelineResult
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "ended_needs_clarification" || len(resp.ClarificationQuestions) != 1 {
		t.Fatalf("unexpected result: %+v", resp)
	}
}

func TestMessageRequiresBody(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", strings.NewReader(`{"message":"  "}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadPublishesRecords(t *testing.T) {
	queue := &fakeQueue{}
	handler := newTestRouter(config.Config{}, &routerFixture{queue: queue})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, _ := form.CreateFormFile("files", "mfc.txt")
	part.Write([]byte("часы работы МФЦ с девяти до девяти"))
	part2, _ := form.CreateFormFile("files", "schools.txt")
	part2.Write([]byte("школы Невского района"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["files_processed"].(float64) != 2 || resp["total_files"].(float64) != 2 {
		t.Fatalf("unexpected counters: %v", resp)
	}
	if resp["total_chunks"].(float64) != 10 {
		t.Fatalf("expected 10 word chunks, got %v", resp["total_chunks"])
	}
	if len(queue.published) != 1 || len(queue.published[0]) != 2 {
		t.Fatalf("both records must be published in one batch: %+v", queue.published)
	}
	if queue.published[0][0].Filename != "mfc.txt" {
		t.Fatalf("record filename must survive: %+v", queue.published[0][0])
	}
}

func TestUploadWithoutFilesIsRejected(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("comment", "no files here")
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(config.Config{}, &routerFixture{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

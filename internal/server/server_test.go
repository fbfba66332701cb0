package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/internal/answerlog"
	"github.com/mohammad-safakhou/pdfbot/internal/chatwoot"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/internal/document/documenttest"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(context.Context, []models.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

type testEnv struct {
	cfg    *config.Config
	srv    *Server
	log    *answerlog.Log
	store  *document.Store
	llm    *stubLLM
	bridge *chatwoot.Bridge
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8000, PublicURL: "http://localhost:8000", BodyLimit: "4M"},
		LLM:      config.LLMConfig{Type: "gemini", Model: "gemini-1.5-flash"},
		Chatwoot: config.ChatwootConfig{URL: "https://app.chatwoot.com"},
		Dedup:    config.DedupConfig{Backend: config.DedupMemory, TTL: time.Minute},
	}
	metrics := telemetry.New()
	log := answerlog.New()
	store := document.NewStore(nil, 1000, 200, metrics)
	llm := &stubLLM{reply: "Paris is the capital."}
	svc := answering.New(store, llm, log, answering.Options{TopK: 4, MaxRetries: 1, RetryBackoff: time.Millisecond, NoKnowledgeMessage: "Upload a PDF first."})
	bridge := chatwoot.NewBridge(svc, nil, chatwoot.NewMemoryDeduper(time.Minute), metrics)
	srv := New(Deps{Config: cfg, Documents: store, Answerer: svc, Log: log, Webhooks: bridge, Metrics: metrics})
	return &testEnv{cfg: cfg, srv: srv, log: log, store: store, llm: llm, bridge: bridge}
}

func (env *testEnv) do(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	return env.do(http.MethodPost, path, echo.MIMEApplicationJSON, []byte(body))
}

func uploadBody(t *testing.T, files map[string][]byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAnswersAllEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/answers/all", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"answers":[]`) {
		t.Fatalf("expected empty answers array, got %s", rec.Body.String())
	}
	if got := decode(t, rec)["total_answers"]; got != float64(0) {
		t.Fatalf("expected total_answers 0, got %v", got)
	}
}

func TestAnswersLatestNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/answers/latest", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if msg, _ := decode(t, rec)["error"].(string); msg == "" {
		t.Fatalf("expected error message, got %s", rec.Body.String())
	}
}

func TestStoreAnswer(t *testing.T) {
	env := newTestEnv(t)
	rec := env.postJSON("/answer", `{"question":"q1","answer":"a1","conversation_id":"c1","timestamp":"2024-05-01T10:00:00.123456"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["total_stored"] != float64(1) {
		t.Fatalf("unexpected response: %v", body)
	}

	rec = env.do(http.MethodGet, "/answers/latest", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var latest latestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if latest.Question != "q1" || latest.Answer != "a1" || latest.Channel != models.ChannelUI {
		t.Fatalf("unexpected latest: %+v", latest)
	}
	if latest.Timestamp.Year() != 2024 || latest.Timestamp.Minute() != 0 {
		t.Fatalf("timestamp not preserved: %v", latest.Timestamp)
	}
}

func TestStoreAnswerValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"missing answer": `{"question":"q1"}`,
		"blank question": `{"question":"  ","answer":"a"}`,
		"bad channel":    `{"question":"q","answer":"a","channel":"fax"}`,
		"bad timestamp":  `{"question":"q","answer":"a","timestamp":"yesterday"}`,
		"malformed":      `{"question":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.postJSON("/answer", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if env.log.Len() != 0 {
		t.Fatalf("nothing should have been stored")
	}
}

func TestChatWithoutDocuments(t *testing.T) {
	env := newTestEnv(t)
	rec := env.postJSON("/chat", `{"question":"What is inside?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := decode(t, rec)["answer"]; got != "Upload a PDF first." {
		t.Fatalf("unexpected answer %v", got)
	}
	if env.llm.calls != 0 {
		t.Fatalf("model should not be called without documents")
	}
	if env.log.Len() != 1 {
		t.Fatalf("expected one record, got %d", env.log.Len())
	}
}

func TestChatEmptyQuestion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.postJSON("/chat", `{"question":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if env.log.Len() != 0 {
		t.Fatalf("nothing should be logged")
	}
}

func TestUploadThenChat(t *testing.T) {
	env := newTestEnv(t)
	body, ct := uploadBody(t, map[string][]byte{"france.pdf": documenttest.PDF("The capital of France is Paris.")})
	rec := env.do(http.MethodPost, "/documents", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["chunks_created"]; got != float64(1) {
		t.Fatalf("expected one chunk, got %v", got)
	}

	rec = env.postJSON("/chat", `{"question":"What is the capital of France?","conversation_id":"c9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: expected 200 got %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if !strings.Contains(resp.Answer, "Paris") || len(resp.Citations) != 1 || resp.ConversationID != "c9" {
		t.Fatalf("unexpected chat response: %+v", resp)
	}

	rec = env.do(http.MethodGet, "/status", "", nil)
	status := decode(t, rec)
	if status["knowledge_base_loaded"] != true || status["total_answers"] != float64(1) {
		t.Fatalf("unexpected status: %v", status)
	}
}

func TestChatModelUnavailable(t *testing.T) {
	env := newTestEnv(t)
	body, ct := uploadBody(t, map[string][]byte{"doc.pdf": documenttest.PDF("Some content about go.")})
	if rec := env.do(http.MethodPost, "/documents", ct, body); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}
	env.llm.err = errors.New("upstream down")

	rec := env.postJSON("/chat", `{"question":"go?"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if env.llm.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", env.llm.calls)
	}
	if env.log.Len() != 0 {
		t.Fatalf("failed answer must not be logged")
	}
}

func TestUploadRejectsUnreadablePDF(t *testing.T) {
	env := newTestEnv(t)
	body, ct := uploadBody(t, map[string][]byte{"broken.pdf": []byte("definitely not a pdf")})
	rec := env.do(http.MethodPost, "/documents", ct, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rec.Code, rec.Body.String())
	}
	if env.store.Status().Loaded() {
		t.Fatalf("store should remain empty")
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	env := newTestEnv(t)
	rec := env.postJSON("/documents", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestWebhookMalformedIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"{not json", `{"content":"x"}`, ""} {
		rec := env.postJSON("/chatwoot-webhook", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if got := decode(t, rec)["status"]; got != "ok" {
			t.Fatalf("expected status ok, got %v", got)
		}
	}
	if env.log.Len() != 0 {
		t.Fatalf("malformed webhook must not append records")
	}
}

func TestWebhookOversizedBodyIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	huge := strings.Repeat("a", 5<<20)
	body := `{"event":"message_created","id":9,"content":"` + huge + `","message_type":"incoming","sender":{"type":"contact"},"conversation":{"id":3}}`

	rec := env.postJSON("/chatwoot-webhook", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook not acknowledged with 200: got %d", rec.Code)
	}
	if got := decode(t, rec)["outcome"]; got != string(chatwoot.OutcomeMalformed) {
		t.Fatalf("expected malformed, got %v", got)
	}
	if env.log.Len() != 0 || env.llm.calls != 0 {
		t.Fatalf("oversized webhook must not be answered")
	}

	rec = env.postJSON("/chat", `{"question":"`+huge+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("other routes keep the body limit, got %d", rec.Code)
	}
}

func TestWebhookAgentMessageIgnored(t *testing.T) {
	env := newTestEnv(t)
	rec := env.postJSON("/chatwoot-webhook", `{"event":"message_created","id":1,"content":"hi","message_type":"outgoing","sender":{"type":"user"},"conversation":{"id":3}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := decode(t, rec)["outcome"]; got != string(chatwoot.OutcomeIgnored) {
		t.Fatalf("expected ignored, got %v", got)
	}
	if env.log.Len() != 0 {
		t.Fatalf("ignored webhook must not append records")
	}
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/", "", nil)
	body := decode(t, rec)
	if body["webhook_url"] != "http://localhost:8000/chatwoot-webhook" {
		t.Fatalf("unexpected webhook hint: %v", body["webhook_url"])
	}
	if _, ok := body["endpoints"].(map[string]interface{}); !ok {
		t.Fatalf("expected endpoints map")
	}

	rec = env.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec = env.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health: %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/ui", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/documents") {
		t.Fatalf("unexpected ui response: %d", rec.Code)
	}
}

func TestMetricsCountRequests(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/answers/latest", "", nil)
	rec := env.do(http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `pdfbot_http_requests_total{method="GET",path="/answers/latest",status="404"} 1`) {
		t.Fatalf("request metric missing:\n%s", rec.Body.String())
	}
}

func TestChatHandlerDirect(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	h := &ChatHandler{Answerer: answererFunc(func(q string) (models.AnswerResult, error) {
		return models.AnswerResult{Text: "echo " + q}, nil
	})}
	if err := h.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"citations":[]`) {
		t.Fatalf("expected empty citations array, got %s", rec.Body.String())
	}
}

type answererFunc func(q string) (models.AnswerResult, error)

func (f answererFunc) Answer(_ context.Context, q string, _ answering.Meta) (models.AnswerResult, error) {
	return f(q)
}

func TestStatusForMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.ErrEmptyQuestion, http.StatusBadRequest},
		{models.ErrInvalidRequest, http.StatusBadRequest},
		{&models.ModelError{Attempts: 2, Err: errors.New("x")}, http.StatusServiceUnavailable},
		{models.ErrNotFound, http.StatusNotFound},
		{&models.ExtractionError{File: "a.pdf"}, http.StatusUnprocessableEntity},
		{&models.RetrievalError{Err: errors.New("x")}, http.StatusServiceUnavailable},
		{echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if code, _ := statusFor(tc.err); code != tc.code {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, code, tc.code)
		}
	}
	if _, msg := statusFor(errors.New("pq: secret table")); strings.Contains(msg, "secret") {
		t.Fatalf("internal error details leaked: %q", msg)
	}
}

type failingRetriever struct{ err error }

func (f failingRetriever) QueryCandidates(context.Context, string, int) ([]document.Candidate, error) {
	return nil, f.err
}

func TestChatRetrievalFailure(t *testing.T) {
	env := newTestEnv(t)
	llm := &stubLLM{reply: "unused"}
	svc := answering.New(failingRetriever{err: errors.New("boom")}, llm, env.log, answering.Options{NoKnowledgeMessage: "none"})
	srv := New(Deps{Config: env.cfg, Documents: env.store, Answerer: svc, Log: env.log, Webhooks: env.bridge, Metrics: telemetry.New()})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"question":"anything?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if msg, _ := decode(t, rec)["error"].(string); strings.Contains(msg, "boom") {
		t.Fatalf("retrieval cause leaked to client: %q", msg)
	}
	if llm.calls != 0 || env.log.Len() != 0 {
		t.Fatalf("failed retrieval must not reach the model or the log")
	}
}

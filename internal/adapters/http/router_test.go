package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

type retrieverFake struct {
	outcome *domain.RetrievalOutcome
	err     error
	got     []domain.RetrievalRequest
}

func (f *retrieverFake) RetrieveAndIndex(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalOutcome, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func (f *retrieverFake) KnownSources() []string { return []string{"FDA", "EMA"} }

type queryFake struct {
	resp  *domain.QueryResponse
	err   error
	got   []domain.QueryRequest
	reset []string
}

func (f *queryFake) ProcessQuery(_ context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *queryFake) ResetSession(id string) { f.reset = append(f.reset, id) }

type statusFake struct{}

func (statusFake) Status() domain.SystemStatus {
	return domain.SystemStatus{Status: "online", AvailableSources: []string{"FDA", "EMA"}}
}

type catalogFake struct {
	docs    []domain.Document
	subject string
	limit   int
}

func (f *catalogFake) ListDocuments(_ context.Context, subject string, limit int) ([]domain.Document, error) {
	f.subject, f.limit = subject, limit
	return f.docs, nil
}

func newTestHandler(opts Options) http.Handler {
	return newTestRouter(&retrieverFake{outcome: &domain.RetrievalOutcome{Status: domain.OutcomeSuccess}}, &queryFake{}, opts).Handler()
}

func newTestRouter(retriever *retrieverFake, queries *queryFake, opts Options) *Router {
	return NewRouter(retriever, queries, statusFake{}, opts)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(Options{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	handler := newTestHandler(Options{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "online" {
		t.Fatalf("unexpected status body %+v", body)
	}
}

func TestRetrievePassesRequestThrough(t *testing.T) {
	retriever := &retrieverFake{outcome: &domain.RetrievalOutcome{Status: domain.OutcomeSuccess, Subject: "aspirin", DocumentsIndexed: 2}}
	handler := newTestRouter(retriever, &queryFake{}, Options{}).Handler()

	res := postJSON(t, handler, "/v1/retrieve", map[string]any{"subject": " aspirin ", "sources": []string{"FDA"}, "max_docs_per_source": 2})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if got := retriever.got[0]; got.Subject != "aspirin" || got.MaxDocsPerSource != 2 || got.Sources[0] != "FDA" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(res.Body.String(), `"documents_indexed":2`) {
		t.Fatalf("unexpected body %s", res.Body.String())
	}
}

func TestRetrieveRequiresSubject(t *testing.T) {
	handler := newTestHandler(Options{})
	if res := postJSON(t, handler, "/v1/retrieve", map[string]any{"subject": ""}); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("no sources")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestRouter(&retrieverFake{err: tc.err}, &queryFake{}, Options{}).Handler()
		if res := postJSON(t, handler, "/v1/retrieve", map[string]any{"subject": "x"}); res.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	queries := &queryFake{resp: &domain.QueryResponse{
		Answer:    domain.Answer{Status: domain.AnswerSuccess, Text: "grounded", Type: domain.AnswerTypeComparison},
		SessionID: "s1",
	}}
	handler := newTestRouter(&retrieverFake{}, queries, Options{}).Handler()

	res := postJSON(t, handler, "/v1/query", map[string]any{"query": "compare aspirin", "session_id": "s1", "sources": []string{"FDA", "EMA"}})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["answer"] != "grounded" || body["session_id"] != "s1" {
		t.Fatalf("unexpected body %+v", body)
	}
	if got := queries.got[0]; len(got.Sources) != 2 || got.SessionID != "s1" {
		t.Fatalf("unexpected forwarded request %+v", got)
	}
}

func TestQueryRejectsInvalidBodies(t *testing.T) {
	handler := newTestHandler(Options{})
	if res := postJSON(t, handler, "/v1/query", map[string]any{"query": "  "}); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}
}

func TestQueryValidatesK(t *testing.T) {
	queries := &queryFake{resp: &domain.QueryResponse{Answer: domain.Answer{Status: domain.AnswerSuccess}}}
	handler := newTestRouter(&retrieverFake{}, queries, Options{}).Handler()

	for _, k := range []int{-1, domain.MaxQueryK + 1} {
		if res := postJSON(t, handler, "/v1/query", map[string]any{"query": "aspirin warnings", "k": k}); res.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for k=%d, got %d", k, res.Code)
		}
	}
	if len(queries.got) != 0 {
		t.Fatalf("rejected requests must not reach the use case, got %d", len(queries.got))
	}

	if res := postJSON(t, handler, "/v1/query", map[string]any{"query": "aspirin warnings", "k": 3}); res.Code != http.StatusOK {
		t.Fatalf("expected 200 for k=3, got %d", res.Code)
	}
	if got := queries.got[0].K; got != 3 {
		t.Fatalf("expected k=3 forwarded, got %d", got)
	}
}

func TestResetSession(t *testing.T) {
	queries := &queryFake{}
	handler := newTestRouter(&retrieverFake{}, queries, Options{}).Handler()

	res := postJSON(t, handler, "/v1/sessions/abc/reset", map[string]any{})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(queries.reset) != 1 || queries.reset[0] != "abc" {
		t.Fatalf("unexpected resets %v", queries.reset)
	}
}

func TestListDocuments(t *testing.T) {
	handler := newTestHandler(Options{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without catalog, got %d", res.Code)
	}

	catalog := &catalogFake{docs: []domain.Document{{FileName: "FDA_aspirin_label.pdf", Source: "FDA"}}}
	handler = newTestHandler(Options{Catalog: catalog})
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents?subject=aspirin&limit=5", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if catalog.subject != "aspirin" || catalog.limit != 5 {
		t.Fatalf("unexpected catalog call %q/%d", catalog.subject, catalog.limit)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents?limit=-1", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

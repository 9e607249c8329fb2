package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareNormalizesSessionPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/reset", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/sessions/{session_id}/reset", "204"))
	if got != 2 {
		t.Fatalf("expected 2 requests under the normalized path, got %v", got)
	}
}

func TestRetrievalMetricsShareRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	r := NewRetrievalMetrics("api", m.Registry())

	r.ObserveDocument("FDA", "indexed", 12)
	r.ObserveDocument("FDA", "failed", 0)
	r.ObservePass("success", 1, 2*time.Second)
	r.ObserveSearch("single", 5, 3*time.Millisecond)
	m.RecordQueryAnswer("api", "comparative", "success", 4, time.Second)

	if got := testutil.ToFloat64(r.fragmentsIngested.WithLabelValues("api", "FDA")); got != 12 {
		t.Fatalf("expected 12 fragments, got %v", got)
	}
	if got := testutil.CollectAndCount(r.searchDuration); got != 1 {
		t.Fatalf("expected one search latency series, got %d", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"regassist_retrieval_passes_total",
		"regassist_retrieval_documents_total",
		"regassist_query_answers_total",
		"regassist_search_duration_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}

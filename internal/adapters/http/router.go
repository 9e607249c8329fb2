package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
	"github.com/kirillkom/regulatory-assistant/internal/observability/metrics"
)

const (
	maxRequestBody      = 1 << 20
	defaultQueueWait    = 250 * time.Millisecond
	defaultCatalogLimit = 50
)

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
	Metrics        *metrics.HTTPServerMetrics
	Catalog        ports.DocumentCatalog
}

type Router struct {
	retriever ports.DocumentRetriever
	queries   ports.QueryService
	status    ports.StatusReader
	opts      Options
}

func NewRouter(
	retriever ports.DocumentRetriever,
	queries ports.QueryService,
	status ports.StatusReader,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = defaultQueueWait
	}
	return &Router{
		retriever: retriever,
		queries:   queries,
		status:    status,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/status", rt.systemStatus)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("POST /v1/query", rt.query)
	mux.HandleFunc("POST /v1/sessions/{id}/reset", rt.resetSession)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.limiter(), rt.rejectHook("rate_limit"))
	handler = backpressureMiddlewareWithHook(handler, rt.opts.MaxInFlight, rt.opts.QueueWait, rt.rejectHook("backpressure"))
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) limiter() *rate.Limiter {
	if rt.opts.RateLimitRPS <= 0 {
		return nil
	}
	burst := rt.opts.RateLimitBurst
	if burst <= 0 {
		burst = int(rt.opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(rt.opts.RateLimitRPS), burst)
}

func (rt *Router) rejectHook(reason string) func() {
	if rt.opts.Metrics == nil {
		return nil
	}
	return func() { rt.opts.Metrics.RecordThrottled(rt.opts.Service, reason) }
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) systemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.status.Status())
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req domain.RetrievalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject is required"})
		return
	}

	outcome, err := rt.retriever.RetrieveAndIndex(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if req.K < 0 || req.K > domain.MaxQueryK {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("k must be between 1 and %d", domain.MaxQueryK)})
		return
	}

	start := time.Now()
	resp, err := rt.queries.ProcessQuery(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordQueryAnswer(rt.opts.Service, answerPath(resp), resp.Status, len(resp.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) resetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}
	rt.queries.ResetSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": id})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "document catalog is disabled"})
		return
	}
	limit := defaultCatalogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	docs, err := rt.opts.Catalog.ListDocuments(r.Context(), strings.TrimSpace(r.URL.Query().Get("subject")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func answerPath(resp *domain.QueryResponse) string {
	switch {
	case resp.Status == domain.AnswerClarification:
		return "clarification"
	case resp.Status == domain.AnswerError:
		return "error"
	case resp.Type == domain.AnswerTypeComparison:
		return "comparative"
	default:
		return "single"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

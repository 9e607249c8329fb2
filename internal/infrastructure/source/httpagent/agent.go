package httpagent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

const (
	defaultLinkPattern   = `(?i)\.pdf($|[?#])`
	defaultMaxCandidates = 10
	maxDownloadBytes     = 64 << 20
)

type Settings struct {
	Name          string
	SearchURL     string
	LinkPattern   string
	TitleKeywords []string
	MaxCandidates int
	RateLimitRPS  float64
	UserAgent     string
}

// Agent discovers document links on an agency search page and downloads them.
type Agent struct {
	name          string
	searchURL     string
	linkPattern   *regexp.Regexp
	titleKeywords []string
	maxCandidates int
	userAgent     string

	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(settings Settings, httpClient *http.Client, executor *resilience.Executor, logger *slog.Logger) (*Agent, error) {
	name := strings.TrimSpace(settings.Name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new source agent", fmt.Errorf("source name is required"))
	}
	if !strings.Contains(settings.SearchURL, "{subject}") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new source agent",
			fmt.Errorf("source %s: search_url must contain {subject}", name))
	}
	pattern := settings.LinkPattern
	if pattern == "" {
		pattern = defaultLinkPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new source agent", fmt.Errorf("source %s: link_pattern: %w", name, err))
	}
	maxCandidates := settings.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	keywords := make([]string, 0, len(settings.TitleKeywords))
	for _, kw := range settings.TitleKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	limit := rate.Inf
	if settings.RateLimitRPS > 0 {
		limit = rate.Limit(settings.RateLimitRPS)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := settings.UserAgent
	if userAgent == "" {
		userAgent = "regulatory-assistant/1.0"
	}

	return &Agent{
		name:          name,
		searchURL:     settings.SearchURL,
		linkPattern:   re,
		titleKeywords: keywords,
		maxCandidates: maxCandidates,
		userAgent:     userAgent,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, 1),
		executor:      executor,
		logger:        logger.With("source", name),
	}, nil
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) ListCandidates(ctx context.Context, subject string) ([]domain.DocumentHandle, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list candidates", fmt.Errorf("subject is required"))
	}
	pageURL := strings.ReplaceAll(a.searchURL, "{subject}", url.QueryEscape(subject))

	var page []byte
	err := a.run(ctx, "list", func(callCtx context.Context) error {
		body, err := a.get(callCtx, pageURL, 8<<20)
		if err != nil {
			return err
		}
		page = body
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, a.name+" list candidates", err)
	}

	handles, err := a.parseCandidates(pageURL, page)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, a.name+" parse search page", err)
	}
	a.logger.Info("source_candidates_listed", "subject", subject, "candidates", len(handles))
	return handles, nil
}

func (a *Agent) Fetch(ctx context.Context, handle domain.DocumentHandle) ([]byte, error) {
	var raw []byte
	err := a.run(ctx, "fetch", func(callCtx context.Context) error {
		body, err := a.get(callCtx, handle.URL, maxDownloadBytes)
		if err != nil {
			return err
		}
		raw = body
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, a.name+" fetch "+handle.Title, err)
	}
	a.logger.Info("source_document_fetched", "title", handle.Title, "bytes", len(raw))
	return raw, nil
}

func (a *Agent) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	call := func(callCtx context.Context) error {
		if err := a.limiter.Wait(callCtx); err != nil {
			return err
		}
		return fn(callCtx)
	}
	if a.executor == nil {
		return call(ctx)
	}
	return a.executor.Execute(ctx, "source."+a.name+"."+operation, call, classifyHTTPError)
}

func (a *Agent) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPStatusError{URL: target, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", target, limit)
	}
	return body, nil
}

// parseCandidates collects matching anchors in document order.
func (a *Agent) parseCandidates(pageURL string, page []byte) ([]domain.DocumentHandle, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	handles := make([]domain.DocumentHandle, 0, a.maxCandidates)

	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if handle, ok := a.candidate(base, n); ok {
				if _, dup := seen[handle.URL]; !dup {
					seen[handle.URL] = struct{}{}
					handles = append(handles, handle)
					if len(handles) >= a.maxCandidates {
						return false
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)
	return handles, nil
}

func (a *Agent) candidate(base *url.URL, n *html.Node) (domain.DocumentHandle, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" || !a.linkPattern.MatchString(href) {
		return domain.DocumentHandle{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return domain.DocumentHandle{}, false
	}
	resolved := base.ResolveReference(ref)

	title := strings.Join(strings.Fields(textContent(n)), " ")
	if title == "" {
		title = lastSegment(resolved.Path)
	}
	if title == "" {
		return domain.DocumentHandle{}, false
	}
	if len(a.titleKeywords) > 0 && !containsAny(strings.ToLower(title), a.titleKeywords) {
		return domain.DocumentHandle{}, false
	}
	return domain.DocumentHandle{Source: a.name, Title: title, URL: resolved.String()}, true
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return path
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

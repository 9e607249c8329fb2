package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

const (
	defaultMaxDocsPerSource = 3
	maxFileNameLength       = 200
)

type RetrievalConfig struct {
	Agents           []ports.SourceAgent
	Storage          ports.ObjectStorage
	Processor        *DocumentProcessor
	Index            ports.VectorIndex
	Audit            ports.AuditLog
	Events           ports.EventPublisher
	Observer         ports.RetrievalObserver
	MaxDocsPerSource int
	Logger           *slog.Logger
	Now              func() time.Time
}

// RetrievalUseCase fans a subject out to every requested source, then
// downloads, processes and indexes each candidate document. Item and source
// failures are folded into the outcome instead of aborting the pass.
type RetrievalUseCase struct {
	agents    map[string]ports.SourceAgent
	order     []string
	storage   ports.ObjectStorage
	processor *DocumentProcessor
	index     ports.VectorIndex
	audit     ports.AuditLog
	events    ports.EventPublisher
	observer  ports.RetrievalObserver
	maxDocs   int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRetrievalUseCase(cfg RetrievalConfig) *RetrievalUseCase {
	agents := make(map[string]ports.SourceAgent, len(cfg.Agents))
	order := make([]string, 0, len(cfg.Agents))
	for _, agent := range cfg.Agents {
		if agent == nil {
			continue
		}
		name := agent.Name()
		if _, dup := agents[name]; dup {
			continue
		}
		agents[name] = agent
		order = append(order, name)
	}
	maxDocs := cfg.MaxDocsPerSource
	if maxDocs <= 0 {
		maxDocs = defaultMaxDocsPerSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RetrievalUseCase{
		agents:    agents,
		order:     order,
		storage:   cfg.Storage,
		processor: cfg.Processor,
		index:     cfg.Index,
		audit:     cfg.Audit,
		events:    cfg.Events,
		observer:  cfg.Observer,
		maxDocs:   maxDocs,
		logger:    logger,
		now:       now,
	}
}

// KnownSources lists configured sources in configuration order.
func (uc *RetrievalUseCase) KnownSources() []string {
	return append([]string(nil), uc.order...)
}

func (uc *RetrievalUseCase) RetrieveAndIndex(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalOutcome, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve and index", errors.New("subject is required"))
	}
	requested := req.Sources
	if len(requested) == 0 {
		requested = uc.order
	}
	maxDocs := req.MaxDocsPerSource
	if maxDocs <= 0 {
		maxDocs = uc.maxDocs
	}

	outcome := &domain.RetrievalOutcome{
		Status:              domain.OutcomeSuccess,
		Subject:             subject,
		SourcesSearched:     []string{},
		DocumentsDownloaded: []string{},
		IndexedDocuments:    []string{},
		Errors:              []string{},
	}

	sources := uc.resolveSources(requested, outcome)
	if len(sources) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve and index",
			fmt.Errorf("no configured source among %v", requested))
	}

	started := uc.now()
	uc.logger.Info("retrieval_started", "subject", subject, "sources", sources, "max_docs_per_source", maxDocs)

	for _, name := range sources {
		uc.retrieveFromSource(ctx, uc.agents[name], subject, maxDocs, outcome)
	}

	stats := uc.index.Stats()
	outcome.TotalFragmentsInIndex = stats.TotalFragments
	outcome.DistinctDocumentsIndex = stats.DistinctDocuments

	uc.logger.Info("retrieval_completed",
		"subject", subject,
		"documents_downloaded", len(outcome.DocumentsDownloaded),
		"documents_indexed", outcome.DocumentsIndexed,
		"documents_reused", outcome.DocumentsReused,
		"fragments_indexed", outcome.FragmentsIndexed,
		"errors", len(outcome.Errors),
	)
	if uc.observer != nil {
		uc.observer.ObservePass(outcome.Status, outcome.DocumentsIndexed, uc.now().Sub(started))
	}
	if uc.events != nil {
		if err := uc.events.PublishRetrievalCompleted(ctx, *outcome); err != nil {
			uc.logger.Warn("retrieval_event_publish_failed", "subject", subject, "error", err)
		}
	}
	return outcome, nil
}

// resolveSources maps requested names onto configured agents, keeping the
// requested order. Unknown names are dropped with a warning.
func (uc *RetrievalUseCase) resolveSources(requested []string, outcome *domain.RetrievalOutcome) []string {
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		name, ok := uc.canonicalSource(raw)
		if !ok {
			uc.logger.Warn("retrieval_source_unknown", "source", raw)
			outcome.SourcesFailed = append(outcome.SourcesFailed, domain.SourceFailure{
				Source: raw,
				Reason: domain.ErrUnknownSource.Error(),
			})
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (uc *RetrievalUseCase) canonicalSource(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if _, ok := uc.agents[raw]; ok {
		return raw, true
	}
	for _, name := range uc.order {
		if strings.EqualFold(name, raw) {
			return name, true
		}
	}
	return "", false
}

func (uc *RetrievalUseCase) retrieveFromSource(ctx context.Context, agent ports.SourceAgent, subject string, maxDocs int, outcome *domain.RetrievalOutcome) {
	name := agent.Name()
	outcome.SourcesSearched = append(outcome.SourcesSearched, name)

	handles, err := agent.ListCandidates(ctx, subject)
	if err != nil {
		uc.logger.Error("retrieval_source_failed", "source", name, "subject", subject, "error", err)
		outcome.SourcesFailed = append(outcome.SourcesFailed, domain.SourceFailure{Source: name, Reason: err.Error()})
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, err))
		return
	}
	if len(handles) > maxDocs {
		handles = handles[:maxDocs]
	}
	if len(handles) == 0 {
		uc.logger.Warn("retrieval_source_empty", "source", name, "subject", subject)
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: No documents found", name))
		return
	}

	for _, handle := range handles {
		if handle.Source == "" {
			handle.Source = name
		}
		fragments, reused, err := uc.ingestHandle(ctx, agent, subject, handle, outcome)
		status := "indexed"
		switch {
		case err != nil:
			status = "failed"
			uc.logger.Error("retrieval_document_failed", "source", name, "title", handle.Title, "error", err)
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, err))
		case reused:
			status = "already_indexed"
		}
		if uc.observer != nil {
			uc.observer.ObserveDocument(name, status, fragments)
		}
	}
}

// ingestHandle runs download, storage, processing and indexing for one
// handle and returns the number of fragments indexed. Documents the index
// already holds are not downloaded again; reused reports that case.
func (uc *RetrievalUseCase) ingestHandle(ctx context.Context, agent ports.SourceAgent, subject string, handle domain.DocumentHandle, outcome *domain.RetrievalOutcome) (fragments int, reused bool, err error) {
	key := storageKey(handle, subject)
	storedPath := uc.storage.Path(key)
	if name := documentName(domain.StoredDocument{Key: key, Path: storedPath}); uc.index.HasDocument(name) {
		uc.logger.Info("retrieval_document_reused", "source", handle.Source, "document", name)
		uc.markReused(outcome, name)
		return 0, true, nil
	}

	raw, err := agent.Fetch(ctx, handle)
	if err != nil {
		return 0, false, fmt.Errorf("download %q: %w", handle.Title, err)
	}
	if err := uc.storage.Save(ctx, key, bytes.NewReader(raw)); err != nil {
		return 0, false, fmt.Errorf("store %q: %w", handle.Title, err)
	}
	stored := domain.StoredDocument{Handle: handle, Key: key, Path: storedPath, Size: int64(len(raw))}
	outcome.DocumentsDownloaded = append(outcome.DocumentsDownloaded, stored.Path)

	chunks, meta, err := uc.processor.Process(ctx, stored)
	if err != nil {
		return 0, false, fmt.Errorf("process %q: %w", handle.Title, err)
	}

	result, err := uc.index.Add(ctx, chunks, meta)
	if err != nil {
		return 0, false, fmt.Errorf("index %q: %w", handle.Title, err)
	}
	if result.AlreadyIndexed {
		uc.markReused(outcome, meta.FileName)
		return 0, true, nil
	}
	if len(result.Skipped) > 0 {
		partial := domain.WrapError(domain.ErrIngestPartialFailure, "index "+meta.FileName,
			fmt.Errorf("%d of %d fragments skipped", len(result.Skipped), len(chunks)))
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", handle.Source, partial))
	}

	outcome.DocumentsIndexed++
	outcome.FragmentsIndexed += result.Ingested
	outcome.IndexedDocuments = append(outcome.IndexedDocuments, meta.FileName)

	if uc.audit != nil {
		doc := domain.Document{
			FileName:      meta.FileName,
			FilePath:      meta.FilePath,
			Source:        handle.Source,
			Subject:       subject,
			FragmentCount: result.Ingested,
			TotalLength:   meta.TotalLength,
			IndexedAt:     uc.now().UTC(),
		}
		if err := uc.audit.RecordDocument(ctx, doc); err != nil {
			uc.logger.Warn("audit_document_failed", "document", meta.FileName, "error", err)
		}
	}
	return result.Ingested, false, nil
}

// markReused lists a stored document with the pass results without
// counting it as newly indexed.
func (uc *RetrievalUseCase) markReused(outcome *domain.RetrievalOutcome, name string) {
	outcome.DocumentsReused++
	if !slices.Contains(outcome.IndexedDocuments, name) {
		outcome.IndexedDocuments = append(outcome.IndexedDocuments, name)
	}
}

// storageKey places a document under its source directory with a name of
// the form SOURCE_subject_title.ext.
func storageKey(handle domain.DocumentHandle, subject string) string {
	dir := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(handle.Source), " ", "_"))
	if dir == "" {
		dir = "unknown"
	}
	title := strings.TrimSpace(handle.Title)
	if title == "" {
		title = "document"
	}
	ext := documentExtension(handle.URL)
	title = strings.TrimSuffix(title, ext)
	name := sanitizeFilename(fmt.Sprintf("%s_%s_%s%s", handle.Source, subject, title, ext))
	return sanitizeFilename(dir) + "/" + name
}

func documentExtension(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 6 {
			return ext
		}
	}
	return ".pdf"
}

// sanitizeFilename replaces characters that are invalid in file names and
// caps the length, keeping the extension.
func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		return r
	}, name)
	if utf8.RuneCountInString(name) <= maxFileNameLength {
		return name
	}
	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i:]
		name = name[:i]
	}
	keep := maxFileNameLength - utf8.RuneCountInString(ext)
	if keep < 1 {
		return string([]rune(name + ext)[:maxFileNameLength])
	}
	return string([]rune(name)[:keep]) + ext
}

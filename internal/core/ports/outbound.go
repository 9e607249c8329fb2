package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator produces free text from a system and a user prompt.
type AnswerGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, model string) (string, error)
	DefaultModel() string
}

// IntentExtractor returns the raw structured-intent output for a query. The
// caller is responsible for parsing it.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, query string, conversation domain.IntentContext) (string, error)
}

// SourceAgent lists and downloads documents published by one agency.
type SourceAgent interface {
	Name() string
	ListCandidates(ctx context.Context, subject string) ([]domain.DocumentHandle, error)
	Fetch(ctx context.Context, handle domain.DocumentHandle) ([]byte, error)
}

// ObjectStorage stores downloaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.StoredDocument) (string, error)
}

// Chunker splits text into fragments.
type Chunker interface {
	Split(text string) ([]string, error)
	Settings() (chunkSize, overlap int)
}

// VectorIndex stores embedded fragments and serves nearest-neighbor search.
type VectorIndex interface {
	Add(ctx context.Context, fragments []string, meta domain.DocumentMetadata) (domain.IngestResult, error)
	Search(ctx context.Context, query string, k int) ([]domain.ScoredFragment, error)
	Stats() domain.IndexStats
	HasDocument(name string) bool
}

// AuditLog keeps a durable trail of answered queries and ingested documents.
type AuditLog interface {
	RecordQuery(ctx context.Context, entry domain.QueryLogEntry) error
	RecordDocument(ctx context.Context, doc domain.Document) error
}

// EventPublisher announces completed retrieval passes.
type EventPublisher interface {
	PublishRetrievalCompleted(ctx context.Context, outcome domain.RetrievalOutcome) error
}

// RetrievalObserver receives per-document and per-pass retrieval results.
type RetrievalObserver interface {
	ObserveDocument(source, status string, fragments int)
	ObservePass(status string, documents int, duration time.Duration)
}

// SearchObserver receives the latency of index searches per answer path.
type SearchObserver interface {
	ObserveSearch(path string, hits int, duration time.Duration)
}

// DocumentCatalog lists documents recorded by the audit store.
type DocumentCatalog interface {
	ListDocuments(ctx context.Context, subject string, limit int) ([]domain.Document, error)
}

package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

type agentFake struct {
	name     string
	handles  []domain.DocumentHandle
	listErr  error
	fetchErr map[string]error
	fetched  []string
}

func (f *agentFake) Name() string { return f.name }

func (f *agentFake) ListCandidates(context.Context, string) ([]domain.DocumentHandle, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.handles, nil
}

func (f *agentFake) Fetch(_ context.Context, handle domain.DocumentHandle) ([]byte, error) {
	if err := f.fetchErr[handle.Title]; err != nil {
		return nil, err
	}
	f.fetched = append(f.fetched, handle.Title)
	return []byte("text of " + handle.Title), nil
}

type storageFake struct {
	files map[string][]byte
}

func newStorageFake() *storageFake {
	return &storageFake{files: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Path(key string) string { return "/data/" + key }

// extractorFake reads back what storageFake holds.
type extractorFake struct {
	storage *storageFake
	err     error
}

func (f *extractorFake) Extract(_ context.Context, doc domain.StoredDocument) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(f.storage.files[doc.Key]), nil
}

// chunkerFake returns a fixed number of chunks per document.
type chunkerFake struct {
	perDoc int
	err    error
}

func (f *chunkerFake) Split(text string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := f.perDoc
	if n <= 0 {
		n = 1
	}
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out, nil
}

func (f *chunkerFake) Settings() (int, int) { return 1000, 100 }

type indexFake struct {
	mu        sync.Mutex
	fragments []domain.Fragment
	addErr    map[string]error
	skipEvery int
	hits      []domain.ScoredFragment
	searchErr error
	searchK   []int
}

func (f *indexFake) Add(_ context.Context, chunks []string, meta domain.DocumentMetadata) (domain.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addErr[meta.FileName]; err != nil {
		return domain.IngestResult{}, err
	}
	res := domain.IngestResult{}
	for i, chunk := range chunks {
		if f.skipEvery > 0 && (i+1)%f.skipEvery == 0 {
			res.Skipped = append(res.Skipped, "chunk skipped")
			continue
		}
		f.fragments = append(f.fragments, domain.Fragment{
			Handle:       len(f.fragments),
			Text:         chunk,
			Position:     i,
			DocumentName: meta.FileName,
			Source:       meta.Source,
		})
		res.Ingested++
	}
	return res, nil
}

func (f *indexFake) Search(_ context.Context, _ string, k int) ([]domain.ScoredFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchK = append(f.searchK, k)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *indexFake) HasDocument(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frag := range f.fragments {
		if frag.DocumentName == name {
			return true
		}
	}
	return false
}

func (f *indexFake) Stats() domain.IndexStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := map[string]struct{}{}
	for _, frag := range f.fragments {
		docs[frag.DocumentName] = struct{}{}
	}
	total := len(f.fragments)
	if total == 0 {
		total = len(f.hits)
	}
	return domain.IndexStats{TotalFragments: total, DistinctDocuments: len(docs), Dimension: 3}
}

type auditFake struct {
	queries   []domain.QueryLogEntry
	documents []domain.Document
	err       error
}

func (f *auditFake) RecordQuery(_ context.Context, entry domain.QueryLogEntry) error {
	f.queries = append(f.queries, entry)
	return f.err
}

func (f *auditFake) RecordDocument(_ context.Context, doc domain.Document) error {
	f.documents = append(f.documents, doc)
	return f.err
}

type eventsFake struct {
	published []domain.RetrievalOutcome
	err       error
}

func (f *eventsFake) PublishRetrievalCompleted(_ context.Context, outcome domain.RetrievalOutcome) error {
	f.published = append(f.published, outcome)
	return f.err
}

type intentFake struct {
	raw      string
	err      error
	contexts []domain.IntentContext
}

func (f *intentFake) ExtractIntent(_ context.Context, _ string, conversation domain.IntentContext) (string, error) {
	f.contexts = append(f.contexts, conversation)
	return f.raw, f.err
}

type generatorFake struct {
	text    string
	err     error
	systems []string
	users   []string
	models  []string
}

func (f *generatorFake) Generate(_ context.Context, systemPrompt, userPrompt, model string) (string, error) {
	f.systems = append(f.systems, systemPrompt)
	f.users = append(f.users, userPrompt)
	f.models = append(f.models, model)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *generatorFake) DefaultModel() string { return "llama-test" }

type retrieverFake struct {
	outcome  *domain.RetrievalOutcome
	err      error
	requests []domain.RetrievalRequest
}

func (f *retrieverFake) RetrieveAndIndex(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalOutcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	out := *f.outcome
	return &out, nil
}

func (f *retrieverFake) KnownSources() []string { return []string{"FDA", "EMA"} }

type observerFake struct {
	documents []string
	passes    int
}

func (f *observerFake) ObserveDocument(source, status string, _ int) {
	f.documents = append(f.documents, source+":"+status)
}

func (f *observerFake) ObservePass(string, int, time.Duration) { f.passes++ }

func handles(source string, titles ...string) []domain.DocumentHandle {
	out := make([]domain.DocumentHandle, 0, len(titles))
	for _, title := range titles {
		out = append(out, domain.DocumentHandle{
			Source: source,
			Title:  title,
			URL:    "https://" + strings.ToLower(source) + ".example/" + title + ".pdf",
		})
	}
	return out
}

type searchObserverFake struct {
	paths []string
}

func (f *searchObserverFake) ObserveSearch(path string, _ int, _ time.Duration) {
	f.paths = append(f.paths, path)
}

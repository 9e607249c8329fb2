package flat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

const DefaultMaxEmbedChars = 30000

type Options struct {
	IndexPath     string
	MetadataPath  string
	Dimension     int
	MaxEmbedChars int
	Logger        *slog.Logger
}

// Index is an exact L2 index whose vectors and fragment records are kept in
// lock-step: row i of vectors belongs to records[i] and records[i].Handle == i.
// All mutations and persistence run under a single writer lock.
type Index struct {
	embedder ports.Embedder
	store    fileStore
	maxChars int
	logger   *slog.Logger

	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	records   []domain.Fragment
	documents map[string]struct{}
	loadErr   error
}

// Open builds the index and reloads persisted state. A corrupted snapshot is
// moved aside and replaced by an empty index; the condition stays available
// through LoadError.
func Open(embedder ports.Embedder, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxChars := opts.MaxEmbedChars
	if maxChars <= 0 {
		maxChars = DefaultMaxEmbedChars
	}

	idx := &Index{
		embedder:  embedder,
		store:     fileStore{indexPath: opts.IndexPath, metadataPath: opts.MetadataPath},
		maxChars:  maxChars,
		logger:    logger,
		dimension: opts.Dimension,
		documents: map[string]struct{}{},
	}

	snap, err := idx.store.load()
	switch {
	case err == nil && snap == nil:
		logger.Info("index_created", "index_path", opts.IndexPath, "dimension", opts.Dimension)
	case err == nil:
		if opts.Dimension > 0 && snap.dimension != opts.Dimension && len(snap.records) > 0 {
			err = domain.WrapError(domain.ErrIndexCorrupt, "load index",
				fmt.Errorf("stored dimension %d does not match configured %d", snap.dimension, opts.Dimension))
			idx.recoverCorrupt(err)
			break
		}
		if snap.dimension > 0 {
			idx.dimension = snap.dimension
		}
		idx.vectors = snap.vectors
		idx.records = snap.records
		idx.documents = documentSet(snap.records)
		logger.Info("index_loaded", "index_path", opts.IndexPath, "vectors", len(idx.records), "dimension", idx.dimension)
	default:
		idx.recoverCorrupt(err)
	}
	return idx
}

func (idx *Index) recoverCorrupt(err error) {
	idx.loadErr = err
	idx.vectors = nil
	idx.records = nil
	idx.documents = map[string]struct{}{}
	backups, moveErr := idx.store.quarantine()
	idx.logger.Error("index_corrupt_reinitialized",
		"index_path", idx.store.indexPath,
		"metadata_path", idx.store.metadataPath,
		"quarantined", backups,
		"quarantine_error", moveErr,
		"error", err,
	)
}

// LoadError reports the problem found while reloading persisted state, if any.
func (idx *Index) LoadError() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loadErr
}

// HasDocument reports whether fragments of the named document are stored.
func (idx *Index) HasDocument(name string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.documents[name]
	return ok
}

// Add embeds every fragment, skipping the ones whose embedding fails, then
// appends and persists the successful ones. A document that is already
// stored is left as is and reported with AlreadyIndexed.
func (idx *Index) Add(ctx context.Context, fragments []string, meta domain.DocumentMetadata) (domain.IngestResult, error) {
	if len(fragments) == 0 {
		return domain.IngestResult{}, domain.WrapError(domain.ErrInvalidInput, "add fragments", errors.New("no chunks provided"))
	}

	fileName := meta.FileName
	if fileName == "" {
		fileName = "unknown"
	}
	if idx.HasDocument(fileName) {
		idx.logger.Info("index_add_skipped_existing", "document", fileName)
		return domain.IngestResult{AlreadyIndexed: true}, nil
	}
	total := meta.NumChunks
	if total <= 0 {
		total = len(fragments)
	}

	idx.logger.Info("index_add_started", "document", fileName, "fragments", len(fragments))

	type embedded struct {
		position int
		text     string
		vector   []float32
	}
	result := domain.IngestResult{}
	batch := make([]embedded, 0, len(fragments))
	for i, text := range fragments {
		vector, err := idx.embedder.Embed(ctx, idx.truncate(text))
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("chunk %d: %v", i, err))
			idx.logger.Warn("index_fragment_skipped", "document", fileName, "chunk", i, "error", err)
			continue
		}
		if len(vector) == 0 {
			result.Skipped = append(result.Skipped, fmt.Sprintf("chunk %d: empty embedding", i))
			continue
		}
		batch = append(batch, embedded{position: i, text: text, vector: vector})
		if (i+1)%10 == 0 {
			idx.logger.Debug("index_add_progress", "document", fileName, "processed", i+1, "total", len(fragments))
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// A concurrent Add may have stored the document while this one embedded.
	if _, ok := idx.documents[fileName]; ok {
		return domain.IngestResult{AlreadyIndexed: true}, nil
	}

	dimension := idx.dimension
	vectors := idx.vectors
	records := idx.records
	for _, item := range batch {
		if dimension == 0 {
			dimension = len(item.vector)
		}
		if len(item.vector) != dimension {
			result.Skipped = append(result.Skipped,
				fmt.Sprintf("chunk %d: embedding dimension %d, index dimension %d", item.position, len(item.vector), dimension))
			continue
		}
		vectors = append(vectors, item.vector)
		records = append(records, domain.Fragment{
			Handle:         len(records),
			Text:           item.text,
			Position:       item.position,
			Length:         utf8.RuneCountInString(item.text),
			DocumentName:   fileName,
			DocumentPath:   meta.FilePath,
			TotalFragments: total,
			Source:         meta.Source,
		})
		result.Ingested++
	}

	if result.Ingested == 0 {
		return result, domain.WrapError(domain.ErrIngestFailed, "add fragments",
			fmt.Errorf("no embeddings generated for %s (%d skipped)", fileName, len(result.Skipped)))
	}

	// In-memory state is only replaced after both files are on disk.
	if err := idx.store.save(dimension, vectors, records); err != nil {
		idx.logger.Error("index_persist_failed", "document", fileName, "error", err)
		return domain.IngestResult{}, domain.WrapError(domain.ErrIngestFailed, "persist index", err)
	}
	idx.dimension = dimension
	idx.vectors = vectors
	idx.records = records
	idx.documents[fileName] = struct{}{}

	idx.logger.Info("index_add_completed",
		"document", fileName,
		"ingested", result.Ingested,
		"skipped", len(result.Skipped),
		"total_vectors", len(records),
	)
	return result, nil
}

// Search embeds the query and returns the k nearest fragments.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]domain.ScoredFragment, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search index", fmt.Errorf("k must be positive, got %d", k))
	}
	if idx.Stats().TotalFragments == 0 {
		idx.logger.Warn("index_search_empty")
		return []domain.ScoredFragment{}, nil
	}

	vector, err := idx.embedder.Embed(ctx, idx.truncate(query))
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", err)
	}
	return idx.SearchVector(vector, k)
}

// SearchVector ranks stored fragments by squared L2 distance to vector.
// Results are ordered by ascending distance, ties broken by handle.
func (idx *Index) SearchVector(vector []float32, k int) ([]domain.ScoredFragment, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search index", fmt.Errorf("k must be positive, got %d", k))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.records) == 0 {
		return []domain.ScoredFragment{}, nil
	}
	if len(vector) != idx.dimension {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search index",
			fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), idx.dimension))
	}

	type hit struct {
		handle   int
		distance float64
	}
	hits := make([]hit, len(idx.vectors))
	for i, stored := range idx.vectors {
		hits[i] = hit{handle: i, distance: squaredL2(vector, stored)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].distance < hits[b].distance
	})

	k = min(k, len(hits))
	out := make([]domain.ScoredFragment, 0, k)
	for _, h := range hits[:k] {
		out = append(out, domain.ScoredFragment{
			Fragment:   idx.records[h.handle],
			Distance:   h.distance,
			Similarity: domain.SimilarityFromDistance(h.distance),
		})
	}
	return out, nil
}

func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return domain.IndexStats{
		TotalFragments:    len(idx.records),
		DistinctDocuments: len(idx.documents),
		Dimension:         idx.dimension,
	}
}

func documentSet(records []domain.Fragment) map[string]struct{} {
	docs := make(map[string]struct{}, len(records))
	for _, rec := range records {
		docs[rec.DocumentName] = struct{}{}
	}
	return docs
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// truncate cuts text to at most maxChars runes.
func (idx *Index) truncate(text string) string {
	if utf8.RuneCountInString(text) <= idx.maxChars {
		return text
	}
	runes := []rune(text)
	idx.logger.Warn("embedding_input_truncated", "from_chars", len(runes), "to_chars", idx.maxChars)
	return string(runes[:idx.maxChars])
}

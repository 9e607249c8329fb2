package flat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	inputs []string
	vecFn  func(text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	return f.vecFn(text)
}

// tableEmbedder maps known texts to fixed vectors.
func tableEmbedder(table map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{vecFn: func(text string) ([]float32, error) {
		vec, ok := table[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		return vec, nil
	}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestIndex(t *testing.T, dir string, embedder *fakeEmbedder) *Index {
	t.Helper()
	return Open(embedder, Options{
		IndexPath:    filepath.Join(dir, "index.bin"),
		MetadataPath: filepath.Join(dir, "metadata.json"),
		Logger:       testLogger(),
	})
}

func TestSearchEmptyIndexDoesNotEmbed(t *testing.T) {
	emb := tableEmbedder(nil)
	idx := openTestIndex(t, t.TempDir(), emb)

	got, err := idx.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
	if emb.calls != 0 {
		t.Fatalf("expected embedder not to be called, got %d calls", emb.calls)
	}
}

func TestAddAndSearchOrdersByDistance(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{
		"near":  {1, 0},
		"mid":   {3, 0},
		"far":   {10, 0},
		"query": {0, 0},
	})
	idx := openTestIndex(t, t.TempDir(), emb)

	res, err := idx.Add(context.Background(), []string{"far", "near", "mid"}, domain.DocumentMetadata{
		FileName: "doc.pdf",
		Source:   domain.SourceFDA,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Ingested != 3 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected ingest result: %+v", res)
	}

	got, err := idx.Search(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "near" || got[1].Text != "mid" {
		t.Fatalf("unexpected order: %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Distance != 1 || got[1].Distance != 9 {
		t.Fatalf("expected squared distances 1 and 9, got %v and %v", got[0].Distance, got[1].Distance)
	}
	if got[0].Similarity != 0.5 {
		t.Fatalf("expected similarity 0.5, got %v", got[0].Similarity)
	}
	if got[0].Source != domain.SourceFDA || got[0].DocumentName != "doc.pdf" {
		t.Fatalf("fragment provenance lost: %+v", got[0].Fragment)
	}
}

func TestSearchClampsKToStoreSize(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1}, "b": {2}, "q": {0}})
	idx := openTestIndex(t, t.TempDir(), emb)
	if _, err := idx.Add(context.Background(), []string{"a", "b"}, domain.DocumentMetadata{FileName: "x"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := idx.Search(context.Background(), "q", 50)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestHandlesAreDenseAcrossDocuments(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1}, "b": {2}, "c": {3}, "d": {4}})
	idx := openTestIndex(t, t.TempDir(), emb)
	ctx := context.Background()
	if _, err := idx.Add(ctx, []string{"a", "b"}, domain.DocumentMetadata{FileName: "one"}); err != nil {
		t.Fatalf("add one: %v", err)
	}
	if _, err := idx.Add(ctx, []string{"c", "d"}, domain.DocumentMetadata{FileName: "two"}); err != nil {
		t.Fatalf("add two: %v", err)
	}

	got, err := idx.SearchVector([]float32{0}, 10)
	if err != nil {
		t.Fatalf("search vector: %v", err)
	}
	seen := map[int]bool{}
	for _, hit := range got {
		if hit.Handle < 0 || hit.Handle >= 4 {
			t.Fatalf("handle %d out of range", hit.Handle)
		}
		seen[hit.Handle] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct handles, got %v", seen)
	}

	stats := idx.Stats()
	if stats.TotalFragments != 4 || stats.DistinctDocuments != 2 || stats.Dimension != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAddSkipsFailedFragments(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"ok-1": {1, 1}, "ok-2": {2, 2}})
	idx := openTestIndex(t, t.TempDir(), emb)

	res, err := idx.Add(context.Background(), []string{"ok-1", "broken", "ok-2"}, domain.DocumentMetadata{FileName: "doc"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Ingested != 2 {
		t.Fatalf("expected 2 ingested, got %d", res.Ingested)
	}
	if len(res.Skipped) != 1 || !strings.Contains(res.Skipped[0], "chunk 1") {
		t.Fatalf("expected chunk 1 to be skipped, got %v", res.Skipped)
	}
	if idx.Stats().TotalFragments != 2 {
		t.Fatalf("expected 2 stored fragments, got %d", idx.Stats().TotalFragments)
	}
}

func TestAddFailsWhenNothingEmbeds(t *testing.T) {
	emb := tableEmbedder(nil)
	dir := t.TempDir()
	idx := openTestIndex(t, dir, emb)

	_, err := idx.Add(context.Background(), []string{"x", "y"}, domain.DocumentMetadata{FileName: "doc"})
	if !errors.Is(err, domain.ErrIngestFailed) {
		t.Fatalf("expected ingest failed, got %v", err)
	}
	if idx.Stats().TotalFragments != 0 {
		t.Fatalf("expected empty index")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "index.bin")); !os.IsNotExist(statErr) {
		t.Fatalf("expected no index file after failed add, stat err=%v", statErr)
	}
}

func TestAddRejectsEmptyFragments(t *testing.T) {
	idx := openTestIndex(t, t.TempDir(), tableEmbedder(nil))
	_, err := idx.Add(context.Background(), nil, domain.DocumentMetadata{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEmbeddingInputIsTruncatedOnRuneBoundary(t *testing.T) {
	emb := &fakeEmbedder{vecFn: func(string) ([]float32, error) { return []float32{1}, nil }}
	idx := Open(emb, Options{
		IndexPath:     filepath.Join(t.TempDir(), "index.bin"),
		MetadataPath:  filepath.Join(t.TempDir(), "metadata.json"),
		MaxEmbedChars: 5,
		Logger:        testLogger(),
	})

	text := "ééééééééé"
	if _, err := idx.Add(context.Background(), []string{text}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(emb.inputs) != 1 {
		t.Fatalf("expected one embed call, got %d", len(emb.inputs))
	}
	if got := emb.inputs[0]; got != "ééééé" || !utf8.ValidString(got) {
		t.Fatalf("unexpected truncated input %q", got)
	}

	got, err := idx.SearchVector([]float32{1}, 1)
	if err != nil {
		t.Fatalf("search vector: %v", err)
	}
	if got[0].Text != text {
		t.Fatalf("stored text must not be truncated, got %q", got[0].Text)
	}
}

func TestSearchWrapsEmbeddingFailure(t *testing.T) {
	fail := false
	emb := &fakeEmbedder{vecFn: func(string) ([]float32, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []float32{1}, nil
	}}
	idx := openTestIndex(t, t.TempDir(), emb)
	if _, err := idx.Add(context.Background(), []string{"a"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	fail = true
	_, err := idx.Search(context.Background(), "q", 1)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected embedding unavailable, got %v", err)
	}
}

func TestReloadPreservesRankings(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{
		"alpha": {0.1, 0.9, 0.3},
		"beta":  {0.8, 0.2, 0.5},
		"gamma": {0.4, 0.4, 0.4},
	})
	dir := t.TempDir()
	ctx := context.Background()

	first := openTestIndex(t, dir, emb)
	if _, err := first.Add(ctx, []string{"alpha", "beta", "gamma"}, domain.DocumentMetadata{
		FileName: "label.pdf",
		FilePath: "/data/label.pdf",
		Source:   domain.SourceEMA,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	probe := []float32{0.5, 0.3, 0.45}
	before, err := first.SearchVector(probe, 3)
	if err != nil {
		t.Fatalf("search before reload: %v", err)
	}

	second := openTestIndex(t, dir, emb)
	if second.LoadError() != nil {
		t.Fatalf("unexpected load error: %v", second.LoadError())
	}
	after, err := second.SearchVector(probe, 3)
	if err != nil {
		t.Fatalf("search after reload: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("result count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Handle != after[i].Handle || before[i].Text != after[i].Text {
			t.Fatalf("rank %d changed: %+v vs %+v", i, before[i].Fragment, after[i].Fragment)
		}
		if before[i].Distance != after[i].Distance {
			t.Fatalf("rank %d distance changed: %v vs %v", i, before[i].Distance, after[i].Distance)
		}
		if after[i].Source != domain.SourceEMA || after[i].TotalFragments != 3 {
			t.Fatalf("metadata not restored: %+v", after[i].Fragment)
		}
	}
}

func TestCountMismatchIsReinitialized(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1}, "b": {2}})
	dir := t.TempDir()
	first := openTestIndex(t, dir, emb)
	if _, err := first.Add(context.Background(), []string{"a", "b"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(metaPath, []byte(`[{"chunk_id":0,"chunk_text":"a"}]`), 0o644); err != nil {
		t.Fatalf("rewrite metadata: %v", err)
	}

	second := openTestIndex(t, dir, emb)
	if !errors.Is(second.LoadError(), domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt index error, got %v", second.LoadError())
	}
	if second.Stats().TotalFragments != 0 {
		t.Fatalf("expected empty index after recovery")
	}
	backups, _ := filepath.Glob(filepath.Join(dir, "*.corrupt-*"))
	if len(backups) != 2 {
		t.Fatalf("expected both files quarantined, got %v", backups)
	}
}

func TestMissingCompanionFileIsReinitialized(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1}})
	dir := t.TempDir()
	first := openTestIndex(t, dir, emb)
	if _, err := first.Add(context.Background(), []string{"a"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "metadata.json")); err != nil {
		t.Fatalf("remove metadata: %v", err)
	}

	second := openTestIndex(t, dir, emb)
	if !errors.Is(second.LoadError(), domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt index error, got %v", second.LoadError())
	}
	if second.Stats().TotalFragments != 0 {
		t.Fatalf("expected empty index after recovery")
	}

	// The recovered index accepts new writes.
	if _, err := second.Add(context.Background(), []string{"a"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add after recovery: %v", err)
	}
}

func TestPersistFailureKeepsPreviousState(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1}, "b": {2}})
	dir := t.TempDir()
	idx := openTestIndex(t, dir, emb)
	if _, err := idx.Add(context.Background(), []string{"a"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// A directory in place of the metadata file makes the rename fail.
	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.Remove(metaPath); err != nil {
		t.Fatalf("remove metadata: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(metaPath, "blocker"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := idx.Add(context.Background(), []string{"b"}, domain.DocumentMetadata{FileName: "doc2"})
	if !errors.Is(err, domain.ErrIngestFailed) {
		t.Fatalf("expected ingest failure kind, got %v", err)
	}
	if idx.HasDocument("doc2") {
		t.Fatalf("unpersisted document must not be reported as stored")
	}
	if got := idx.Stats().TotalFragments; got != 1 {
		t.Fatalf("expected previous state to be kept, got %d fragments", got)
	}
}

func TestConcurrentAddsKeepHandlesConsistent(t *testing.T) {
	emb := &fakeEmbedder{vecFn: func(text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}}
	dir := t.TempDir()
	idx := openTestIndex(t, dir, emb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			frags := []string{strings.Repeat("x", n+1), strings.Repeat("y", n+2)}
			if _, err := idx.Add(context.Background(), frags, domain.DocumentMetadata{FileName: fmt.Sprintf("doc-%d", n)}); err != nil {
				t.Errorf("add %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if got := idx.Stats().TotalFragments; got != 16 {
		t.Fatalf("expected 16 fragments, got %d", got)
	}

	reloaded := openTestIndex(t, dir, emb)
	if reloaded.LoadError() != nil {
		t.Fatalf("reload: %v", reloaded.LoadError())
	}
	if got := reloaded.Stats().TotalFragments; got != 16 {
		t.Fatalf("expected 16 fragments after reload, got %d", got)
	}
}

func TestAddSameDocumentTwiceIsIdempotent(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1, 0}, "b": {0, 1}})
	dir := t.TempDir()
	idx := openTestIndex(t, dir, emb)
	meta := domain.DocumentMetadata{FileName: "FDA_DrugA_label.pdf", Source: domain.SourceFDA}

	if _, err := idx.Add(context.Background(), []string{"a", "b"}, meta); err != nil {
		t.Fatalf("first add: %v", err)
	}
	calls := emb.calls
	res, err := idx.Add(context.Background(), []string{"a", "b"}, meta)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if !res.AlreadyIndexed || res.Ingested != 0 {
		t.Fatalf("expected already-indexed result, got %+v", res)
	}
	if emb.calls != calls {
		t.Fatalf("stored document must not be embedded again")
	}
	if stats := idx.Stats(); stats.TotalFragments != 2 || stats.DistinctDocuments != 1 {
		t.Fatalf("unexpected stats after repeat add: %+v", stats)
	}

	reloaded := openTestIndex(t, dir, emb)
	if !reloaded.HasDocument("FDA_DrugA_label.pdf") || reloaded.HasDocument("other.pdf") {
		t.Fatalf("document set must be rebuilt on load")
	}
}

func TestOversizedHeaderIsReinitialized(t *testing.T) {
	dir := t.TempDir()
	header := append([]byte{}, indexMagic[:]...)
	header = binary.LittleEndian.AppendUint32(header, 0xFFFFFFFF)
	header = binary.LittleEndian.AppendUint64(header, 1<<40)
	if err := os.WriteFile(filepath.Join(dir, "index.bin"), header, 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`[]`), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	idx := openTestIndex(t, dir, tableEmbedder(nil))
	if !errors.Is(idx.LoadError(), domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt index error, got %v", idx.LoadError())
	}
	if idx.Stats().TotalFragments != 0 {
		t.Fatalf("expected empty index after recovery")
	}
}

func TestTruncatedVectorFileIsReinitialized(t *testing.T) {
	emb := tableEmbedder(map[string][]float32{"a": {1, 2}, "b": {3, 4}})
	dir := t.TempDir()
	first := openTestIndex(t, dir, emb)
	if _, err := first.Add(context.Background(), []string{"a", "b"}, domain.DocumentMetadata{FileName: "doc"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	indexPath := filepath.Join(dir, "index.bin")
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if err := os.WriteFile(indexPath, raw[:len(raw)-4], 0o644); err != nil {
		t.Fatalf("truncate index: %v", err)
	}

	second := openTestIndex(t, dir, emb)
	if !errors.Is(second.LoadError(), domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt index error, got %v", second.LoadError())
	}
}

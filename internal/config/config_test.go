package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OLLAMA_GEN_MODEL", "")
	t.Setenv("OLLAMA_INTENT_MODEL", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CALL_TIMEOUT", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.OllamaIntentModel != cfg.OllamaGenModel {
		t.Fatalf("expected intent model to follow gen model, got %q vs %q", cfg.OllamaIntentModel, cfg.OllamaGenModel)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 100 {
		t.Fatalf("unexpected chunk defaults %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.ComparativeTopK != 10 || cfg.RAGTopK != 5 {
		t.Fatalf("unexpected top k defaults %d/%d", cfg.RAGTopK, cfg.ComparativeTopK)
	}
	if cfg.Resilience.CallTimeout != 60*time.Second {
		t.Fatalf("expected 60s call timeout, got %s", cfg.Resilience.CallTimeout)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("audit store must be disabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("OLLAMA_GEN_MODEL", "qwen2.5:7b")
	t.Setenv("OLLAMA_INTENT_MODEL", "llama3.2:3b")
	t.Setenv("CALL_TIMEOUT", "15s")
	t.Setenv("SOURCE_RATE_LIMIT_RPS", "0.5")
	t.Setenv("MAX_DOCS_PER_SOURCE", "not-a-number")

	cfg := Load()
	if cfg.OllamaGenModel != "qwen2.5:7b" || cfg.OllamaIntentModel != "llama3.2:3b" {
		t.Fatalf("unexpected models %q/%q", cfg.OllamaGenModel, cfg.OllamaIntentModel)
	}
	if cfg.Resilience.CallTimeout != 15*time.Second {
		t.Fatalf("expected 15s call timeout, got %s", cfg.Resilience.CallTimeout)
	}
	if cfg.SourceRateLimitRPS != 0.5 {
		t.Fatalf("expected 0.5 rps, got %v", cfg.SourceRateLimitRPS)
	}
	if cfg.MaxDocsPerSource != 3 {
		t.Fatalf("invalid value must fall back to default, got %d", cfg.MaxDocsPerSource)
	}
}

func TestLoadSourcesDefaultsWithoutFile(t *testing.T) {
	sources, err := LoadSources("")
	if err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	names := SourceNames(sources)
	if len(names) != 2 || names[0] != "FDA" || names[1] != "EMA" {
		t.Fatalf("unexpected built-in sources %v", names)
	}
}

func TestLoadSourcesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	body := `sources:
  - name: TGA
    display_name: Therapeutic Goods Administration
    tokens: [TGA, ARTG]
    search_url: https://tga.example/search?q={subject}
    max_candidates: 4
  - name: FDA
    search_url: https://fda.example/search?term={subject}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	if len(sources) != 2 || sources[0].MaxCandidates != 4 || sources[0].Tokens[1] != "ARTG" {
		t.Fatalf("unexpected sources %+v", sources)
	}

	table := ProvenanceTable(sources)
	if table[0].Source != "TGA" || table[1].Source != "FDA" || table[1].Tokens[0] != "FDA" {
		t.Fatalf("catalog entries must come first, got %+v", table[:2])
	}
	for _, entry := range table[2:] {
		if entry.Source == "TGA" || entry.Source == "FDA" {
			t.Fatalf("built-in entry %s duplicated", entry.Source)
		}
	}
	if len(table) != 6 {
		t.Fatalf("expected built-in agencies to remain resolvable, got %d entries", len(table))
	}
}

func TestLoadSourcesRejectsBadCatalog(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing-placeholder.yaml": "sources:\n  - name: FDA\n    search_url: https://fda.example/search\n",
		"duplicate.yaml":           "sources:\n  - name: FDA\n    search_url: https://a/{subject}\n  - name: fda\n    search_url: https://b/{subject}\n",
		"empty.yaml":               "sources: []\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := LoadSources(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

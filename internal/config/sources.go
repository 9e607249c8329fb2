package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

// Source describes one agency in the source catalog.
type Source struct {
	Name          string   `yaml:"name"`
	DisplayName   string   `yaml:"display_name"`
	Tokens        []string `yaml:"tokens"`
	SearchURL     string   `yaml:"search_url"`
	LinkPattern   string   `yaml:"link_pattern"`
	TitleKeywords []string `yaml:"title_keywords"`
	MaxCandidates int      `yaml:"max_candidates"`
}

type catalogFile struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources is the built-in catalog used when no SOURCES_FILE is set.
func DefaultSources() []Source {
	return []Source{
		{
			Name:        domain.SourceFDA,
			DisplayName: "U.S. Food and Drug Administration",
			Tokens:      []string{"FDA"},
			SearchURL:   "https://www.accessdata.fda.gov/scripts/cder/daf/index.cfm?event=BasicSearch.process&searchterm={subject}",
			LinkPattern: `(?i)\.pdf($|[?#])`,
		},
		{
			Name:        domain.SourceEMA,
			DisplayName: "European Medicines Agency",
			Tokens:      []string{"EMA", "EPAR", "CHMP"},
			SearchURL:   "https://www.ema.europa.eu/en/search?search_api_fulltext={subject}",
			LinkPattern: `(?i)\.pdf($|[?#])`,
		},
	}
}

// LoadSources reads the YAML catalog at path. An empty path yields the
// built-in catalog.
func LoadSources(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("sources file lists no sources")
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i, src := range file.Sources {
		name := strings.TrimSpace(src.Name)
		if name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if !strings.Contains(src.SearchURL, "{subject}") {
			return nil, fmt.Errorf("source %s: search_url must contain {subject}", name)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("source %s: duplicate name", name)
		}
		seen[key] = struct{}{}
		file.Sources[i].Name = name
	}
	return file.Sources, nil
}

// ProvenanceTable puts catalog tokens first and keeps the built-in entries
// for agencies the catalog does not mention.
func ProvenanceTable(sources []Source) []domain.ProvenanceTokens {
	table := make([]domain.ProvenanceTokens, 0, len(sources)+6)
	listed := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		tokens := src.Tokens
		if len(tokens) == 0 {
			tokens = []string{strings.ToUpper(src.Name)}
		}
		table = append(table, domain.ProvenanceTokens{Source: src.Name, Tokens: tokens})
		listed[strings.ToLower(src.Name)] = struct{}{}
	}
	for _, entry := range domain.DefaultProvenanceTable() {
		if _, ok := listed[strings.ToLower(entry.Source)]; ok {
			continue
		}
		table = append(table, entry)
	}
	return table
}

func SourceNames(sources []Source) []string {
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		out = append(out, src.Name)
	}
	return out
}

package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

const (
	defaultPerSourceLimit = 5
	defaultSnippetChars   = 1000
)

// Aggregator groups search hits by provenance and lays them out for
// cross-source comparison.
type Aggregator struct {
	table        []domain.ProvenanceTokens
	perSource    int
	snippetChars int
}

func NewAggregator(table []domain.ProvenanceTokens, perSource, snippetChars int) *Aggregator {
	if len(table) == 0 {
		table = domain.DefaultProvenanceTable()
	}
	if perSource <= 0 {
		perSource = defaultPerSourceLimit
	}
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	return &Aggregator{table: table, perSource: perSource, snippetChars: snippetChars}
}

// SourceGroups maps a resolved source to its fragments in retrieval order.
type SourceGroups map[string][]domain.ScoredFragment

func (a *Aggregator) GroupBySource(fragments []domain.ScoredFragment) SourceGroups {
	groups := make(SourceGroups)
	for _, frag := range fragments {
		source := domain.ResolveSource(frag.Source, a.table, frag.DocumentName, frag.DocumentPath)
		groups[source] = append(groups[source], frag)
	}
	return groups
}

// lookup finds the group for a requested source, tolerating case differences.
func (g SourceGroups) lookup(source string) []domain.ScoredFragment {
	if frags, ok := g[source]; ok {
		return frags
	}
	for name, frags := range g {
		if strings.EqualFold(name, source) {
			return frags
		}
	}
	return nil
}

// BuildComparativeInput renders one section per requested source, in the
// requested order, each holding at most perSource snippets or an explicit
// marker when the source has nothing.
func (a *Aggregator) BuildComparativeInput(query string, groups SourceGroups, requested []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**User Question:** %s\n\n", query)
	b.WriteString("**Regulatory Documents by Agency:**\n\n")

	for _, source := range requested {
		fmt.Fprintf(&b, "### %s Documents:\n\n", source)
		frags := groups.lookup(source)
		if len(frags) == 0 {
			b.WriteString("*No documents available from this agency.*\n\n")
			continue
		}
		if len(frags) > a.perSource {
			frags = frags[:a.perSource]
		}
		for i, frag := range frags {
			name := frag.DocumentName
			if name == "" {
				name = domain.SourceUnknown
			}
			fmt.Fprintf(&b, "**%s Document %d:** %s\n", source, i+1, name)
			fmt.Fprintf(&b, "```\n%s...\n```\n\n", truncateChars(frag.Text, a.snippetChars))
		}
	}

	b.WriteString(comparativeInstructions)
	return b.String()
}

func truncateChars(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

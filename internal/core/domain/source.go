package domain

import "strings"

const (
	SourceFDA          = "FDA"
	SourceEMA          = "EMA"
	SourceHealthCanada = "Health Canada"
	SourceTGA          = "TGA"
	SourceSwissmedic   = "Swissmedic"
	SourceNHRA         = "NHRA"
	SourceUnknown      = "Unknown"
)

// ProvenanceTokens maps a source to the upper-case tokens that identify it
// inside a document name.
type ProvenanceTokens struct {
	Source string
	Tokens []string
}

// DefaultProvenanceTable is checked in order; the first source with a
// matching token wins.
func DefaultProvenanceTable() []ProvenanceTokens {
	return []ProvenanceTokens{
		{Source: SourceFDA, Tokens: []string{"FDA"}},
		{Source: SourceEMA, Tokens: []string{"EMA", "EPAR", "CHMP"}},
		{Source: SourceHealthCanada, Tokens: []string{"HEALTH CANADA", "HPFB"}},
		{Source: SourceTGA, Tokens: []string{"TGA"}},
		{Source: SourceSwissmedic, Tokens: []string{"SWISSMEDIC"}},
		{Source: SourceNHRA, Tokens: []string{"NHRA"}},
	}
}

// ResolveSource decides which source a fragment belongs to. An explicit
// provenance value wins, then the first token found in any of the document
// identifiers, then SourceUnknown.
func ResolveSource(explicit string, table []ProvenanceTokens, identifiers ...string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return s
	}
	for _, id := range identifiers {
		upper := strings.ToUpper(id)
		if upper == "" {
			continue
		}
		for _, entry := range table {
			for _, token := range entry.Tokens {
				if token != "" && strings.Contains(upper, strings.ToUpper(token)) {
					return entry.Source
				}
			}
		}
	}
	return SourceUnknown
}

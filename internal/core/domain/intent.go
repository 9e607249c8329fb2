package domain

// Intent is the structured reading of a user query.
type Intent struct {
	Subjects           []string `json:"subjects"`
	Sources            []string `json:"sources"`
	NeedsDocuments     bool     `json:"needs_documents"`
	QueryType          string   `json:"query_type,omitempty"`
	Topics             []string `json:"topics"`
	Ambiguous          bool     `json:"ambiguous"`
	ClarifyingQuestion string   `json:"clarifying_question,omitempty"`
}

type IntentStatus string

const (
	IntentParsed    IntentStatus = "parsed"
	IntentMalformed IntentStatus = "malformed"
)

// IntentResult is either Parsed with Intent filled, or Malformed with the raw
// model output kept for diagnostics.
type IntentResult struct {
	Status IntentStatus `json:"status"`
	Intent Intent       `json:"intent"`
	Raw    string       `json:"raw,omitempty"`
}

func ParsedIntent(intent Intent) IntentResult {
	return IntentResult{Status: IntentParsed, Intent: intent}
}

func MalformedIntent(raw string) IntentResult {
	return IntentResult{Status: IntentMalformed, Raw: raw}
}

// IntentContext is the conversational state handed to intent extraction.
type IntentContext struct {
	CurrentSubject string   `json:"current_subject,omitempty"`
	Sources        []string `json:"sources"`
	Topics         []string `json:"topics"`
	HasDocuments   bool     `json:"has_documents"`
}

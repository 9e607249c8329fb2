package domain

import "time"

const (
	AnswerSuccess        = "success"
	AnswerClarification  = "clarification_needed"
	AnswerError          = "error"
	AnswerNoDocuments    = "no_documents"
	AnswerNoResults      = "no_results"
	AnswerTypeStandard   = "standard"
	AnswerTypeComparison = "comparative"
)

type SourceCitation struct {
	Document   string  `json:"document"`
	Source     string  `json:"source,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity_score"`
	Distance   float64 `json:"distance"`
}

type Answer struct {
	Status          string           `json:"status"`
	Text            string           `json:"answer"`
	Type            string           `json:"type,omitempty"`
	Sources         []SourceCitation `json:"sources"`
	SourcesCompared []string         `json:"agencies_compared,omitempty"`
	ModelUsed       string           `json:"model_used,omitempty"`
	ChunksRetrieved int              `json:"num_chunks_retrieved"`
	Error           string           `json:"error,omitempty"`
}

type ContextSummary struct {
	CurrentSubject   string   `json:"current_drug,omitempty"`
	Sources          []string `json:"agencies"`
	Topics           []string `json:"topics"`
	DocumentsIndexed int      `json:"documents_indexed"`
	QueriesAsked     int      `json:"queries_asked"`
	SessionSeconds   float64  `json:"session_duration"`
}

// QueryResponse is what a conversational query returns to the caller.
type QueryResponse struct {
	Answer
	SessionID          string            `json:"session_id"`
	ClarifyingQuestion string            `json:"question,omitempty"`
	Suggestions        []string          `json:"clarification_suggestions,omitempty"`
	Subject            string            `json:"subject,omitempty"`
	Retrieval          *RetrievalOutcome `json:"retrieval,omitempty"`
	ContextSummary     *ContextSummary   `json:"context_summary,omitempty"`
	Intent             *IntentResult     `json:"analysis,omitempty"`
}

// MaxQueryK bounds QueryRequest.K.
const MaxQueryK = 50

// QueryRequest is one conversational query. K, when positive, overrides the
// number of fragments the single-source path retrieves.
type QueryRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Query     string   `json:"query"`
	Sources   []string `json:"sources,omitempty"`
	Model     string   `json:"model,omitempty"`
	K         int      `json:"k,omitempty"`
}

// QueryLogEntry is one answered query in a session history.
type QueryLogEntry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Query     string       `json:"query"`
	Answer    string       `json:"response"`
	Intent    IntentResult `json:"analysis"`
}

type SystemStatus struct {
	Status           string          `json:"status"`
	Index            IndexStatus     `json:"vector_store"`
	AvailableSources []string        `json:"available_agencies"`
	Models           ModelSet        `json:"models"`
	Features         map[string]bool `json:"features"`
}

type IndexStatus struct {
	IndexStats
	LoadError string `json:"load_error,omitempty"`
}

type ModelSet struct {
	Embedding string `json:"embedding"`
	Chat      string `json:"chat"`
}

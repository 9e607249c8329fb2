package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
	"github.com/kirillkom/regulatory-assistant/internal/core/session"
)

const (
	defaultTopK            = 5
	defaultComparativeTopK = 10

	unknownSubjectAnswer = "I couldn't identify which drug you're asking about. Could you please specify the drug name?"
	noDocumentsAnswer    = "I don't have any regulatory documents indexed yet. Please retrieve and index documents first."
	noResultsAnswer      = "I couldn't find relevant information in the indexed documents. Please try rephrasing your question or index more documents."
)

type QueryConfig struct {
	Sessions         *session.Store
	Intents          ports.IntentExtractor
	Retriever        ports.DocumentRetriever
	Index            ports.VectorIndex
	Generator        ports.AnswerGenerator
	Aggregator       *Aggregator
	Audit            ports.AuditLog
	Searches         ports.SearchObserver
	TopK             int
	ComparativeTopK  int
	MaxDocsPerSource int
	Logger           *slog.Logger
}

// QueryUseCase answers conversational queries. It decides per query whether
// the session already has grounding material or new documents must be
// fetched, then answers from a single source or compares several.
type QueryUseCase struct {
	sessions   *session.Store
	intents    ports.IntentExtractor
	retriever  ports.DocumentRetriever
	index      ports.VectorIndex
	generator  ports.AnswerGenerator
	aggregator *Aggregator
	audit      ports.AuditLog
	searches   ports.SearchObserver

	topK            int
	comparativeTopK int
	maxDocs         int
	logger          *slog.Logger
}

func NewQueryUseCase(cfg QueryConfig) *QueryUseCase {
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	comparativeTopK := cfg.ComparativeTopK
	if comparativeTopK <= 0 {
		comparativeTopK = defaultComparativeTopK
	}
	aggregator := cfg.Aggregator
	if aggregator == nil {
		aggregator = NewAggregator(nil, 0, 0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		sessions:        cfg.Sessions,
		intents:         cfg.Intents,
		retriever:       cfg.Retriever,
		index:           cfg.Index,
		generator:       cfg.Generator,
		aggregator:      aggregator,
		audit:           cfg.Audit,
		searches:        cfg.Searches,
		topK:            topK,
		comparativeTopK: comparativeTopK,
		maxDocs:         cfg.MaxDocsPerSource,
		logger:          logger,
	}
}

func (uc *QueryUseCase) ResetSession(sessionID string) {
	uc.sessions.Reset(sessionID)
}

func (uc *QueryUseCase) ProcessQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("query is required"))
	}

	sess := uc.sessions.Get(req.SessionID)
	// A source selection is committed to the session only once the query
	// has been answered.
	selected := req.Sources
	if len(selected) == 0 {
		selected = sess.Sources()
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = uc.generator.DefaultModel()
	}

	intent := uc.extractIntent(ctx, query, sess, selected)
	resp := &domain.QueryResponse{
		SessionID:   sess.ID(),
		Intent:      &intent,
		Suggestions: clarificationSuggestions(query),
	}

	if question, ok := clarificationFor(intent); ok {
		uc.logger.Info("query_clarification_needed", "session_id", sess.ID(), "intent_status", intent.Status)
		resp.Status = domain.AnswerClarification
		resp.ClarifyingQuestion = question
		resp.Text = question
		resp.Sources = []domain.SourceCitation{}
		return resp, nil
	}

	subject := uc.resolveSubject(intent.Intent, sess)
	if subject == "" {
		resp.Status = domain.AnswerError
		resp.Text = unknownSubjectAnswer
		resp.Sources = []domain.SourceCitation{}
		return resp, nil
	}
	resp.Subject = subject

	sources := intent.Intent.Sources
	if len(sources) == 0 {
		sources = selected
	}

	// The retrieval gate is evaluated before the session changes.
	needsDocs := intent.Intent.NeedsDocuments || sess.NeedsNewDocuments(subject)
	uc.logger.Info("query_analyzed",
		"session_id", sess.ID(),
		"subject", subject,
		"sources", sources,
		"topics", intent.Intent.Topics,
		"needs_documents", needsDocs,
	)

	if needsDocs {
		outcome, err := uc.retriever.RetrieveAndIndex(ctx, domain.RetrievalRequest{
			Subject:          subject,
			Sources:          sources,
			MaxDocsPerSource: uc.maxDocs,
		})
		if err != nil {
			uc.logger.Error("query_retrieval_failed", "session_id", sess.ID(), "subject", subject, "error", err)
			resp.Answer = errorAnswer(fmt.Sprintf("Document retrieval failed: %v", err), err, model)
			return resp, nil
		}
		resp.Retrieval = outcome
		sess.SetSources(req.Sources)
		sess.UpdateSubject(subject)
		sess.AddTopics(intent.Intent.Topics)
		for _, doc := range outcome.IndexedDocuments {
			sess.RecordDocument(doc)
		}
	} else {
		sess.SetSources(req.Sources)
		sess.UpdateSubject(subject)
		sess.AddTopics(intent.Intent.Topics)
	}

	if len(sources) > 1 {
		resp.Answer = uc.answerComparative(ctx, query, subject, sources, model)
	} else {
		topK := uc.topK
		if req.K > 0 {
			topK = req.K
		}
		resp.Answer = uc.answerSingle(ctx, query, model, topK)
	}

	entry := sess.RecordQuery(query, resp.Text, intent)
	if uc.audit != nil {
		if err := uc.audit.RecordQuery(ctx, entry); err != nil {
			uc.logger.Warn("audit_query_failed", "session_id", sess.ID(), "error", err)
		}
	}
	summary := sess.Summary()
	resp.ContextSummary = &summary
	return resp, nil
}

func (uc *QueryUseCase) extractIntent(ctx context.Context, query string, sess *session.Context, sources []string) domain.IntentResult {
	conversation := sess.IntentContext()
	conversation.Sources = sources
	raw, err := uc.intents.ExtractIntent(ctx, query, conversation)
	if err != nil {
		uc.logger.Error("intent_extraction_failed", "session_id", sess.ID(), "error", err)
		// Safe default: ask the user to rephrase.
		return domain.ParsedIntent(domain.Intent{
			QueryType:          "vague",
			Ambiguous:          true,
			ClarifyingQuestion: unavailableIntentQuestion,
		})
	}
	result := ParseIntent(raw)
	if result.Status == domain.IntentMalformed {
		uc.logger.Warn("intent_malformed", "session_id", sess.ID(), "raw", raw)
	}
	return result
}

func (uc *QueryUseCase) resolveSubject(intent domain.Intent, sess *session.Context) string {
	if len(intent.Subjects) > 0 {
		return intent.Subjects[0]
	}
	if subject, ok := sess.Subject(); ok {
		return subject
	}
	return ""
}

func (uc *QueryUseCase) answerSingle(ctx context.Context, query, model string, topK int) domain.Answer {
	if uc.index.Stats().TotalFragments == 0 {
		return domain.Answer{
			Status:    domain.AnswerNoDocuments,
			Text:      noDocumentsAnswer,
			Type:      domain.AnswerTypeStandard,
			Sources:   []domain.SourceCitation{},
			ModelUsed: model,
		}
	}

	hits, err := uc.search(ctx, "single", query, topK)
	if err != nil {
		return errorAnswer(fmt.Sprintf("Error generating answer: %v", err), err, model)
	}
	if len(hits) == 0 {
		return domain.Answer{
			Status:    domain.AnswerNoResults,
			Text:      noResultsAnswer,
			Type:      domain.AnswerTypeStandard,
			Sources:   []domain.SourceCitation{},
			ModelUsed: model,
		}
	}

	citations := citationsFor(hits)
	text, err := uc.generator.Generate(ctx, answerSystemPrompt, buildAnswerPrompt(query, hits), model)
	if err != nil {
		answer := errorAnswer(fmt.Sprintf("Error generating answer: %v", err), err, model)
		answer.Sources = citations
		answer.ChunksRetrieved = len(hits)
		return answer
	}
	return domain.Answer{
		Status:          domain.AnswerSuccess,
		Text:            text,
		Type:            domain.AnswerTypeStandard,
		Sources:         citations,
		ModelUsed:       model,
		ChunksRetrieved: len(hits),
	}
}

func (uc *QueryUseCase) answerComparative(ctx context.Context, query, subject string, sources []string, model string) domain.Answer {
	hits, err := uc.search(ctx, "comparative", query, uc.comparativeTopK)
	if err != nil {
		answer := errorAnswer(fmt.Sprintf("Error generating comparative analysis: %v", err), err, model)
		answer.SourcesCompared = sources
		return answer
	}
	if len(hits) == 0 {
		return domain.Answer{
			Status:          domain.AnswerNoDocuments,
			Text:            fmt.Sprintf("No documents found for %s. Please try retrieving documents first.", subject),
			Type:            domain.AnswerTypeComparison,
			Sources:         []domain.SourceCitation{},
			SourcesCompared: sources,
			ModelUsed:       model,
		}
	}

	groups := uc.aggregator.GroupBySource(hits)
	input := uc.aggregator.BuildComparativeInput(query, groups, sources)
	citations := citationsFor(hits)

	text, err := uc.generator.Generate(ctx, comparativeSystemPrompt, input, model)
	if err != nil {
		answer := errorAnswer(fmt.Sprintf("Error generating comparative analysis: %v", err), err, model)
		answer.Type = domain.AnswerTypeComparison
		answer.Sources = citations
		answer.SourcesCompared = sources
		answer.ChunksRetrieved = len(hits)
		return answer
	}
	return domain.Answer{
		Status:          domain.AnswerSuccess,
		Text:            text,
		Type:            domain.AnswerTypeComparison,
		Sources:         citations,
		SourcesCompared: sources,
		ModelUsed:       model,
		ChunksRetrieved: len(hits),
	}
}

func (uc *QueryUseCase) search(ctx context.Context, path, query string, k int) ([]domain.ScoredFragment, error) {
	started := time.Now()
	hits, err := uc.index.Search(ctx, query, k)
	if uc.searches != nil && err == nil {
		uc.searches.ObserveSearch(path, len(hits), time.Since(started))
	}
	return hits, err
}

func citationsFor(hits []domain.ScoredFragment) []domain.SourceCitation {
	out := make([]domain.SourceCitation, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.SourceCitation{
			Document:   hit.DocumentName,
			Source:     hit.Source,
			ChunkIndex: hit.Position,
			Similarity: hit.Similarity,
			Distance:   hit.Distance,
		})
	}
	return out
}

func errorAnswer(text string, err error, model string) domain.Answer {
	return domain.Answer{
		Status:    domain.AnswerError,
		Text:      text,
		Sources:   []domain.SourceCitation{},
		ModelUsed: model,
		Error:     err.Error(),
	}
}

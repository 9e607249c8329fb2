package ports

import (
	"context"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

// DocumentRetriever is the inbound contract for retrieve-and-index passes.
type DocumentRetriever interface {
	RetrieveAndIndex(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalOutcome, error)
	KnownSources() []string
}

// QueryService answers conversational queries.
type QueryService interface {
	ProcessQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
	ResetSession(sessionID string)
}

// StatusReader reports system status.
type StatusReader interface {
	Status() domain.SystemStatus
}

package usecase

import (
	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

// loadErrorReporter is implemented by indexes that can detect a corrupted
// snapshot at startup.
type loadErrorReporter interface {
	LoadError() error
}

type StatusUseCase struct {
	index     ports.VectorIndex
	retriever ports.DocumentRetriever
	models    domain.ModelSet
	features  map[string]bool
}

func NewStatusUseCase(index ports.VectorIndex, retriever ports.DocumentRetriever, models domain.ModelSet, features map[string]bool) *StatusUseCase {
	return &StatusUseCase{
		index:     index,
		retriever: retriever,
		models:    models,
		features:  features,
	}
}

func (uc *StatusUseCase) Status() domain.SystemStatus {
	st := domain.SystemStatus{
		Status:           "online",
		Index:            domain.IndexStatus{IndexStats: uc.index.Stats()},
		AvailableSources: uc.retriever.KnownSources(),
		Models:           uc.models,
		Features: map[string]bool{
			"autonomous_query_processing": true,
			"comparative_analysis":        true,
			"context_tracking":            true,
		},
	}
	for name, enabled := range uc.features {
		st.Features[name] = enabled
	}
	if reporter, ok := uc.index.(loadErrorReporter); ok {
		if err := reporter.LoadError(); err != nil {
			st.Status = "degraded"
			st.Index.LoadError = err.Error()
		}
	}
	return st
}

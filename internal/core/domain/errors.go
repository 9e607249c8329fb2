package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrEmbeddingUnavailable  = fmt.Errorf("embedding unavailable: %w", ErrCapabilityUnavailable)
	ErrGenerationUnavailable = fmt.Errorf("generation unavailable: %w", ErrCapabilityUnavailable)
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrUnknownSource         = errors.New("unknown source")
	ErrIngestFailed          = errors.New("ingest failed")
	ErrIngestPartialFailure  = errors.New("ingest partial failure")
	ErrIndexCorrupt          = errors.New("index corrupt")
	ErrNoDocuments           = errors.New("no documents")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

package httpadapter

import (
	"net/http"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnknownSource):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNoDocuments):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrIngestFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrCapabilityUnavailable), domain.IsKind(err, domain.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

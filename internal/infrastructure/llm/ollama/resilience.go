package ollama

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Ollama answers 500 while a model is still loading, so it is retried too.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusInternalServerError {
			return resilience.Transient
		}
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}

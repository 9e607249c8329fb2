package httpagent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "source status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("get %s status: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("get %s status: %s: %s", e.URL, e.Status, strings.TrimSpace(e.Body))
}

func classifyHTTPError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}

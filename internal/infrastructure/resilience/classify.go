package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

var (
	// Transient failures: try again and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures fail fast but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures neither retry nor count.
	Ignored = ErrorClassification{}
)

// ClassifyCommon decides the failures every outbound adapter treats alike:
// cancellation, timeouts, an open breaker and network errors. ok is false
// when the adapter has to decide itself.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return Ignored, true
	case errors.Is(err, context.DeadlineExceeded), IsCircuitOpen(err):
		// A caller deadline is caught by the executor before the next attempt.
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// RetryableHTTPStatus reports upstream statuses worth another attempt.
func RetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ClassifyHTTPStatus maps an upstream status code. Client errors other than
// throttling never trip the breaker.
func ClassifyHTTPStatus(code int) ErrorClassification {
	switch {
	case RetryableHTTPStatus(code):
		return Transient
	case code >= http.StatusInternalServerError:
		return Permanent
	default:
		return Ignored
	}
}

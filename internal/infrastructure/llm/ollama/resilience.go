package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the Ollama server.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

// classifyOllamaError decides retry and breaker accounting. Caller cancellation and 4xx
// answers say nothing about backend health.
func classifyOllamaError(err error) resilience.Outcome {
	var (
		statusErr *HTTPStatusError
		netErr    net.Error
	)
	switch {
	case err == nil:
		return resilience.Benign
	case errors.Is(err, context.Canceled):
		return resilience.Benign
	case errors.Is(err, context.DeadlineExceeded):
		// an attempt timeout is a slow backend; the caller's deadline stops the loop anyway
		return resilience.Transient
	case resilience.IsCircuitOpen(err):
		return resilience.Transient
	case errors.As(err, &statusErr):
		if retryableStatus(statusErr.StatusCode) {
			return resilience.Transient
		}
		return resilience.Benign
	case errors.As(err, &netErr):
		return resilience.Transient
	default:
		return resilience.Fault
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retry {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrTransport, operation, err)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

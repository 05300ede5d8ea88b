package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ...}. Server-side failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal server error"
	case status == http.StatusNotFound:
		message = notFoundMessage(err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func notFoundMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return "document not found"
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return "chat session not found"
	default:
		return "not found"
	}
}

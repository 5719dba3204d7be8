package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	core "github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/binder"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status. Unclassified errors are internal.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrUnauthorized:
		return http.StatusUnauthorized
	case core.ErrForbidden:
		return http.StatusForbidden
	case core.ErrValidation:
		return http.StatusBadRequest
	case core.ErrConflict:
		return http.StatusConflict
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrUpstream:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, binder.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, binder.ErrFailedToParseJSON):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// messageFor returns the text shown to the caller. Server errors never expose details.
func messageFor(status int, err error) string {
	switch {
	case status == http.StatusBadGateway:
		return "upstream provider error"
	case status >= http.StatusInternalServerError:
		return "internal error"
	case status == http.StatusRequestEntityTooLarge:
		return "request body too large"
	case status == http.StatusUnsupportedMediaType:
		return "content type must be application/json"
	case errors.Is(err, binder.ErrFailedToParseJSON):
		return "invalid request body"
	}
	return core.Message(err)
}

// writeError logs expected outcomes at warn and failures at error, then writes the
// mapped status with a caller-safe message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	attrs := []any{slog.String("op", op), slog.Int("status", status), logger.Error(err)}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "billing request failed", attrs...)
	} else {
		h.logger.WarnContext(r.Context(), "billing request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: messageFor(status, err)})
}

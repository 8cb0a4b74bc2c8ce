package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/storefront/internal/domain"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, message, details}. Causes wrapped inside a
// domain error are logged but never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	de := domain.AsError(err)
	code := domain.CodeOf(de)

	message := de.Message
	details := de.Details
	if errors.Is(de, domain.ErrUnknown) {
		message = "An unexpected error occurred"
		details = map[string]any{}
	}

	if code.Status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Int("code", code.Value),
			zap.Error(err),
		)
	}

	writeJSON(w, code.Status, errorResponse{
		Code:    code.Value,
		Message: message,
		Details: details,
	})
}

func writeKind(w http.ResponseWriter, r *http.Request, kind error, message string, details map[string]any) {
	writeError(w, r, nil, domain.NewError(kind, message, details))
}

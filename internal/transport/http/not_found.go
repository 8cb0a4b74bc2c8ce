package http

import (
	"net/http"

	"github.com/cimillas/storefront/internal/domain"
)

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeKind(w, r, domain.ErrNotFound, "", map[string]any{"path": r.URL.Path})
	})
}

func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeKind(w, r, domain.ErrMethodNotAllowed, "", map[string]any{"method": r.Method, "path": r.URL.Path})
	})
}

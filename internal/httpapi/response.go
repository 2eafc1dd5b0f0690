// Package httpapi is the thin chi-routed HTTP surface over Core: it
// marshals Core's return values to JSON and maps apperr.Code to status
// codes, leaving feed XML rendering, auth UI, and operator dashboards
// kept minimal, to whatever reverse-proxied layer wants them.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/podible/podible-server/internal/apperr"
)

// writeJSON marshals data as the response body with status.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httpapi: encode response failed", slog.Any("error", err))
	}
}

// writeError maps err to a status code and a {"error": "..."} body: an
// *apperr.Error uses its own code, anything else becomes a 500 with a
// generic message so internals never leak to a client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, logger, appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
		return
	}
	logger.Error("httpapi: unhandled error", slog.Any("error", err))
	writeJSON(w, logger, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

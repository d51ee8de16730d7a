package httpapi

import (
	"encoding/json"
	"net/http"

	errx "github.com/storewise-ai/server/internal/core/error"
	logx "github.com/storewise-ai/server/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps an error chain to a JSON error body. Only the AppError safe
// message reaches the merchant; the underlying error goes to the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		logx.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: errx.MessageOf(err)})
}

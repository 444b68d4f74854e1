package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Archive states reported by /healthz.
const (
	archiveDisabled    = "disabled"
	archiveOK          = "ok"
	archiveUnreachable = "unreachable"
)

type healthResponse struct {
	Status  string `json:"status"`
	Archive string `json:"archive"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Archive string `json:"archive,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write JSON", "status", status, "error", err)
	}
}

func writeArchiveError(w http.ResponseWriter, logger *slog.Logger, msg string) {
	writeJSON(w, logger, http.StatusServiceUnavailable, errorResponse{
		Error:   http.StatusText(http.StatusServiceUnavailable),
		Message: msg,
		Archive: archiveUnreachable,
	})
}

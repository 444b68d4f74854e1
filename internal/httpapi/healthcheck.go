package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthchecker struct {
	db     Pinger
	logger *slog.Logger
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	archive := archiveDisabled
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error("archive database ping failed", "error", err)
			writeArchiveError(w, h.logger, "archive database unreachable")
			return
		}
		archive = archiveOK
	}
	writeJSON(w, h.logger, http.StatusOK, healthResponse{Status: "ok", Archive: archive})
}

func registerHealthcheck(mux *http.ServeMux, db Pinger, logger *slog.Logger) {
	h := &healthchecker{db: db, logger: logger}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

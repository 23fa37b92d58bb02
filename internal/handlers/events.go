package handlers

import (
	"context"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/models"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventSource lists stored controller events, newest first.
type EventSource interface {
	Recent(ctx context.Context, limit int64) ([]models.EventRecord, error)
}

// EventsHandler serves the event history. A nil Store means persistence is
// disabled.
type EventsHandler struct {
	Store EventSource
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "Event store disabled", http.StatusServiceUnavailable)
		return
	}

	limit := int64(defaultEventLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		limit = n
	}

	events, err := h.Store.Recent(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to query events")
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

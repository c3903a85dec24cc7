package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
)

const maxListLimit = 500

type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]models.DeadLetter, error)
}

type DeadLettersHandler struct {
	Log  zerolog.Logger
	Repo DeadLetterLister
}

func (h *DeadLettersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	items, err := h.Repo.List(ctx, limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("list dead letters failed")
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.DeadLetter{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": items,
		"count": len(items),
	})
}

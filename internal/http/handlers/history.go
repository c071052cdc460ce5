package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListHistory returns archived batches ordered by recency.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.History.List(r.Context())
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"entries": records})
}

// RemoveHistoryEntry deletes one archived batch.
func (a *App) RemoveHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.History.Remove(r.Context(), id); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory deletes every archived batch.
func (a *App) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Clear(r.Context()); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

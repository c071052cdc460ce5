package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

type regenerateRequest struct {
	Style string `json:"style"`
	Pose  string `json:"pose"`
}

// RegenerateItem re-runs image generation for one item with an
// overridden style and pose.
func (a *App) RegenerateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	current, ok := a.Pipeline.Item(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "item not found")
		return
	}
	style := current.Style
	if req.Style != "" {
		style = domain.NormalizeStyle(req.Style)
	}
	pose := current.Pose
	if req.Pose != "" {
		pose = req.Pose
	}

	item, err := a.Pipeline.Regenerate(r.Context(), id, style, pose)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, itemToResponse(item))
}

// GenerateItemVideo starts the video synthesis job for one item.
func (a *App) GenerateItemVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := a.Pipeline.GenerateVideo(r.Context(), id)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, itemToResponse(item))
}

// ItemPhoto serves the generated photo bytes.
func (a *App) ItemPhoto(w http.ResponseWriter, r *http.Request) {
	a.serveItemMedia(w, r, func(it domain.Item) *domain.Media { return it.PhotoResult })
}

// ItemVideo serves the generated video bytes.
func (a *App) ItemVideo(w http.ResponseWriter, r *http.Request) {
	a.serveItemMedia(w, r, func(it domain.Item) *domain.Media { return it.VideoResult })
}

func (a *App) serveItemMedia(w http.ResponseWriter, r *http.Request, pick func(domain.Item) *domain.Media) {
	id := chi.URLParam(r, "id")
	item, ok := a.Pipeline.Item(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "item not found")
		return
	}
	media := pick(item)
	if media == nil || media.IsZero() {
		a.error(w, http.StatusNotFound, "not_found", "asset not generated yet")
		return
	}
	w.Header().Set("Content-Type", media.MIME)
	_, _ = w.Write(media.Data)
}

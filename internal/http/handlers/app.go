package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"studio/internal/domain"
	"studio/internal/history"
	"studio/internal/infra"
	"studio/internal/pipeline"
)

// App bundles the dependencies the HTTP layer needs.
type App struct {
	Pipeline *pipeline.Service
	History  history.Store
	Logger   infra.Logger
}

func NewApp(p *pipeline.Service, h history.Store, logger infra.Logger) *App {
	return &App{Pipeline: p, History: h, Logger: logger}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorResponse{Code: kind, Message: message})
}

// domainError maps the error taxonomy onto HTTP status codes and stable
// error codes the presentation layer can match on.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "invalid_parameters", err.Error())
	case errors.Is(err, domain.ErrPlanning):
		a.error(w, http.StatusBadGateway, "planning_failed", err.Error())
	case errors.Is(err, domain.ErrGeneration):
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrPhotoNotReady):
		a.error(w, http.StatusConflict, "photo_not_ready", err.Error())
	case errors.Is(err, domain.ErrCredentialMissing):
		a.error(w, http.StatusUnauthorized, "credential_missing", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type itemResponse struct {
	ID          string `json:"id"`
	Pose        string `json:"pose"`
	Style       string `json:"style"`
	StyleLabel  string `json:"style_label"`
	AspectRatio string `json:"aspect_ratio"`
	PhotoState  string `json:"photo_state"`
	PhotoError  string `json:"photo_error,omitempty"`
	HasPhoto    bool   `json:"has_photo"`
	VideoState  string `json:"video_state"`
	VideoError  string `json:"video_error,omitempty"`
	HasVideo    bool   `json:"has_video"`
}

func itemToResponse(it domain.Item) itemResponse {
	return itemResponse{
		ID:          it.ID,
		Pose:        it.Pose,
		Style:       string(it.Style),
		StyleLabel:  styleLabel(it.Style),
		AspectRatio: string(it.AspectRatio),
		PhotoState:  string(it.PhotoState),
		PhotoError:  it.PhotoError,
		HasPhoto:    it.PhotoResult != nil,
		VideoState:  string(it.VideoState),
		VideoError:  it.VideoError,
		HasVideo:    it.VideoResult != nil,
	}
}

func itemsToResponse(items []domain.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = itemToResponse(it)
	}
	return out
}

package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"studio/internal/domain"
	"studio/pkg/zip"
)

type imagePayload struct {
	DataBase64 string `json:"data_base64"`
	MIME       string `json:"mime"`
}

type startBatchRequest struct {
	Description  string        `json:"description"`
	Count        int           `json:"count"`
	DelaySeconds float64       `json:"delay_seconds"`
	Style        string        `json:"style"`
	AspectRatio  string        `json:"aspect_ratio"`
	ProductImage *imagePayload `json:"product_image,omitempty"`
	ModelImage   *imagePayload `json:"model_image,omitempty"`
}

type batchResponse struct {
	Items []itemResponse `json:"items"`
}

// StartBatch plans and launches a new batch. The previous batch, if any,
// is superseded. Replies 202 with the planned items in loading state.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	params := domain.BatchParameters{
		Description: req.Description,
		ItemCount:   req.Count,
		ItemDelay:   time.Duration(req.DelaySeconds * float64(time.Second)),
		Style:       domain.NormalizeStyle(req.Style),
		AspectRatio: domain.AspectRatio(req.AspectRatio),
	}
	if params.AspectRatio == "" {
		params.AspectRatio = domain.AspectSquare
	}

	var err error
	if params.ProductImage, err = decodeImage(req.ProductImage); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "product image: "+err.Error())
		return
	}
	if params.ModelImage, err = decodeImage(req.ModelImage); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "model image: "+err.Error())
		return
	}

	items, err := a.Pipeline.StartBatch(r.Context(), params)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, batchResponse{Items: itemsToResponse(items)})
}

// GetBatch returns the current batch snapshot in planning order.
func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, batchResponse{Items: itemsToResponse(a.Pipeline.Items())})
}

// ArchiveBatch streams the current batch's generated assets as one zip.
func (a *App) ArchiveBatch(w http.ResponseWriter, r *http.Request) {
	items := a.Pipeline.Items()
	var assets []zip.Asset
	for i, it := range items {
		if it.PhotoResult != nil {
			assets = append(assets, zip.Asset{
				Filename: zip.NumberedName("photo", i, it.PhotoResult.MIME),
				MIME:     it.PhotoResult.MIME,
				Data:     it.PhotoResult.Data,
			})
		}
		if it.VideoResult != nil {
			assets = append(assets, zip.Asset{
				Filename: zip.NumberedName("video", i, it.VideoResult.MIME),
				MIME:     it.VideoResult.MIME,
				Data:     it.VideoResult.Data,
			})
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no generated assets yet")
		return
	}
	blob := zip.ArchiveAssets(assets)
	if len(blob) == 0 {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch.zip"))
	_, _ = w.Write(blob)
}

func decodeImage(p *imagePayload) (*domain.Media, error) {
	if p == nil || p.DataBase64 == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(p.DataBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 data")
	}
	mime := p.MIME
	if mime == "" {
		mime = "image/png"
	}
	return &domain.Media{Data: data, MIME: mime}, nil
}

package handlers

import (
	"encoding/json"
	"net/http"
)

type describeRequest struct {
	ProductImage *imagePayload `json:"product_image"`
}

type describeResponse struct {
	Description string `json:"description"`
}

// Describe writes a product description from one reference image.
func (a *App) Describe(w http.ResponseWriter, r *http.Request) {
	var req describeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	media, err := decodeImage(req.ProductImage)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "product image: "+err.Error())
		return
	}
	if media == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "product image is required")
		return
	}
	text, err := a.Pipeline.Describe(r.Context(), *media)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, describeResponse{Description: text})
}

package apihttp

import (
	"encoding/json"
	"net/http"
	"time"

	brands "settlement-platform/internal/brands/domain"
)

type brandResponse struct {
	ID       int64  `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Status   string `json:"status"`
}

type brandRequest struct {
	ID       int64  `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Status   string `json:"status"`
}

// BrandsHandler serves the brand registry at /api/v1/brands.
type BrandsHandler struct {
	repo brands.Repository
}

func NewBrandsHandler(repo brands.Repository) *BrandsHandler {
	return &BrandsHandler{repo: repo}
}

func (h *BrandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.save(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BrandsHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	out := make([]brandResponse, 0, len(items))
	for _, b := range items {
		out = append(out, brandResponse{
			ID:       b.ID,
			TenantID: b.TenantID,
			Name:     b.Name,
			Timezone: b.Timezone,
			Status:   b.Status,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": out,
		"total": len(out),
	})
}

func (h *BrandsHandler) save(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	brand := brands.Brand{
		ID:       req.ID,
		TenantID: req.TenantID,
		Name:     req.Name,
		Timezone: req.Timezone,
		Status:   req.Status,
	}
	if brand.Status == "" {
		brand.Status = brands.StatusActive
	}
	if brand.Timezone == "" {
		brand.Timezone = "UTC"
	}
	if err := brand.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(brand.Timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}
	if err := h.repo.Save(r.Context(), &brand); err != nil {
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(brandResponse{
		ID:       brand.ID,
		TenantID: brand.TenantID,
		Name:     brand.Name,
		Timezone: brand.Timezone,
		Status:   brand.Status,
	})
}

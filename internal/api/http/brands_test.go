package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	brands "settlement-platform/internal/brands/domain"
	brandmem "settlement-platform/internal/brands/infrastructure/memory"
)

func TestBrandsHandlerSaveAndList(t *testing.T) {
	repo := brandmem.NewBrandRepository()
	handler := NewBrandsHandler(repo)

	body := `{"id":7,"tenant_id":"tenant-a","name":"Coffee Chain","timezone":"Asia/Seoul"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/brands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status: got=%d want=200 body=%s", rec.Code, rec.Body.String())
	}

	saved, err := repo.Get(req.Context(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if saved == nil || saved.Status != brands.StatusActive {
		t.Fatalf("saved brand: %+v", saved)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/brands", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got=%d want=200", rec.Code)
	}
	var resp struct {
		Items []brandResponse `json:"items"`
		Total int             `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("total: got=%d items=%d want=1", resp.Total, len(resp.Items))
	}
	if resp.Items[0].Name != "Coffee Chain" || resp.Items[0].Timezone != "Asia/Seoul" {
		t.Fatalf("item: %+v", resp.Items[0])
	}
}

func TestBrandsHandlerRejectsBadTimezone(t *testing.T) {
	handler := NewBrandsHandler(brandmem.NewBrandRepository())

	body := `{"id":7,"tenant_id":"tenant-a","name":"Coffee Chain","timezone":"Mars/Olympus"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/brands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=400", rec.Code)
	}
}

func TestBrandsHandlerRejectsInvalidBrand(t *testing.T) {
	handler := NewBrandsHandler(brandmem.NewBrandRepository())

	body := `{"id":0,"tenant_id":"tenant-a","name":"Coffee Chain"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/brands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=400", rec.Code)
	}
}

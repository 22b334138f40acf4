package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	settlement "settlement-platform/internal/settlement/domain"
)

// TierReader loads tier aggregates for report rendering.
type TierReader interface {
	FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error)
	ListTiersInRange(ctx context.Context, kind settlement.TierKind, from, to time.Time) ([]*settlement.TierAggregate, error)
}

// ReportsHandler serves monthly settlement report downloads.
type ReportsHandler struct {
	tiers TierReader
}

// NewReportsHandler constructs the handler.
func NewReportsHandler(tiers TierReader) (*ReportsHandler, error) {
	if tiers == nil {
		return nil, errors.New("reports handler: nil tier reader")
	}
	return &ReportsHandler{tiers: tiers}, nil
}

// ServeHTTP handles GET /api/v1/reports/monthly/{periodKey}.{pdf|xlsx}.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/monthly/")
	if rest == r.URL.Path || rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	periodKey, format, ok := strings.Cut(rest, ".")
	if !ok || (format != "pdf" && format != "xlsx") {
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
		return
	}

	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		http.Error(w, "brand_id is required", http.StatusBadRequest)
		return
	}

	monthStart, err := time.Parse("200601", periodKey)
	if err != nil {
		http.Error(w, "period must be YYYYMM", http.StatusBadRequest)
		return
	}

	monthly, err := h.tiers.FindTier(r.Context(), settlement.TierMonthly, brandID, periodKey)
	if err != nil {
		http.Error(w, "query report error", http.StatusInternalServerError)
		return
	}
	if monthly == nil {
		http.Error(w, "monthly settlement not found", http.StatusNotFound)
		return
	}

	allDays, err := h.tiers.ListTiersInRange(r.Context(), settlement.TierDaily, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		http.Error(w, "query report error", http.StatusInternalServerError)
		return
	}
	days := allDays[:0]
	for _, day := range allDays {
		if day.BrandID() == brandID {
			days = append(days, day)
		}
	}

	var data []byte
	var contentType string
	switch format {
	case "pdf":
		data, err = BuildMonthlyReportPDF(monthly, days)
		contentType = "application/pdf"
	case "xlsx":
		data, err = BuildMonthlyReportXLSX(monthly, days)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("settlement-%d-%s.%s", brandID, periodKey, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

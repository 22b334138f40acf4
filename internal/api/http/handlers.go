package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"settlement-platform/internal/auth"
	settlement "settlement-platform/internal/settlement/domain"
	settlementinterfaces "settlement-platform/internal/settlement/interfaces"
)

const dateLayout = "2006-01-02"

// TierReader loads tier aggregates for read queries.
type TierReader interface {
	FindTier(ctx context.Context, kind settlement.TierKind, brandID int64, periodKey string) (*settlement.TierAggregate, error)
	ListTiersInRange(ctx context.Context, kind settlement.TierKind, from, to time.Time) ([]*settlement.TierAggregate, error)
}

// Clock provides time for period resolution.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type tierResponse struct {
	SettlementNumber string `json:"settlement_number"`
	BrandID          int64  `json:"brand_id"`
	Kind             string `json:"kind"`
	PeriodKey        string `json:"period_key"`
	PeriodStart      string `json:"period_start"`
	Timezone         string `json:"timezone"`
	Status           string `json:"status"`
	OrderCount       int64  `json:"order_count"`
	SalesAmount      string `json:"sales_amount"`
	CommissionAmount string `json:"commission_amount"`
	TaxAmount        string `json:"tax_amount"`
	PGFeeAmount      string `json:"pg_fee_amount"`
	FinalAmount      string `json:"final_settlement_amount"`
}

func toTierResponse(agg *settlement.TierAggregate) tierResponse {
	totals := agg.Totals()
	return tierResponse{
		SettlementNumber: agg.SettlementNumber(),
		BrandID:          agg.BrandID(),
		Kind:             string(agg.Kind()),
		PeriodKey:        agg.Period().Key(),
		PeriodStart:      agg.Period().Start().Format(dateLayout),
		Timezone:         agg.Timezone(),
		Status:           string(agg.Status()),
		OrderCount:       totals.OrderCount,
		SalesAmount:      totals.SalesAmount.String(),
		CommissionAmount: totals.CommissionAmount.String(),
		TaxAmount:        totals.TaxAmount.String(),
		PGFeeAmount:      totals.PGFeeAmount.String(),
		FinalAmount:      agg.FinalSettlementAmount().String(),
	}
}

// TenantChecker verifies a brand belongs to the caller's tenant.
type TenantChecker interface {
	EnsureBrandTenant(ctx context.Context, tenantID string, brandID int64) error
}

// SettlementsHandler serves paginated tier aggregate listings.
type SettlementsHandler struct {
	tiers   TierReader
	tenants TenantChecker
}

// NewSettlementsHandler constructs a SettlementsHandler.
func NewSettlementsHandler(tiers TierReader) *SettlementsHandler {
	return &SettlementsHandler{tiers: tiers}
}

// WithTenantChecker enables cross-tenant brand filtering.
func (h *SettlementsHandler) WithTenantChecker(tenants TenantChecker) *SettlementsHandler {
	h.tenants = tenants
	return h
}

func (h *SettlementsHandler) checkTenant(w http.ResponseWriter, r *http.Request) bool {
	if h.tenants == nil {
		return true
	}
	rawBrand := r.URL.Query().Get("brand_id")
	if rawBrand == "" {
		return true
	}
	brandID, err := strconv.ParseInt(rawBrand, 10, 64)
	if err != nil {
		// listTiers reports the malformed value.
		return true
	}
	err = h.tenants.EnsureBrandTenant(r.Context(), auth.TenantIDFromContext(r.Context()), brandID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "brand not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrTenantMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "tenant check failed", http.StatusInternalServerError)
	}
	return false
}

// ServeHTTP handles GET /api/v1/settlements.
func (h *SettlementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.tiers == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if !h.checkTenant(w, r) {
		return
	}

	aggs, err := listTiers(r, h.tiers)
	if err != nil {
		var badRequest *queryError
		if errors.As(err, &badRequest) {
			http.Error(w, badRequest.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "query settlements error", http.StatusInternalServerError)
		return
	}

	page, size := parsePagination(r)
	total := len(aggs)
	lo := (page - 1) * size
	if lo > total {
		lo = total
	}
	hi := lo + size
	if hi > total {
		hi = total
	}

	items := make([]tierResponse, 0, hi-lo)
	for _, agg := range aggs[lo:hi] {
		items = append(items, toTierResponse(agg))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": items,
		"page":  page,
		"size":  size,
		"total": total,
	})
}

// ExportSettlementsCSVHandler serves tier aggregate CSV exports.
type ExportSettlementsCSVHandler struct {
	tiers TierReader
}

// NewExportSettlementsCSVHandler constructs a ExportSettlementsCSVHandler.
func NewExportSettlementsCSVHandler(tiers TierReader) *ExportSettlementsCSVHandler {
	return &ExportSettlementsCSVHandler{tiers: tiers}
}

// ServeHTTP handles GET /api/v1/exports/settlements.csv.
func (h *ExportSettlementsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.tiers == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	aggs, err := listTiers(r, h.tiers)
	if err != nil {
		var badRequest *queryError
		if errors.As(err, &badRequest) {
			http.Error(w, badRequest.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "query settlements error", http.StatusInternalServerError)
		return
	}

	data, err := settlementinterfaces.BuildTierCSV(aggs)
	if err != nil {
		http.Error(w, "build csv error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="settlements.csv"`)
	_, _ = w.Write(data)
}

// StatsHandler serves per-brand settlement rollups.
type StatsHandler struct {
	tiers TierReader
	loc   *time.Location
	clock Clock
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(tiers TierReader, loc *time.Location) *StatsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsHandler{tiers: tiers, loc: loc, clock: systemClock{}}
}

// WithClock overrides the handler clock.
func (h *StatsHandler) WithClock(clock Clock) *StatsHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

type statsBucket struct {
	PeriodKey        string `json:"period_key,omitempty"`
	OrderCount       int64  `json:"order_count"`
	SalesAmount      string `json:"sales_amount"`
	CommissionAmount string `json:"commission_amount"`
	TaxAmount        string `json:"tax_amount"`
	PGFeeAmount      string `json:"pg_fee_amount"`
	FinalAmount      string `json:"final_settlement_amount"`
}

// ServeHTTP handles GET /api/v1/stats.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.tiers == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		http.Error(w, "brand_id is required", http.StatusBadRequest)
		return
	}

	now := h.clock.Now().In(h.loc)
	result := make(map[string]statsBucket, 5)

	buckets := []struct {
		name string
		kind settlement.TierKind
	}{
		{"today", settlement.TierDaily},
		{"this_week", settlement.TierWeekly},
		{"this_month", settlement.TierMonthly},
		{"this_year", settlement.TierYearly},
	}
	for _, bucket := range buckets {
		period, perr := settlement.PeriodFor(bucket.kind, now)
		if perr != nil {
			http.Error(w, "resolve period error", http.StatusInternalServerError)
			return
		}
		agg, ferr := h.tiers.FindTier(r.Context(), bucket.kind, brandID, period.Key())
		if ferr != nil {
			http.Error(w, "query stats error", http.StatusInternalServerError)
			return
		}
		result[bucket.name] = toStatsBucket(period.Key(), agg)
	}

	allTime, err := h.sumAllTime(r.Context(), brandID, now)
	if err != nil {
		http.Error(w, "query stats error", http.StatusInternalServerError)
		return
	}
	result["all_time"] = allTime

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// sumAllTime folds every yearly tier for the brand into one bucket.
func (h *StatsHandler) sumAllTime(ctx context.Context, brandID int64, now time.Time) (statsBucket, error) {
	from := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	years, err := h.tiers.ListTiersInRange(ctx, settlement.TierYearly, from, to)
	if err != nil {
		return statsBucket{}, err
	}
	var totals settlement.AggregationTotals
	for _, year := range years {
		if year.BrandID() != brandID {
			continue
		}
		totals = totals.Add(year.Totals())
	}
	return statsBucket{
		OrderCount:       totals.OrderCount,
		SalesAmount:      totals.SalesAmount.String(),
		CommissionAmount: totals.CommissionAmount.String(),
		TaxAmount:        totals.TaxAmount.String(),
		PGFeeAmount:      totals.PGFeeAmount.String(),
		FinalAmount:      totals.SalesAmount.Sub(totals.CommissionAmount).Sub(totals.TaxAmount).Sub(totals.PGFeeAmount).String(),
	}, nil
}

func toStatsBucket(periodKey string, agg *settlement.TierAggregate) statsBucket {
	if agg == nil {
		var zero settlement.AggregationTotals
		return statsBucket{
			PeriodKey:        periodKey,
			SalesAmount:      zero.SalesAmount.String(),
			CommissionAmount: zero.CommissionAmount.String(),
			TaxAmount:        zero.TaxAmount.String(),
			PGFeeAmount:      zero.PGFeeAmount.String(),
			FinalAmount:      zero.SalesAmount.String(),
		}
	}
	totals := agg.Totals()
	return statsBucket{
		PeriodKey:        periodKey,
		OrderCount:       totals.OrderCount,
		SalesAmount:      totals.SalesAmount.String(),
		CommissionAmount: totals.CommissionAmount.String(),
		TaxAmount:        totals.TaxAmount.String(),
		PGFeeAmount:      totals.PGFeeAmount.String(),
		FinalAmount:      agg.FinalSettlementAmount().String(),
	}
}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }

func badQuery(msg string) error { return &queryError{msg: msg} }

func listTiers(r *http.Request, tiers TierReader) ([]*settlement.TierAggregate, error) {
	kindValue := r.URL.Query().Get("kind")
	if kindValue == "" {
		kindValue = string(settlement.TierDaily)
	}
	kind := settlement.TierKind(strings.ToUpper(kindValue))
	if !kind.IsValid() {
		return nil, badQuery("kind must be DAILY, WEEKLY, MONTHLY or YEARLY")
	}

	from, err := parseDateQuery(r, "from")
	if err != nil {
		return nil, err
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, badQuery("to must be after from")
	}

	aggs, err := tiers.ListTiersInRange(r.Context(), kind, from, to)
	if err != nil {
		return nil, err
	}

	if raw := r.URL.Query().Get("brand_id"); raw != "" {
		brandID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || brandID <= 0 {
			return nil, badQuery("brand_id must be a positive integer")
		}
		filtered := aggs[:0]
		for _, agg := range aggs {
			if agg.BrandID() == brandID {
				filtered = append(filtered, agg)
			}
		}
		aggs = filtered
	}
	return aggs, nil
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, badQuery(key + " is required")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, badQuery(key + " must be YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}

func parsePagination(r *http.Request) (page, size int) {
	page, size = 1, 50
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			size = parsed
		}
	}
	return page, size
}

package interfaces

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"settlement-platform/internal/audit"
	"settlement-platform/internal/auth"
	"settlement-platform/internal/settlement/application"
	settlement "settlement-platform/internal/settlement/domain"
)

const dateLayout = "2006-01-02"

// AdminHandler exposes the manual pipeline triggers. Every invocation
// is audit-logged with the acting subject.
type AdminHandler struct {
	ingestion     *application.IngestionJob
	engine        *application.AggregationEngine
	confirmations *application.ConfirmationJob
	loc           *time.Location
	auditLog      audit.Logger
	logger        *log.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(
	ingestion *application.IngestionJob,
	engine *application.AggregationEngine,
	confirmations *application.ConfirmationJob,
	loc *time.Location,
	auditLog audit.Logger,
	logger *log.Logger,
) (*AdminHandler, error) {
	if engine == nil {
		return nil, errors.New("admin handler: nil engine")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AdminHandler{
		ingestion:     ingestion,
		engine:        engine,
		confirmations: confirmations,
		loc:           loc,
		auditLog:      auditLog,
		logger:        logger,
	}, nil
}

// ServeHTTP handles /api/v1/admin/ and subroutes.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/admin/aggregation/run":
		h.handleAggregationRun(w, r)
	case r.URL.Path == "/api/v1/admin/ingestion/run":
		h.handleIngestionRun(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/admin/confirmations/"):
		h.handleConfirmation(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleAggregationRun triggers one tick. A failed tick returns the
// raw error text and zero counts; no partial state was committed.
func (h *AdminHandler) handleAggregationRun(w http.ResponseWriter, r *http.Request) {
	h.recordAudit(r, "aggregation.run", "")

	result, err := h.engine.Tick(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"insertCount": 0,
			"updateCount": 0,
			"error":       err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"insertCount": result.InsertCount,
		"updateCount": result.UpdateCount,
	})
}

func (h *AdminHandler) handleIngestionRun(w http.ResponseWriter, r *http.Request) {
	if h.ingestion == nil {
		http.Error(w, "ingestion not configured", http.StatusServiceUnavailable)
		return
	}
	h.recordAudit(r, "ingestion.run", "")

	result, err := h.ingestion.Run(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reads":        result.Reads,
		"writes":       result.Writes,
		"failedChunks": result.FailedChunks,
	})
}

func (h *AdminHandler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	if h.confirmations == nil {
		http.Error(w, "confirmations not configured", http.StatusServiceUnavailable)
		return
	}

	tier := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/confirmations/")
	kind := settlement.TierKind(strings.ToUpper(tier))
	if !kind.IsValid() {
		http.Error(w, "unknown tier", http.StatusNotFound)
		return
	}

	rawDate := r.URL.Query().Get("date")
	if rawDate == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	localDate, err := time.ParseInLocation(dateLayout, rawDate, h.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	h.recordAudit(r, "confirmation.run", string(kind)+"/"+rawDate)

	var confirmed int
	switch kind {
	case settlement.TierDaily:
		confirmed, err = h.confirmations.ConfirmDaily(r.Context(), localDate)
	case settlement.TierWeekly:
		confirmed, err = h.confirmations.ConfirmWeekly(r.Context(), localDate)
	case settlement.TierMonthly:
		confirmed, err = h.confirmations.ConfirmMonthly(r.Context(), localDate)
	case settlement.TierYearly:
		confirmed, err = h.confirmations.ConfirmYearly(r.Context(), localDate)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"confirmed": confirmed})
}

func (h *AdminHandler) recordAudit(r *http.Request, action, resourceID string) {
	if h.auditLog == nil {
		return
	}
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "settlement",
		ResourceID:   resourceID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditLog.Log(r.Context(), entry); err != nil && h.logger != nil {
		h.logger.Printf("audit log failed: action=%s err=%v", action, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

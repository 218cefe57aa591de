package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/services"
	"github.com/snowquery/engine/pkg/store"
)

// maxQuestionLength bounds the accepted question size.
const maxQuestionLength = 2000

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string                    `json:"question"`
	UserID   string                    `json:"user_id,omitempty"`
	Execute  *bool                     `json:"execute,omitempty"`
	History  []models.ConversationTurn `json:"conversation_history,omitempty"`
}

// QueryHandler exposes the query pipeline.
type QueryHandler struct {
	pipeline        *services.Pipeline
	resolver        *services.TenantConfigResolver
	store           store.Store
	defaultTenantID string
	logger          *zap.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(pipeline *services.Pipeline, resolver *services.TenantConfigResolver, st store.Store, defaultTenantID string, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline:        pipeline,
		resolver:        resolver,
		store:           st,
		defaultTenantID: defaultTenantID,
		logger:          logger.Named("query-handler"),
	}
}

// RegisterRoutes registers the query route on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
}

// Query handles POST /api/query. The pipeline itself never fails; every
// outcome comes back as the uniform response envelope. Only request-shape
// problems and the daily quota produce non-200 statuses.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID := h.tenantID(r)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
			"request body must be a JSON object; conversation_history must be an array")
		return
	}

	if req.Question == "" || len(req.Question) > maxQuestionLength {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_question",
			fmt.Sprintf("Invalid question (must be 1-%d characters)", maxQuestionLength))
		return
	}

	if ok, limit := h.withinDailyQuota(r, tenantID); !ok {
		_ = ErrorResponse(w, http.StatusTooManyRequests, "quota_exceeded",
			fmt.Sprintf("Daily query limit reached (%d). Resets at midnight.", limit))
		return
	}

	execute := true
	if req.Execute != nil {
		execute = *req.Execute
	}

	resp := h.pipeline.Run(r.Context(), services.PipelineRequest{
		Question: req.Question,
		TenantID: tenantID,
		UserID:   req.UserID,
		Execute:  execute,
		History:  req.History,
	})

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

func (h *QueryHandler) tenantID(r *http.Request) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	return h.defaultTenantID
}

// withinDailyQuota checks today's query count against the tenant's limit.
// Tenants without a store record, or with no limit set, are unmetered; a
// failing count query fails open rather than blocking queries.
func (h *QueryHandler) withinDailyQuota(r *http.Request, tenantID string) (bool, int) {
	tenant, err := h.resolver.Tenant(r.Context(), tenantID)
	if err != nil || tenant == nil || tenant.DailyQueryLimit <= 0 {
		return true, 0
	}

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := h.store.CountQueriesSince(r.Context(), tenantID, todayStart)
	if err != nil {
		h.logger.Warn("quota check failed, allowing request",
			zap.String("tenant_id", tenantID),
			zap.String("error", logging.SanitizeError(err)),
		)
		return true, 0
	}

	return count < tenant.DailyQueryLimit, tenant.DailyQueryLimit
}

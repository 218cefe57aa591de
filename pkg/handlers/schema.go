package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/services"
)

// SchemaResponse is the body of the schema endpoints.
type SchemaResponse struct {
	Tables     []models.TableSchema `json:"tables"`
	CapturedAt time.Time            `json:"captured_at"`
}

// SchemaHandler serves the cached schema snapshot and forces refreshes.
type SchemaHandler struct {
	cache           *services.SchemaCache
	defaultTenantID string
	logger          *zap.Logger
}

// NewSchemaHandler creates a schema handler.
func NewSchemaHandler(cache *services.SchemaCache, defaultTenantID string, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		cache:           cache,
		defaultTenantID: defaultTenantID,
		logger:          logger.Named("schema-handler"),
	}
}

// RegisterRoutes registers the schema routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schema", h.Get)
	mux.HandleFunc("POST /api/schema/refresh", h.Refresh)
}

// Get handles GET /api/schema: the cached snapshot, refreshed if stale.
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.cache.Get)
}

// Refresh handles POST /api/schema/refresh: an unconditional refresh.
func (h *SchemaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.cache.Refresh)
}

func (h *SchemaHandler) serve(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, tenantID string) (*models.SchemaSnapshot, error)) {
	tenantID := h.tenantID(r)

	snapshot, err := fetch(r.Context(), tenantID)
	if err != nil {
		h.logger.Warn("schema fetch failed",
			zap.String("tenant_id", tenantID),
			zap.String("error", logging.SanitizeError(err)),
		)
		_ = ErrorResponse(w, http.StatusInternalServerError, "schema_unavailable",
			logging.SanitizeError(err))
		return
	}

	resp := SchemaResponse{
		Tables:     snapshot.Tables,
		CapturedAt: snapshot.CapturedAt,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}

func (h *SchemaHandler) tenantID(r *http.Request) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	return h.defaultTenantID
}

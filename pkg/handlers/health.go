package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/config"
)

// PingResponse describes the running service instance.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	UptimeSecs  int64  `json:"uptime_secs"`
}

// HealthHandler serves the liveness and identification endpoints.
type HealthHandler struct {
	cfg      *config.Config
	hostname string
	started  time.Time
	logger   *zap.Logger
}

func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HealthHandler{
		cfg:      cfg,
		hostname: hostname,
		started:  time.Now(),
		logger:   logger,
	}
}

// RegisterRoutes mounts /health and /ping on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health is the plain-text liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping reports version, environment, and host details for debugging which
// instance answered.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	resp := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "snowquery-engine",
		GoVersion:   runtime.Version(),
		Hostname:    h.hostname,
		Environment: h.cfg.Env,
		UptimeSecs:  int64(time.Since(h.started).Seconds()),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

package api

import (
	"net/http"
	"runtime"
	"time"

	"mentorchat/backend/internal/presence"
	"mentorchat/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// Handler handles health check endpoints
type Handler struct {
	checker  *health.Checker
	registry *presence.Registry
	version  string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(checker *health.Checker, registry *presence.Registry, version string) *Handler {
	return &Handler{checker: checker, registry: registry, version: version}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string                       `json:"status"`
	Timestamp  time.Time                    `json:"timestamp"`
	Version    string                       `json:"version"`
	Components map[string]*health.Component `json:"components"`
	Presence   PresenceStats                `json:"presence"`
	Memory     MemoryStats                  `json:"memory"`
}

// PresenceStats summarises the live connection registry
type PresenceStats struct {
	Online int `json:"online"`
}

// MemoryStats is a small runtime snapshot
type MemoryStats struct {
	AllocMB  uint64 `json:"alloc_mb"`
	SysMB    uint64 `json:"sys_mb"`
	GCCycles uint32 `json:"gc_cycles"`
}

// HealthHandler reports component health and presence stats
func (h *Handler) HealthHandler(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Components: h.checker.GetStatus(),
		Presence:   PresenceStats{Online: h.registry.Size()},
		Memory: MemoryStats{
			AllocMB:  memStats.Alloc / 1024 / 1024,
			SysMB:    memStats.Sys / 1024 / 1024,
			GCCycles: memStats.NumGC,
		},
	}

	code := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		response.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// RegisterHealthRoutes registers health check related routes
func (h *Handler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthHandler)
}

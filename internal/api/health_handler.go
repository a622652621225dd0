package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

const serviceName = "activity-categorizer"

// DatabaseChecker pings the database
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// CacheChecker pings the shared cache tier
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	database DatabaseChecker
	cache    CacheChecker
	taxonomy *models.Taxonomy
	aiReady  bool
	logger   *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	database DatabaseChecker,
	cache CacheChecker,
	taxonomy *models.Taxonomy,
	analysis interface{ Enabled() bool },
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		database: database,
		cache:    cache,
		taxonomy: taxonomy,
		aiReady:  analysis.Enabled(),
		logger:   logger,
	}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"version":   "1.0.0",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Ready checks if the service is ready to handle requests
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	start := time.Now()

	checks := make(map[string]interface{})
	allHealthy := true

	probe := func(name string, check func(context.Context) error) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checkStart := time.Now()
		if err := check(ctx); err != nil {
			checks[name] = map[string]interface{}{
				"status":   "unhealthy",
				"error":    err.Error(),
				"duration": time.Since(checkStart).Milliseconds(),
			}
			allHealthy = false
			h.logger.Warn(name+" health check failed", zap.Error(err))
			return
		}
		checks[name] = map[string]interface{}{
			"status":   "healthy",
			"duration": time.Since(checkStart).Milliseconds(),
		}
	}

	probe("database", h.database.HealthCheck)
	probe("cache", h.cache.Ping)

	// the resolver works without subcategories, so this is informational
	checks["taxonomy"] = map[string]interface{}{
		"status":        "healthy",
		"subcategories": len(h.taxonomy.Definitions()),
	}
	checks["ai_classifier"] = map[string]interface{}{
		"status":  "healthy",
		"enabled": h.aiReady,
	}

	status := http.StatusOK
	overallStatus := "ready"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		overallStatus = "not_ready"
	}

	c.JSON(status, gin.H{
		"status":         overallStatus,
		"service":        serviceName,
		"checks":         checks,
		"total_duration": time.Since(start).Milliseconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Live checks if the service is alive
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

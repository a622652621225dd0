package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

// Categorizer resolves the category of an activity
type Categorizer interface {
	Categorize(ctx context.Context, desc models.ActivityDescriptor) models.ResolvedCategorization
}

// CategorizationHandler serves the categorization endpoint
type CategorizationHandler struct {
	resolver Categorizer
	logger   *zap.Logger
}

// NewCategorizationHandler creates a new categorization handler
func NewCategorizationHandler(resolver Categorizer, logger *zap.Logger) *CategorizationHandler {
	return &CategorizationHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// Categorize resolves one activity
// POST /api/v1/categorize
func (h *CategorizationHandler) Categorize(c *gin.Context) {
	var desc models.ActivityDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	start := time.Now()
	result := h.resolver.Categorize(c.Request.Context(), desc)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
		},
	})
}

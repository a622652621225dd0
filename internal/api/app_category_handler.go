package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

// AppCategoryManager is the cached app rule service
type AppCategoryManager interface {
	GetCategoryForApp(ctx context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error)
	SetCategoryForApp(ctx context.Context, req *models.SetAppCategoryRequest) (*models.AppCategoryRule, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, req *models.UpdateAppCategoryRequest) (*models.AppCategoryRule, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListForOrganization(ctx context.Context, orgID *uuid.UUID) ([]*models.AppCategoryRule, error)
	Subcategories() []models.SubcategoryDefinition
	ClearCache(ctx context.Context) error
}

// AppCategoryHandler handles app category administration
type AppCategoryHandler struct {
	service AppCategoryManager
	logger  *zap.Logger
}

// NewAppCategoryHandler creates a new app category handler
func NewAppCategoryHandler(service AppCategoryManager, logger *zap.Logger) *AppCategoryHandler {
	return &AppCategoryHandler{
		service: service,
		logger:  logger,
	}
}

// List returns global rules plus the organization's own
// GET /api/v1/app-categories
func (h *AppCategoryHandler) List(c *gin.Context) {
	orgID, ok := optionalUUIDQuery(c, "organization_id")
	if !ok {
		return
	}

	start := time.Now()
	rules, err := h.service.ListForOrganization(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list app categories")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app_categories": rules,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"returned":           len(rules),
		},
	})
}

// GetForApp returns the rule that applies to an app
// GET /api/v1/app-categories/app/:appName
func (h *AppCategoryHandler) GetForApp(c *gin.Context) {
	orgID, ok := optionalUUIDQuery(c, "organization_id")
	if !ok {
		return
	}

	start := time.Now()
	rule, err := h.service.GetCategoryForApp(c.Request.Context(), c.Param("appName"), orgID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get app category")
		return
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "App category not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app_category": rule,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
		},
	})
}

// Subcategories lists the subcategory definitions
// GET /api/v1/app-categories/subcategories
func (h *AppCategoryHandler) Subcategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subcategories": h.service.Subcategories()})
}

// Set creates or replaces an app rule
// POST /api/v1/app-categories
func (h *AppCategoryHandler) Set(c *gin.Context) {
	var req models.SetAppCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	start := time.Now()
	rule, err := h.service.SetCategoryForApp(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to set app category")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"app_category": rule,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
		},
	})
}

// Update changes an app rule
// PUT /api/v1/app-categories/:id
func (h *AppCategoryHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateAppCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.service.UpdateCategory(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update app category")
		return
	}

	c.JSON(http.StatusOK, gin.H{"app_category": rule})
}

// Delete removes an app rule
// DELETE /api/v1/app-categories/:id
func (h *AppCategoryHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete app category")
		return
	}

	c.Status(http.StatusNoContent)
}

// ClearCache drops every cached app rule lookup
// POST /api/v1/app-categories/cache/clear
func (h *AppCategoryHandler) ClearCache(c *gin.Context) {
	if err := h.service.ClearCache(c.Request.Context()); err != nil {
		respondError(c, h.logger, err, "Failed to clear cache")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

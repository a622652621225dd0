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

// RuleManager administers website pattern rules and organization rules
type RuleManager interface {
	ListWebsiteCategories(ctx context.Context, q *models.WebsiteCategoryQuery) ([]*models.WebsitePatternRule, error)
	CreateWebsiteCategory(ctx context.Context, req *models.WebsiteCategoryRequest) (*models.WebsitePatternRule, error)
	UpdateWebsiteCategory(ctx context.Context, id uuid.UUID, req *models.UpdateWebsiteCategoryRequest) (*models.WebsitePatternRule, error)
	DeleteWebsiteCategory(ctx context.Context, id uuid.UUID) error
	ListProductivityRules(ctx context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error)
	CreateProductivityRule(ctx context.Context, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error)
	UpdateProductivityRule(ctx context.Context, id uuid.UUID, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error)
	DeleteProductivityRule(ctx context.Context, id uuid.UUID) error
}

// RuleHandler handles website category and productivity rule endpoints
type RuleHandler struct {
	rules  RuleManager
	logger *zap.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(rules RuleManager, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		rules:  rules,
		logger: logger,
	}
}

// ListWebsiteCategories lists website rules
// GET /api/v1/website-categories
func (h *RuleHandler) ListWebsiteCategories(c *gin.Context) {
	orgID, ok := optionalUUIDQuery(c, "organization_id")
	if !ok {
		return
	}

	query := &models.WebsiteCategoryQuery{OrganizationID: orgID}
	query.Limit, query.Offset = pagination(c, 200, 1000)

	if raw := c.Query("category"); raw != "" {
		category, err := models.ParseCategory(raw)
		if err != nil {
			respondError(c, h.logger, err, "Invalid category")
			return
		}
		query.Category = &category
	}

	start := time.Now()
	rules, err := h.rules.ListWebsiteCategories(c.Request.Context(), query)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list website categories")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"website_categories": rules,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"limit":              query.Limit,
			"offset":             query.Offset,
			"returned":           len(rules),
		},
	})
}

// CreateWebsiteCategory adds a website rule
// POST /api/v1/website-categories
func (h *RuleHandler) CreateWebsiteCategory(c *gin.Context) {
	var req models.WebsiteCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.rules.CreateWebsiteCategory(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create website category")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"website_category": rule})
}

// UpdateWebsiteCategory changes a website rule
// PUT /api/v1/website-categories/:id
func (h *RuleHandler) UpdateWebsiteCategory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateWebsiteCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.rules.UpdateWebsiteCategory(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update website category")
		return
	}

	c.JSON(http.StatusOK, gin.H{"website_category": rule})
}

// DeleteWebsiteCategory removes a website rule
// DELETE /api/v1/website-categories/:id
func (h *RuleHandler) DeleteWebsiteCategory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.rules.DeleteWebsiteCategory(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete website category")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListProductivityRules lists an organization's rules
// GET /api/v1/productivity-rules
func (h *RuleHandler) ListProductivityRules(c *gin.Context) {
	orgID, err := uuid.Parse(c.Query("organization_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	rules, err := h.rules.ListProductivityRules(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list productivity rules")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"productivity_rules": rules,
		"meta": gin.H{
			"returned": len(rules),
		},
	})
}

// CreateProductivityRule adds an organization rule
// POST /api/v1/productivity-rules
func (h *RuleHandler) CreateProductivityRule(c *gin.Context) {
	var req models.ProductivityRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.rules.CreateProductivityRule(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create productivity rule")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"productivity_rule": rule})
}

// UpdateProductivityRule replaces an organization rule
// PUT /api/v1/productivity-rules/:id
func (h *RuleHandler) UpdateProductivityRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ProductivityRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.rules.UpdateProductivityRule(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update productivity rule")
		return
	}

	c.JSON(http.StatusOK, gin.H{"productivity_rule": rule})
}

// DeleteProductivityRule removes an organization rule
// DELETE /api/v1/productivity-rules/:id
func (h *RuleHandler) DeleteProductivityRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.rules.DeleteProductivityRule(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete productivity rule")
		return
	}

	c.Status(http.StatusNoContent)
}

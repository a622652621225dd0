package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
	"activity-categorizer/internal/services"
)

// SuggestionReviewer lists and reviews suggestions
type SuggestionReviewer interface {
	ListSuggestions(ctx context.Context, q *models.SuggestionQuery) ([]*models.CategorizationSuggestion, error)
	ApplySuggestion(ctx context.Context, id uuid.UUID, req *models.ReviewRequest) (*models.CategorizationSuggestion, error)
	ApplyBatch(ctx context.Context, items []models.BatchApproveItem, reviewer *uuid.UUID) *models.BatchApproveResult
	UncategorizedDomains(ctx context.Context, limit int) ([]models.DomainUsage, error)
}

// JobTrigger starts batch jobs on demand
type JobTrigger interface {
	TriggerLearner(ctx context.Context) (*services.JobResult, error)
	TriggerAnalysis(ctx context.Context) (*services.JobResult, error)
}

// applyBatchRequest is the body of a batch approval
type applyBatchRequest struct {
	Items      []models.BatchApproveItem `json:"items" binding:"required,min=1,dive"`
	ReviewedBy *uuid.UUID                `json:"reviewed_by,omitempty"`
}

// SuggestionHandler handles suggestion review and job triggers
type SuggestionHandler struct {
	suggestions SuggestionReviewer
	jobs        JobTrigger
	logger      *zap.Logger
}

// NewSuggestionHandler creates a new suggestion handler
func NewSuggestionHandler(suggestions SuggestionReviewer, jobs JobTrigger, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		suggestions: suggestions,
		jobs:        jobs,
		logger:      logger,
	}
}

// List returns suggestions ordered by confidence
// GET /api/v1/suggestions
func (h *SuggestionHandler) List(c *gin.Context) {
	orgID, ok := optionalUUIDQuery(c, "organization_id")
	if !ok {
		return
	}

	query := &models.SuggestionQuery{OrganizationID: orgID}
	query.Limit, query.Offset = pagination(c, 100, 500)

	if raw := c.Query("status"); raw != "" {
		status := models.SuggestionStatus(raw)
		if status != models.SuggestionPending && !status.Terminal() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		query.Status = &status
	}
	if raw := c.Query("source"); raw != "" {
		source := models.SuggestionSource(raw)
		if source != models.SourceLearner && source != models.SourceAI {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source"})
			return
		}
		query.Source = &source
	}

	start := time.Now()
	items, err := h.suggestions.ListSuggestions(c.Request.Context(), query)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list suggestions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": items,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"limit":              query.Limit,
			"offset":             query.Offset,
			"returned":           len(items),
		},
	})
}

// Review approves or rejects one suggestion
// POST /api/v1/suggestions/:id/review
func (h *SuggestionHandler) Review(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	start := time.Now()
	updated, err := h.suggestions.ApplySuggestion(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to review suggestion")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestion": updated,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
		},
	})
}

// ApplyBatch approves several suggestions
// POST /api/v1/suggestions/apply-batch
func (h *SuggestionHandler) ApplyBatch(c *gin.Context) {
	var req applyBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	start := time.Now()
	result := h.suggestions.ApplyBatch(c.Request.Context(), req.Items, req.ReviewedBy)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"meta": gin.H{
			"processing_time_ms": time.Since(start).Milliseconds(),
			"requested":          len(req.Items),
		},
	})
}

// Analyze runs the AI suggestion generator now
// POST /api/v1/suggestions/analyze
func (h *SuggestionHandler) Analyze(c *gin.Context) {
	result, err := h.jobs.TriggerAnalysis(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "AI analysis failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": result,
		"meta": gin.H{
			"processing_time_ms": result.Duration.Milliseconds(),
		},
	})
}

// Learn runs the usage-pattern learner now
// POST /api/v1/suggestions/learn
func (h *SuggestionHandler) Learn(c *gin.Context) {
	result, err := h.jobs.TriggerLearner(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Pattern learning failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": result,
		"meta": gin.H{
			"processing_time_ms": result.Duration.Milliseconds(),
		},
	})
}

// Uncategorized reports frequently visited domains with no stored rule
// GET /api/v1/suggestions/uncategorized
func (h *SuggestionHandler) Uncategorized(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	domains, err := h.suggestions.UncategorizedDomains(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list uncategorized domains")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domains": domains,
		"meta": gin.H{
			"returned": len(domains),
		},
	})
}

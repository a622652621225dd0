package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/ai"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/repository"
	"activity-categorizer/internal/services"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case models.IsValidationError(err), errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrAlreadyReviewed),
		errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, repository.ErrConstraint),
		errors.Is(err, services.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, ai.ErrClassifier):
		return http.StatusBadGateway
	case errors.Is(err, ai.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server errors are logged
// and their detail is withheld from the client.
func respondError(c *gin.Context, logger *zap.Logger, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": message})
		return
	}

	logger.Debug(message, zap.Error(err), zap.Int("status", status))
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUIDQuery parses an optional uuid query parameter
func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return nil, false
	}
	return &id, true
}

// pagination reads limit and offset the way every list endpoint accepts them
func pagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

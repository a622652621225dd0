package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"activity-categorizer/internal/monitoring"
)

// AuditQuerier reads the audit trail
type AuditQuerier interface {
	QueryEvents(query *monitoring.AuditQuery) []*monitoring.AuditEvent
}

// AuditHandler exposes the audit trail
type AuditHandler struct {
	audit  AuditQuerier
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditQuerier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// Events returns audit events, newest first
// GET /api/v1/audit/events
func (h *AuditHandler) Events(c *gin.Context) {
	query := &monitoring.AuditQuery{ResourceID: c.Query("resource_id")}
	query.Limit, query.Offset = pagination(c, 100, 1000)

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		query.Since = &t
	}
	if types := c.Query("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			query.EventTypes = append(query.EventTypes, monitoring.AuditEventType(strings.TrimSpace(t)))
		}
	}

	events := h.audit.QueryEvents(query)

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"meta": gin.H{
			"limit":    query.Limit,
			"offset":   query.Offset,
			"returned": len(events),
		},
	})
}

package monitoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AuditLogger keeps an in-memory trail of admin mutations and batch job runs
// and mirrors every event to the structured log
type AuditLogger struct {
	logger *zap.Logger
	buffer chan *AuditEvent
	done   chan struct{}
	once   sync.Once

	mu        sync.RWMutex
	events    []*AuditEvent
	maxEvents int
}

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Rule events
	EventRuleCreate AuditEventType = "rule_create"
	EventRuleUpdate AuditEventType = "rule_update"
	EventRuleDelete AuditEventType = "rule_delete"

	// Suggestion events
	EventSuggestionApprove AuditEventType = "suggestion_approve"
	EventSuggestionReject  AuditEventType = "suggestion_reject"

	// System events
	EventJobRun     AuditEventType = "job_run"
	EventCacheClear AuditEventType = "cache_clear"
)

// AuditEvent represents a single audit event
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`

	ActorID      string `json:"actor_id,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`

	Action      string                 `json:"action"`
	Status      string                 `json:"status"` // "success", "failure"
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`

	Checksum string `json:"checksum"`
}

// AuditQuery represents a query for audit events
type AuditQuery struct {
	Since      *time.Time       `json:"since,omitempty"`
	EventTypes []AuditEventType `json:"event_types,omitempty"`
	ResourceID string           `json:"resource_id,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	al := &AuditLogger{
		logger:    logger,
		buffer:    make(chan *AuditEvent, 1000),
		done:      make(chan struct{}),
		maxEvents: 10000,
	}

	go al.processEvents()

	return al
}

// ProvideAuditLogger creates the audit logger and drains it on shutdown
func ProvideAuditLogger(lc fx.Lifecycle, logger *zap.Logger) *AuditLogger {
	al := NewAuditLogger(logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return al.Close()
		},
	})
	return al
}

// Event starts a new audit event
func (al *AuditLogger) Event(eventType AuditEventType, action, description string) *AuditEventBuilder {
	return &AuditEventBuilder{
		auditLogger: al,
		event: &AuditEvent{
			ID:          uuid.New().String(),
			Type:        eventType,
			Timestamp:   time.Now(),
			Action:      action,
			Description: description,
			Status:      "success",
			Details:     make(map[string]interface{}),
		},
	}
}

// QueryEvents returns matching events, newest first
func (al *AuditLogger) QueryEvents(query *AuditQuery) []*AuditEvent {
	al.mu.RLock()
	defer al.mu.RUnlock()

	filtered := make([]*AuditEvent, 0)
	for i := len(al.events) - 1; i >= 0; i-- {
		if matchesQuery(al.events[i], query) {
			filtered = append(filtered, al.events[i])
		}
	}

	if query.Offset > 0 {
		if query.Offset >= len(filtered) {
			return []*AuditEvent{}
		}
		filtered = filtered[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(filtered) {
		filtered = filtered[:query.Limit]
	}

	return filtered
}

// Close stops accepting events and waits for buffered ones to be stored
func (al *AuditLogger) Close() error {
	al.once.Do(func() {
		close(al.buffer)
	})
	<-al.done
	return nil
}

// AuditEventBuilder provides a fluent interface for building audit events
type AuditEventBuilder struct {
	auditLogger *AuditLogger
	event       *AuditEvent
}

// Actor sets who performed the action
func (b *AuditEventBuilder) Actor(actorID string) *AuditEventBuilder {
	b.event.ActorID = actorID
	return b
}

// Resource sets what was acted upon
func (b *AuditEventBuilder) Resource(resourceID, resourceType string) *AuditEventBuilder {
	b.event.ResourceID = resourceID
	b.event.ResourceType = resourceType
	return b
}

// Failed marks the event as a failure
func (b *AuditEventBuilder) Failed(err error) *AuditEventBuilder {
	b.event.Status = "failure"
	if err != nil {
		b.event.Details["error"] = err.Error()
	}
	return b
}

// Detail adds a detail field
func (b *AuditEventBuilder) Detail(key string, value interface{}) *AuditEventBuilder {
	b.event.Details[key] = value
	return b
}

// Commit queues the event. A full buffer drops the event with a warning.
func (b *AuditEventBuilder) Commit() {
	b.event.Checksum = b.generateChecksum()

	defer func() {
		// send on a closed buffer after shutdown
		if recover() != nil {
			b.auditLogger.logger.Warn("audit logger closed, dropping event",
				zap.String("event_id", b.event.ID))
		}
	}()

	select {
	case b.auditLogger.buffer <- b.event:
	default:
		b.auditLogger.logger.Warn("audit event buffer full, dropping event",
			zap.String("event_id", b.event.ID),
			zap.String("event_type", string(b.event.Type)))
	}
}

func (al *AuditLogger) processEvents() {
	defer close(al.done)
	for event := range al.buffer {
		al.storeEvent(event)
		al.logger.Info("audit event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("action", event.Action),
			zap.String("status", event.Status),
			zap.String("actor_id", event.ActorID),
			zap.String("resource_id", event.ResourceID),
			zap.String("resource_type", event.ResourceType),
			zap.Any("details", event.Details))
	}
}

func (al *AuditLogger) storeEvent(event *AuditEvent) {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.events = append(al.events, event)

	// Keep the most recent half once the cap is reached
	if len(al.events) > al.maxEvents {
		al.events = al.events[len(al.events)-al.maxEvents/2:]
	}
}

func matchesQuery(event *AuditEvent, query *AuditQuery) bool {
	if query.Since != nil && event.Timestamp.Before(*query.Since) {
		return false
	}
	if query.ResourceID != "" && event.ResourceID != query.ResourceID {
		return false
	}
	if len(query.EventTypes) == 0 {
		return true
	}
	for _, t := range query.EventTypes {
		if event.Type == t {
			return true
		}
	}
	return false
}

// generateChecksum hashes the key event fields for integrity checking
func (b *AuditEventBuilder) generateChecksum() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		b.event.ID,
		string(b.event.Type),
		b.event.Timestamp.Format(time.RFC3339Nano),
		b.event.ActorID,
		b.event.Action,
		b.event.Status)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
	"activity-categorizer/internal/repository"
)

const (
	defaultSuggestionLimit = 100
	maxSuggestionLimit     = 500

	uncategorizedLookback  = 30 * 24 * time.Hour
	uncategorizedMinVisits = 3
)

// SuggestionStore persists suggestions and applies reviews under a row lock
type SuggestionStore interface {
	List(ctx context.Context, q *models.SuggestionQuery) ([]*models.CategorizationSuggestion, error)
	Review(ctx context.Context, id uuid.UUID, decide func(*models.CategorizationSuggestion) (*models.ReviewDecision, error)) (*models.CategorizationSuggestion, error)
}

// DomainUsageSource reports visited domains without a stored website rule
type DomainUsageSource interface {
	UncategorizedDomains(ctx context.Context, since time.Time, minVisits, limit int) ([]models.DomainUsage, error)
}

// SuggestionService reviews learner and AI suggestions
type SuggestionService struct {
	store    SuggestionStore
	domains  DomainUsageSource
	taxonomy *models.Taxonomy
	audit    *monitoring.AuditLogger
	logger   *zap.Logger
	metrics  *metrics.MetricsCollector
}

// NewSuggestionService creates a new suggestion service
func NewSuggestionService(
	store SuggestionStore,
	domains DomainUsageSource,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *SuggestionService {
	return &SuggestionService{
		store:    store,
		domains:  domains,
		taxonomy: taxonomy,
		audit:    audit,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// ListSuggestions returns suggestions ordered by confidence, newest first
func (s *SuggestionService) ListSuggestions(ctx context.Context, q *models.SuggestionQuery) ([]*models.CategorizationSuggestion, error) {
	if q.Limit <= 0 {
		q.Limit = defaultSuggestionLimit
	}
	if q.Limit > maxSuggestionLimit {
		q.Limit = maxSuggestionLimit
	}
	return s.store.List(ctx, q)
}

// ApplySuggestion approves or rejects a pending suggestion. Approval writes
// the website pattern rule in the same transaction that marks the suggestion.
func (s *SuggestionService) ApplySuggestion(ctx context.Context, id uuid.UUID, req *models.ReviewRequest) (*models.CategorizationSuggestion, error) {
	if err := s.validateReview(req); err != nil {
		s.metrics.RecordSuggestionReview(string(req.Action), "invalid")
		return nil, err
	}

	var decided *models.ReviewDecision
	updated, err := s.store.Review(ctx, id, func(current *models.CategorizationSuggestion) (*models.ReviewDecision, error) {
		d, err := s.decide(current, req)
		decided = d
		return d, err
	})
	if err != nil {
		s.metrics.RecordSuggestionReview(string(req.Action), reviewResult(err))
		if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrAlreadyReviewed) && !models.IsValidationError(err) {
			s.logger.Error("failed to apply suggestion",
				zap.Error(err),
				zap.String("id", id.String()),
				zap.String("action", string(req.Action)))
		}
		return nil, err
	}

	s.metrics.RecordSuggestionReview(string(req.Action), "success")

	eventType := monitoring.EventSuggestionApprove
	if req.Action == models.ActionReject {
		eventType = monitoring.EventSuggestionReject
	}
	event := s.audit.Event(eventType, string(req.Action), "suggestion "+string(updated.Status)).
		Resource(id.String(), "suggestion").
		Detail("pattern", updated.Pattern).
		Detail("source", updated.Source)
	if req.ReviewedBy != nil {
		event.Actor(req.ReviewedBy.String())
	}
	if decided != nil && decided.Status == models.SuggestionApproved {
		event.Detail("category", decided.Category)
		if decided.Subcategory != nil {
			event.Detail("subcategory", *decided.Subcategory)
		}
	}
	event.Commit()

	s.logger.Info("suggestion reviewed",
		zap.String("id", id.String()),
		zap.String("pattern", updated.Pattern),
		zap.String("status", string(updated.Status)))

	return updated, nil
}

// ApplyBatch approves each item independently and reports per-item outcome
func (s *SuggestionService) ApplyBatch(ctx context.Context, items []models.BatchApproveItem, reviewer *uuid.UUID) *models.BatchApproveResult {
	result := &models.BatchApproveResult{Failed: make(map[uuid.UUID]string)}

	for _, item := range items {
		_, err := s.ApplySuggestion(ctx, item.ID, &models.ReviewRequest{
			Action:      models.ActionApprove,
			Category:    item.Category,
			Subcategory: item.Subcategory,
			ReviewedBy:  reviewer,
		})
		if err != nil {
			result.Failed[item.ID] = err.Error()
			continue
		}
		result.Applied++
	}

	s.logger.Info("batch approval completed",
		zap.Int("applied", result.Applied),
		zap.Int("failed", len(result.Failed)))

	return result
}

// UncategorizedDomains lists the most visited domains with no stored rule
func (s *SuggestionService) UncategorizedDomains(ctx context.Context, limit int) ([]models.DomainUsage, error) {
	if limit <= 0 || limit > maxSuggestionLimit {
		limit = defaultSuggestionLimit
	}
	return s.domains.UncategorizedDomains(ctx, time.Now().Add(-uncategorizedLookback), uncategorizedMinVisits, limit)
}

// validateReview rejects bad input before any row is locked
func (s *SuggestionService) validateReview(req *models.ReviewRequest) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: action must be approve or reject, got %q", repository.ErrInvalidInput, req.Action)
	}
	if req.Category != nil && !req.Category.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidCategory, *req.Category)
	}
	if req.Subcategory != nil {
		if _, ok := s.taxonomy.Parent(*req.Subcategory); !ok {
			return fmt.Errorf("%w: %q", models.ErrInvalidSubcategory, *req.Subcategory)
		}
	}
	if req.Category != nil && req.Subcategory != nil {
		return s.taxonomy.Validate(*req.Category, req.Subcategory)
	}
	return nil
}

// decide resolves the outcome against the locked row
func (s *SuggestionService) decide(current *models.CategorizationSuggestion, req *models.ReviewRequest) (*models.ReviewDecision, error) {
	if current.Status != models.SuggestionPending {
		return nil, fmt.Errorf("%w: status is %s", repository.ErrAlreadyReviewed, current.Status)
	}

	if req.Action == models.ActionReject {
		return &models.ReviewDecision{
			Status:     models.SuggestionRejected,
			Category:   current.SuggestedCategory,
			ReviewedBy: req.ReviewedBy,
		}, nil
	}

	category := current.SuggestedCategory
	if req.Category != nil {
		category = *req.Category
	}

	sub := current.SuggestedSubcategory
	if req.Subcategory != nil {
		sub = req.Subcategory
		if err := s.taxonomy.Validate(category, sub); err != nil {
			return nil, err
		}
	} else if !s.taxonomy.Consistent(category, sub) {
		// overriding the category orphans the suggested subcategory
		sub = nil
	}

	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidCategory, category)
	}

	return &models.ReviewDecision{
		Status:      models.SuggestionApproved,
		Category:    category,
		Subcategory: sub,
		ReviewedBy:  req.ReviewedBy,
	}, nil
}

func reviewResult(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrAlreadyReviewed):
		return "conflict"
	case models.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

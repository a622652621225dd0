package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
	"activity-categorizer/internal/repository"
)

// WebsiteRuleStore persists website pattern rules
type WebsiteRuleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebsitePatternRule, error)
	List(ctx context.Context, q *models.WebsiteCategoryQuery) ([]*models.WebsitePatternRule, error)
	Create(ctx context.Context, req *models.WebsiteCategoryRequest) (*models.WebsitePatternRule, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebsiteCategoryRequest) (*models.WebsitePatternRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProductivityRuleStore persists organization productivity rules
type ProductivityRuleStore interface {
	ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error)
	Create(ctx context.Context, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error)
	Update(ctx context.Context, id uuid.UUID, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RuleService administers website pattern rules and organization rules.
// Neither table is cached, so writes are visible to the next resolution.
type RuleService struct {
	websites     WebsiteRuleStore
	productivity ProductivityRuleStore
	taxonomy     *models.Taxonomy
	audit        *monitoring.AuditLogger
	logger       *zap.Logger
	metrics      *metrics.MetricsCollector
}

// NewRuleService creates a new rule service
func NewRuleService(
	websites WebsiteRuleStore,
	productivity ProductivityRuleStore,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *RuleService {
	return &RuleService{
		websites:     websites,
		productivity: productivity,
		taxonomy:     taxonomy,
		audit:        audit,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// ListWebsiteCategories lists website rules
func (s *RuleService) ListWebsiteCategories(ctx context.Context, q *models.WebsiteCategoryQuery) ([]*models.WebsitePatternRule, error) {
	return s.websites.List(ctx, q)
}

// CreateWebsiteCategory adds a website rule
func (s *RuleService) CreateWebsiteCategory(ctx context.Context, req *models.WebsiteCategoryRequest) (*models.WebsitePatternRule, error) {
	req.Pattern = strings.ToLower(strings.TrimSpace(req.Pattern))
	if req.Pattern == "" {
		return nil, fmt.Errorf("%w: pattern is required", repository.ErrInvalidInput)
	}
	if err := s.taxonomy.Validate(req.Category, req.Subcategory); err != nil {
		return nil, err
	}

	rule, err := s.websites.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.recordMutation(monitoring.EventRuleCreate, "website_category", "create", rule.ID).
		Detail("pattern", rule.Pattern).
		Detail("category", rule.Category).
		Commit()

	return rule, nil
}

// UpdateWebsiteCategory changes a website rule. The merged category and
// subcategory pair must be consistent.
func (s *RuleService) UpdateWebsiteCategory(ctx context.Context, id uuid.UUID, req *models.UpdateWebsiteCategoryRequest) (*models.WebsitePatternRule, error) {
	existing, err := s.websites.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, repository.ErrNotFound
	}

	category := existing.Category
	if req.Category != nil {
		category = *req.Category
	}
	sub := existing.Subcategory
	if req.Subcategory != nil {
		sub = req.Subcategory
	}
	if err := s.taxonomy.Validate(category, sub); err != nil {
		return nil, err
	}

	rule, err := s.websites.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.recordMutation(monitoring.EventRuleUpdate, "website_category", "update", rule.ID).
		Detail("pattern", rule.Pattern).
		Detail("category", rule.Category).
		Commit()

	return rule, nil
}

// DeleteWebsiteCategory removes a website rule
func (s *RuleService) DeleteWebsiteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.websites.Delete(ctx, id); err != nil {
		return err
	}
	s.recordMutation(monitoring.EventRuleDelete, "website_category", "delete", id).Commit()
	return nil
}

// ListProductivityRules lists an organization's rules
func (s *RuleService) ListProductivityRules(ctx context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error) {
	return s.productivity.ListForOrganization(ctx, orgID)
}

// CreateProductivityRule adds an organization rule
func (s *RuleService) CreateProductivityRule(ctx context.Context, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error) {
	if err := s.validateProductivityRule(req); err != nil {
		return nil, err
	}

	rule, err := s.productivity.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.recordMutation(monitoring.EventRuleCreate, "productivity_rule", "create", rule.ID).
		Detail("organization_id", rule.OrganizationID.String()).
		Detail("category", rule.Category).
		Commit()

	return rule, nil
}

// UpdateProductivityRule replaces an organization rule
func (s *RuleService) UpdateProductivityRule(ctx context.Context, id uuid.UUID, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error) {
	if err := s.validateProductivityRule(req); err != nil {
		return nil, err
	}

	rule, err := s.productivity.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.recordMutation(monitoring.EventRuleUpdate, "productivity_rule", "update", rule.ID).
		Detail("organization_id", rule.OrganizationID.String()).
		Detail("category", rule.Category).
		Commit()

	return rule, nil
}

// DeleteProductivityRule removes an organization rule
func (s *RuleService) DeleteProductivityRule(ctx context.Context, id uuid.UUID) error {
	if err := s.productivity.Delete(ctx, id); err != nil {
		return err
	}
	s.recordMutation(monitoring.EventRuleDelete, "productivity_rule", "delete", id).Commit()
	return nil
}

func (s *RuleService) validateProductivityRule(req *models.ProductivityRuleRequest) error {
	if req.OrganizationID == uuid.Nil {
		return fmt.Errorf("%w: organization_id is required", repository.ErrInvalidInput)
	}
	if !req.HasMatcher() {
		return fmt.Errorf("%w: one of app_name, url_pattern or window_title_pattern is required", repository.ErrInvalidInput)
	}
	return s.taxonomy.Validate(req.Category, req.Subcategory)
}

// recordMutation counts a rule write and starts its audit event
func (s *RuleService) recordMutation(eventType monitoring.AuditEventType, rule, operation string, id uuid.UUID) *monitoring.AuditEventBuilder {
	s.metrics.RecordRuleMutation(rule, operation)
	s.logger.Info("rule changed",
		zap.String("rule", rule),
		zap.String("operation", operation),
		zap.String("id", id.String()))
	return s.audit.Event(eventType, operation, rule+" "+operation).Resource(id.String(), rule)
}

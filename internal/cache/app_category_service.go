package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
	"activity-categorizer/internal/repository"
)

// AppRuleStore is the persistent store behind the rule cache
type AppRuleStore interface {
	FindForApp(ctx context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AppCategoryRule, error)
	ListForOrganization(ctx context.Context, orgID *uuid.UUID) ([]*models.AppCategoryRule, error)
	Upsert(ctx context.Context, req *models.SetAppCategoryRequest) (*models.AppCategoryRule, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateAppCategoryRequest) (*models.AppCategoryRule, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.AppCategoryRule, error)
}

// AppCategoryService resolves app rules cache first with fallback to the
// database. Every mutation evicts the affected keys before returning.
type AppCategoryService struct {
	cache    *RuleCache
	repo     AppRuleStore
	taxonomy *models.Taxonomy
	audit    *monitoring.AuditLogger
	logger   *zap.Logger
	metrics  *metrics.MetricsCollector
}

// NewAppCategoryService creates a new app category service
func NewAppCategoryService(
	cache *RuleCache,
	repo AppRuleStore,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *AppCategoryService {
	return &AppCategoryService{
		cache:    cache,
		repo:     repo,
		taxonomy: taxonomy,
		audit:    audit,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// GetCategoryForApp returns the organization rule for an app, else the global
// rule, else nil
func (s *AppCategoryService) GetCategoryForApp(ctx context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error) {
	key := RuleKey(appName, orgID)

	if e, ok := s.cache.Get(ctx, key); ok {
		return e.Rule, nil
	}

	gen := s.cache.Generation()
	start := time.Now()
	rule, err := s.repo.FindForApp(ctx, appName, orgID)
	if err != nil {
		return nil, err
	}

	s.cache.Fill(ctx, key, Entry{Rule: rule}, gen)

	s.logger.Debug("app category loaded from database",
		zap.String("app_name", appName),
		zap.Bool("found", rule != nil),
		zap.Duration("duration", time.Since(start)))

	return rule, nil
}

// SetCategoryForApp creates or replaces the rule for (app, organization)
func (s *AppCategoryService) SetCategoryForApp(ctx context.Context, req *models.SetAppCategoryRequest) (*models.AppCategoryRule, error) {
	req.AppName = strings.TrimSpace(req.AppName)
	if req.AppName == "" {
		return nil, fmt.Errorf("%w: app_name is required", repository.ErrInvalidInput)
	}
	if err := s.taxonomy.Validate(req.Category, req.Subcategory); err != nil {
		return nil, err
	}

	rule, err := s.repo.Upsert(ctx, req)
	if err != nil {
		return nil, err
	}

	s.evictRule(ctx, rule)
	s.metrics.RecordRuleMutation("app_category", "upsert")
	s.audit.Event(monitoring.EventRuleCreate, "upsert", "app category set").
		Resource(rule.ID.String(), "app_category").
		Detail("app_name", rule.AppName).
		Detail("category", rule.Category).
		Commit()

	s.logger.Info("app category set",
		zap.String("app_name", rule.AppName),
		zap.String("category", string(rule.Category)),
		zap.Bool("global", rule.OrganizationID == nil))

	return rule, nil
}

// UpdateCategory changes an existing rule. The resulting category and
// subcategory pair must be consistent.
func (s *AppCategoryService) UpdateCategory(ctx context.Context, id uuid.UUID, req *models.UpdateAppCategoryRequest) (*models.AppCategoryRule, error) {
	existing, err := s.repo.GetByID(ctx, id)
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

	rule, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.evictRule(ctx, rule)
	s.metrics.RecordRuleMutation("app_category", "update")
	s.audit.Event(monitoring.EventRuleUpdate, "update", "app category updated").
		Resource(rule.ID.String(), "app_category").
		Detail("app_name", rule.AppName).
		Detail("category", rule.Category).
		Commit()

	return rule, nil
}

// DeleteCategory removes a rule
func (s *AppCategoryService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	rule, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.evictRule(ctx, rule)
	s.metrics.RecordRuleMutation("app_category", "delete")
	s.audit.Event(monitoring.EventRuleDelete, "delete", "app category deleted").
		Resource(rule.ID.String(), "app_category").
		Detail("app_name", rule.AppName).
		Commit()

	s.logger.Info("app category deleted",
		zap.String("id", id.String()),
		zap.String("app_name", rule.AppName))

	return nil
}

// ListForOrganization returns global rules plus the organization's own
func (s *AppCategoryService) ListForOrganization(ctx context.Context, orgID *uuid.UUID) ([]*models.AppCategoryRule, error) {
	return s.repo.ListForOrganization(ctx, orgID)
}

// Subcategories returns the subcategory definitions in display order
func (s *AppCategoryService) Subcategories() []models.SubcategoryDefinition {
	return s.taxonomy.Definitions()
}

// ClearCache drops every cached lookup
func (s *AppCategoryService) ClearCache(ctx context.Context) error {
	n := s.cache.Len()
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("failed to purge remote rule cache", zap.Error(err))
		return fmt.Errorf("failed to clear rule cache: %w", err)
	}
	s.logger.Info("rule cache cleared", zap.Int("entries", n))
	s.audit.Event(monitoring.EventCacheClear, "clear", "rule cache cleared").
		Detail("entries", n).
		Commit()
	return nil
}

// Ping checks the shared cache tier
func (s *AppCategoryService) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// evictRule drops the cached lookups a rule change can affect. Organization
// lookups fall back to the global rule, so a global change evicts every scope.
func (s *AppCategoryService) evictRule(ctx context.Context, rule *models.AppCategoryRule) {
	if rule.OrganizationID == nil {
		s.cache.EvictApp(ctx, rule.AppName)
		return
	}
	s.cache.Evict(ctx, RuleKey(rule.AppName, rule.OrganizationID))
}

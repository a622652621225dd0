package main

import (
	"go.uber.org/zap"

	"activity-categorizer/internal/ai"
	"activity-categorizer/internal/api"
	"activity-categorizer/internal/cache"
	"activity-categorizer/internal/categorization"
	"activity-categorizer/internal/config"
	"activity-categorizer/internal/learning"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
	"activity-categorizer/internal/repository"
	"activity-categorizer/internal/services"
)

// The constructors below bind concrete stores to the narrow interfaces each
// package declares for its dependencies.

func NewAppCategoryService(
	ruleCache *cache.RuleCache,
	repo *repository.AppCategoryRepository,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *cache.AppCategoryService {
	return cache.NewAppCategoryService(ruleCache, repo, taxonomy, audit, logger, metricsCollector)
}

func NewResolver(
	cfg *config.Config,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	heuristics *categorization.Heuristics,
	taxonomy *models.Taxonomy,
	apps *cache.AppCategoryService,
	patterns *repository.WebsiteCategoryRepository,
	rules *repository.ProductivityRuleRepository,
	users *repository.UserRepository,
) *categorization.Resolver {
	return categorization.NewResolver(cfg, logger, metricsCollector, heuristics, taxonomy, apps, patterns, rules, users)
}

func NewGenerator(
	cfg *config.Config,
	activity *repository.ActivityRepository,
	classifier ai.Classifier,
	suggestions *repository.SuggestionRepository,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *ai.Generator {
	return ai.NewGenerator(cfg, activity, classifier, suggestions, logger, metricsCollector)
}

func NewLearner(
	cfg *config.Config,
	activity *repository.ActivityRepository,
	patterns *repository.WebsiteCategoryRepository,
	suggestions *repository.SuggestionRepository,
	users *repository.UserRepository,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *learning.Learner {
	return learning.NewLearner(cfg, activity, patterns, suggestions, users, logger, metricsCollector)
}

func NewScheduler(
	cfg *config.Config,
	learner *learning.Learner,
	generator *ai.Generator,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *services.Scheduler {
	return services.NewScheduler(cfg, learner, generator, audit, logger, metricsCollector)
}

func NewSuggestionService(
	suggestions *repository.SuggestionRepository,
	activity *repository.ActivityRepository,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *services.SuggestionService {
	return services.NewSuggestionService(suggestions, activity, taxonomy, audit, logger, metricsCollector)
}

func NewRuleService(
	websites *repository.WebsiteCategoryRepository,
	productivity *repository.ProductivityRuleRepository,
	taxonomy *models.Taxonomy,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *services.RuleService {
	return services.NewRuleService(websites, productivity, taxonomy, audit, logger, metricsCollector)
}

func NewCategorizationHandler(resolver *categorization.Resolver, logger *zap.Logger) *api.CategorizationHandler {
	return api.NewCategorizationHandler(resolver, logger)
}

func NewAppCategoryHandler(service *cache.AppCategoryService, logger *zap.Logger) *api.AppCategoryHandler {
	return api.NewAppCategoryHandler(service, logger)
}

func NewRuleHandler(rules *services.RuleService, logger *zap.Logger) *api.RuleHandler {
	return api.NewRuleHandler(rules, logger)
}

func NewSuggestionHandler(suggestions *services.SuggestionService, scheduler *services.Scheduler, logger *zap.Logger) *api.SuggestionHandler {
	return api.NewSuggestionHandler(suggestions, scheduler, logger)
}

func NewAuditHandler(audit *monitoring.AuditLogger, logger *zap.Logger) *api.AuditHandler {
	return api.NewAuditHandler(audit, logger)
}

func NewHealthHandler(
	database *repository.HealthChecker,
	appCategories *cache.AppCategoryService,
	taxonomy *models.Taxonomy,
	generator *ai.Generator,
	logger *zap.Logger,
) *api.HealthHandler {
	return api.NewHealthHandler(database, appCategories, taxonomy, generator, logger)
}

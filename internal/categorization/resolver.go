package categorization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

// AppRuleLookup resolves the stored rule for an application, org scope first
type AppRuleLookup interface {
	GetCategoryForApp(ctx context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error)
}

// PatternStore finds the most specific website rule for a domain
type PatternStore interface {
	FindBestMatch(ctx context.Context, domain string, orgID *uuid.UUID) (*models.WebsitePatternRule, error)
}

// CustomRuleStore lists organization rules by priority then recency
type CustomRuleStore interface {
	ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error)
}

// UserDirectory maps users to organizations
type UserDirectory interface {
	GetOrganizationID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

const (
	ruleConfidence    = 0.95
	patternConfidence = 0.9
	urlDecisiveAbove  = 0.7
)

// Resolver decides the category of an activity
type Resolver struct {
	logger     *zap.Logger
	metrics    *metrics.MetricsCollector
	heuristics *Heuristics
	taxonomy   *models.Taxonomy
	apps       AppRuleLookup
	patterns   PatternStore
	rules      CustomRuleStore
	users      UserDirectory
	timeout    time.Duration
}

// NewResolver creates a new categorization resolver
func NewResolver(
	cfg *config.Config,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	heuristics *Heuristics,
	taxonomy *models.Taxonomy,
	apps AppRuleLookup,
	patterns PatternStore,
	rules CustomRuleStore,
	users UserDirectory,
) *Resolver {
	return &Resolver{
		logger:     logger,
		metrics:    metricsCollector,
		heuristics: heuristics,
		taxonomy:   taxonomy,
		apps:       apps,
		patterns:   patterns,
		rules:      rules,
		users:      users,
		timeout:    cfg.Categorization.LookupTimeout,
	}
}

// Categorize returns the category of an activity. It never fails: store
// errors degrade to a neutral result with zero confidence.
func (r *Resolver) Categorize(ctx context.Context, desc models.ActivityDescriptor) models.ResolvedCategorization {
	start := time.Now()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.resolve(ctx, desc)
	if err != nil {
		r.logger.Error("categorization lookup failed",
			zap.Error(err),
			zap.String("app_name", desc.AppName))
		r.metrics.RecordLookupFailure()
		res = models.ResolvedCategorization{
			Category:   models.CategoryNeutral,
			Confidence: 0,
			Reason:     "lookup failed",
			Step:       models.StepLookupFailed,
		}
	} else {
		res = r.finalize(desc, res)
	}

	r.metrics.RecordCategorization(string(res.Category), string(res.Step), time.Since(start))

	return res
}

func (r *Resolver) resolve(ctx context.Context, desc models.ActivityDescriptor) (models.ResolvedCategorization, error) {
	orgID, err := r.effectiveOrganization(ctx, desc)
	if err != nil {
		return models.ResolvedCategorization{}, err
	}

	rule, err := r.apps.GetCategoryForApp(ctx, desc.AppName, orgID)
	if err != nil {
		return models.ResolvedCategorization{}, fmt.Errorf("app rule lookup: %w", err)
	}
	if rule != nil {
		return models.ResolvedCategorization{
			Category:    rule.Category,
			Subcategory: rule.Subcategory,
			Confidence:  ruleConfidence,
			Reason: fmt.Sprintf("%s is categorized as %s by organization policy",
				desc.AppName, labelWithSub(rule.Category, rule.Subcategory)),
			Step: models.StepAppRule,
		}, nil
	}

	if orgID != nil {
		rules, err := r.rules.ListForOrganization(ctx, *orgID)
		if err != nil {
			return models.ResolvedCategorization{}, fmt.Errorf("custom rule lookup: %w", err)
		}
		if m, ok := MatchCustomRule(rules, desc.AppName, desc.URL, desc.WindowTitle); ok {
			return models.ResolvedCategorization{
				Category:    m.Rule.Category,
				Subcategory: m.Rule.Subcategory,
				Confidence:  ruleConfidence,
				Reason:      fmt.Sprintf("Matches organization rule: %s", m.Pattern),
				Step:        models.StepCustomRule,
			}, nil
		}
	}

	var (
		domain   string
		urlRes   models.ResolvedCategorization
		urlKnown bool
	)
	if desc.URL != "" {
		domain = ExtractDomain(desc.URL)

		if r.heuristics.IsLocal(domain) {
			return r.heuristics.LocalResult(), nil
		}

		pattern, err := r.patterns.FindBestMatch(ctx, domain, orgID)
		if err != nil {
			return models.ResolvedCategorization{}, fmt.Errorf("website rule lookup: %w", err)
		}
		if pattern != nil {
			urlRes, urlKnown = patternResult(domain, pattern), true
		} else {
			urlRes, urlKnown = r.heuristics.KnownDomain(domain, desc.URL, desc.WindowTitle)
		}

		if urlKnown && (urlRes.Category != models.CategoryNeutral || urlRes.Confidence > urlDecisiveAbove) {
			return urlRes, nil
		}
	}

	appRes, conclusive := r.heuristics.ByApp(desc.AppName, desc.WindowTitle)
	if conclusive || desc.URL == "" {
		return appRes, nil
	}
	if urlKnown {
		return urlRes, nil
	}

	return r.heuristics.UnknownSite(domain, desc.URL, desc.WindowTitle), nil
}

// effectiveOrganization returns the supplied organization, or the user's
// organization when only a user is known
func (r *Resolver) effectiveOrganization(ctx context.Context, desc models.ActivityDescriptor) (*uuid.UUID, error) {
	if desc.OrganizationID != nil {
		return desc.OrganizationID, nil
	}
	if desc.UserID == nil {
		return nil, nil
	}

	orgID, err := r.users.GetOrganizationID(ctx, *desc.UserID)
	if err != nil {
		return nil, fmt.Errorf("user organization lookup: %w", err)
	}
	return orgID, nil
}

// finalize enforces the subcategory parent invariant and fills a missing
// subcategory from the app name when it agrees with the category
func (r *Resolver) finalize(desc models.ActivityDescriptor, res models.ResolvedCategorization) models.ResolvedCategorization {
	if res.Subcategory != nil && !r.taxonomy.Consistent(res.Category, res.Subcategory) {
		r.logger.Warn("dropping inconsistent subcategory",
			zap.String("category", string(res.Category)),
			zap.String("subcategory", string(*res.Subcategory)),
			zap.String("step", string(res.Step)))
		res.Subcategory = nil
	}

	if res.Subcategory == nil {
		if sub, ok := r.heuristics.InferSubcategory(desc.AppName); ok && r.taxonomy.Consistent(res.Category, &sub) {
			res.Subcategory = models.SubcategoryPtr(sub)
		}
	}

	return res
}

func patternResult(domain string, p *models.WebsitePatternRule) models.ResolvedCategorization {
	reason := fmt.Sprintf("%s is categorized as %s", domain, labelWithSub(p.Category, p.Subcategory))
	if p.Description != nil && *p.Description != "" {
		reason = *p.Description
	}
	return models.ResolvedCategorization{
		Category:    p.Category,
		Subcategory: p.Subcategory,
		Confidence:  patternConfidence,
		Reason:      reason,
		Step:        models.StepURL,
	}
}

func labelWithSub(c models.Category, sub *models.Subcategory) string {
	if sub == nil || *sub == "" {
		return string(c)
	}
	return fmt.Sprintf("%s (%s)", c, *sub)
}

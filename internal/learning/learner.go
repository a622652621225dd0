package learning

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

// ActivitySource aggregates recorded URL activity per domain
type ActivitySource interface {
	DomainActivity(ctx context.Context, q models.UsageQuery) ([]models.DomainActivity, error)
}

// PatternLookup returns the stored website rule for an exact pattern
type PatternLookup interface {
	FindByPattern(ctx context.Context, pattern string) (*models.WebsitePatternRule, error)
}

// SuggestionSink persists pending suggestions
type SuggestionSink interface {
	InsertBatch(ctx context.Context, suggestions []*models.CategorizationSuggestion) error
}

// OrganizationLister enumerates organizations for per-organization passes
type OrganizationLister interface {
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

const (
	productiveMinDuration  = 600.0
	productiveMinFocus     = 0.7
	workdayStartHour       = 9.0
	workdayEndHour         = 17.0
	distractingMaxDuration = 120.0
	distractingMaxFocus    = 0.3
	popularMinUsers        = 3
	popularMinDays         = 5
	scoreDisagreement      = 0.2
)

// Verdict is the learner's reading of one domain's usage
type Verdict struct {
	Category models.Category
	Score    float64
	Popular  bool
}

// Classify applies the duration and focus heuristics to a usage profile
func Classify(s DomainStats) Verdict {
	v := Verdict{Category: models.CategoryNeutral, Score: 0.5}

	switch {
	case s.AvgDuration > productiveMinDuration && s.FocusScore > productiveMinFocus:
		v.Score = 0.8
	case s.AvgDuration < distractingMaxDuration && s.FocusScore < distractingMaxFocus:
		v.Score = 0.2
	}

	switch {
	case s.AvgDuration > productiveMinDuration &&
		s.AvgHour >= workdayStartHour && s.AvgHour <= workdayEndHour &&
		s.FocusScore > productiveMinFocus:
		v.Category = models.CategoryProductive
	case s.AvgDuration < distractingMaxDuration && s.FocusScore < distractingMaxFocus:
		v.Category = models.CategoryDistracting
	case s.UniqueUsers >= popularMinUsers && s.DaysVisited >= popularMinDays:
		v.Popular = true
	}

	return v
}

// Learner mines recorded activity for domains whose stored category
// disagrees with how they are used
type Learner struct {
	activity    ActivitySource
	patterns    PatternLookup
	suggestions SuggestionSink
	orgs        OrganizationLister
	timezone    string
	logger      *zap.Logger
	metrics     *metrics.MetricsCollector

	lookback   time.Duration
	minVisits  int
	maxDomains int
	perOrg     bool
	now        func() time.Time
}

// NewLearner creates a new usage-pattern learner
func NewLearner(
	cfg *config.Config,
	activity ActivitySource,
	patterns PatternLookup,
	suggestions SuggestionSink,
	orgs OrganizationLister,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *Learner {
	loc, err := time.LoadLocation(cfg.Jobs.Timezone)
	if err != nil {
		logger.Warn("invalid jobs timezone, using UTC", zap.String("timezone", cfg.Jobs.Timezone))
		loc = time.UTC
	}

	return &Learner{
		activity:    activity,
		patterns:    patterns,
		suggestions: suggestions,
		orgs:        orgs,
		timezone:    loc.String(),
		logger:      logger,
		metrics:     metricsCollector,
		lookback:    cfg.Jobs.LearnerLookback,
		minVisits:   cfg.Jobs.LearnerMinVisits,
		maxDomains:  cfg.Jobs.LearnerMaxDomains,
		perOrg:      cfg.Jobs.LearnerPerOrganization,
		now:         time.Now,
	}
}

// RunAll runs the global pass and, when configured, one pass per organization
func (l *Learner) RunAll(ctx context.Context) (int, error) {
	emitted, err := l.Run(ctx, nil)
	if err != nil {
		return 0, err
	}
	if !l.perOrg || l.orgs == nil {
		return len(emitted), nil
	}

	orgIDs, err := l.orgs.ListOrganizationIDs(ctx)
	if err != nil {
		return len(emitted), fmt.Errorf("failed to list organizations: %w", err)
	}

	total := len(emitted)
	for _, id := range orgIDs {
		orgID := id
		out, err := l.Run(ctx, &orgID)
		if err != nil {
			return total, err
		}
		total += len(out)
	}
	return total, nil
}

// Run analyzes one scope and persists the suggestions it produces
func (l *Learner) Run(ctx context.Context, orgID *uuid.UUID) ([]*models.CategorizationSuggestion, error) {
	start := time.Now()

	activity, err := l.activity.DomainActivity(ctx, models.UsageQuery{
		Since:          l.now().Add(-l.lookback),
		OrganizationID: orgID,
		MinVisits:      l.minVisits,
		Limit:          l.maxDomains,
		Timezone:       l.timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load domain activity: %w", err)
	}

	stats := make([]DomainStats, 0, len(activity))
	for _, a := range activity {
		if a.Visits() < l.minVisits {
			continue
		}
		stats = append(stats, Profile(a))
	}
	rank(stats)
	if l.maxDomains > 0 && len(stats) > l.maxDomains {
		stats = stats[:l.maxDomains]
	}

	l.logger.Info("learner analyzing domains",
		zap.Int("domains", len(stats)),
		zap.Bool("organization_scoped", orgID != nil))

	var out []*models.CategorizationSuggestion
	for _, s := range stats {
		stored, err := l.patterns.FindByPattern(ctx, s.Domain)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored category for %s: %w", s.Domain, err)
		}
		if sg := suggest(s, stored, orgID); sg != nil {
			out = append(out, sg)
		}
	}

	if len(out) > 0 {
		if err := l.suggestions.InsertBatch(ctx, out); err != nil {
			return nil, err
		}
		for _, sg := range out {
			l.metrics.RecordSuggestionEmitted(string(models.SourceLearner), string(sg.SuggestedCategory))
		}
	}

	l.logger.Info("learner run completed",
		zap.Int("suggestions", len(out)),
		zap.Duration("duration", time.Since(start)))

	return out, nil
}

// suggest returns a pending suggestion when usage disagrees with the stored
// category, nil otherwise
func suggest(s DomainStats, stored *models.WebsitePatternRule, orgID *uuid.UUID) *models.CategorizationSuggestion {
	v := Classify(s)

	current := models.CategoryNeutral
	if stored != nil {
		current = stored.Category
	}

	evidence := map[string]interface{}{
		"avg_duration_seconds": math.Round(s.AvgDuration),
		"visit_count":          s.Visits,
		"unique_users":         s.UniqueUsers,
		"days_visited":         s.DaysVisited,
		"focus_score":          s.FocusScore,
		"avg_hour":             s.AvgHour,
	}

	sg := &models.CategorizationSuggestion{
		ID:                uuid.New(),
		Pattern:           s.Domain,
		SuggestedCategory: v.Category,
		Confidence:        s.FocusScore,
		Evidence:          evidence,
		Source:            models.SourceLearner,
		Status:            models.SuggestionPending,
		OrganizationID:    orgID,
	}

	if v.Popular {
		// an uncategorized domain many people keep returning to
		if stored != nil {
			return nil
		}
		evidence["popular"] = true
		sg.NeedsReview = true
		sg.Reason = fmt.Sprintf("Visited by %d users on %d days with no stored category", s.UniqueUsers, s.DaysVisited)
		return sg
	}

	if v.Category == current && math.Abs(v.Score-current.ProductivityScore()) <= scoreDisagreement {
		return nil
	}

	sg.Reason = fmt.Sprintf("Average session %.0fs over %d visits, focus score %.2f (currently %s)",
		s.AvgDuration, s.Visits, s.FocusScore, current)
	return sg
}

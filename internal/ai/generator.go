package ai

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

// DomainSource reports frequently visited domains with no stored rule
type DomainSource interface {
	UncategorizedDomains(ctx context.Context, since time.Time, minVisits, limit int) ([]models.DomainUsage, error)
}

// PendingReplacer swaps a source's pending suggestions in one transaction
type PendingReplacer interface {
	ReplacePending(ctx context.Context, source models.SuggestionSource, suggestions []*models.CategorizationSuggestion) error
}

// Generator asks the classifier about uncategorized domains and stores its
// answers as pending suggestions
type Generator struct {
	domains    DomainSource
	classifier Classifier
	store      PendingReplacer
	logger     *zap.Logger
	metrics    *metrics.MetricsCollector

	lookback   time.Duration
	minVisits  int
	maxDomains int
	now        func() time.Time
}

// NewGenerator creates a new AI suggestion generator. classifier may be nil,
// in which case every run fails with ErrDisabled.
func NewGenerator(
	cfg *config.Config,
	domains DomainSource,
	classifier Classifier,
	store PendingReplacer,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *Generator {
	return &Generator{
		domains:    domains,
		classifier: classifier,
		store:      store,
		logger:     logger,
		metrics:    metricsCollector,
		lookback:   cfg.AI.LookbackWindow,
		minVisits:  cfg.AI.MinVisits,
		maxDomains: cfg.AI.MaxDomains,
		now:        time.Now,
	}
}

// Enabled reports whether a classifier is configured
func (g *Generator) Enabled() bool {
	return g.classifier != nil
}

// Run classifies the current candidates and replaces the pending AI batch.
// Nothing is written unless the classifier answers.
func (g *Generator) Run(ctx context.Context) ([]*models.CategorizationSuggestion, error) {
	if g.classifier == nil {
		return nil, ErrDisabled
	}

	usage, err := g.domains.UncategorizedDomains(ctx, g.now().Add(-g.lookback), g.minVisits, g.maxDomains)
	if err != nil {
		return nil, fmt.Errorf("failed to load uncategorized domains: %w", err)
	}
	if len(usage) == 0 {
		g.logger.Info("no uncategorized domains to analyze")
		return nil, nil
	}

	samples := make([]DomainSample, len(usage))
	for i, u := range usage {
		samples[i] = DomainSample{Domain: u.Domain, VisitCount: u.VisitCount, AvgDuration: u.AvgDurationSeconds}
	}

	verdicts, err := g.classifier.Classify(ctx, samples)
	if err != nil {
		return nil, err
	}
	if len(verdicts) != len(samples) {
		return nil, fmt.Errorf("%w: expected %d verdicts, got %d", ErrClassifier, len(samples), len(verdicts))
	}

	out := make([]*models.CategorizationSuggestion, len(verdicts))
	for i, v := range verdicts {
		out[i] = &models.CategorizationSuggestion{
			ID:                   uuid.New(),
			Pattern:              samples[i].Domain,
			SuggestedCategory:    v.Category,
			SuggestedSubcategory: v.Subcategory,
			Confidence:           v.Confidence,
			Reason:               v.Reason,
			Evidence: map[string]interface{}{
				"visit_count":          samples[i].VisitCount,
				"avg_duration_seconds": math.Round(samples[i].AvgDuration),
			},
			Source: models.SourceAI,
			Status: models.SuggestionPending,
		}
	}

	if err := g.store.ReplacePending(ctx, models.SourceAI, out); err != nil {
		return nil, err
	}

	for _, s := range out {
		g.metrics.RecordSuggestionEmitted(string(models.SourceAI), string(s.SuggestedCategory))
	}

	g.logger.Info("ai suggestions stored", zap.Int("count", len(out)))

	return out, nil
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

var (
	// ErrClassifier marks a failed classification run: call error, timeout,
	// or unparseable content
	ErrClassifier = errors.New("classifier failure")

	// ErrDisabled is returned when no classifier is configured
	ErrDisabled = errors.New("ai classifier disabled")
)

// DomainSample is one domain submitted for classification
type DomainSample struct {
	Domain      string
	VisitCount  int
	AvgDuration float64 // seconds
}

// DomainVerdict is the classifier's answer for one domain
type DomainVerdict struct {
	Domain      string
	Category    models.Category
	Subcategory *models.Subcategory
	Confidence  float64
	Reason      string
}

// Classifier categorizes a batch of domains
type Classifier interface {
	Classify(ctx context.Context, samples []DomainSample) ([]DomainVerdict, error)
}

// contentGenerator is the part of llms.Model the client uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client classifies domains with an OpenAI compatible chat model
type Client struct {
	llm         contentGenerator
	prompts     *PromptBuilder
	taxonomy    *models.Taxonomy
	limiter     *rate.Limiter
	timeout     time.Duration
	temperature float64
	maxTokens   int
	logger      *zap.Logger
	metrics     *metrics.MetricsCollector
}

// NewClient creates a classifier client from configuration
func NewClient(cfg *config.AIConfig, taxonomy *models.Taxonomy, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return newClient(llm, cfg, taxonomy, logger, metricsCollector)
}

func newClient(llm contentGenerator, cfg *config.AIConfig, taxonomy *models.Taxonomy, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) (*Client, error) {
	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}

	return &Client{
		llm:         llm,
		prompts:     prompts,
		taxonomy:    taxonomy,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		timeout:     cfg.RequestTimeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
		metrics:     metricsCollector,
	}, nil
}

// ProvideClassifier returns the configured classifier, or nil when AI
// suggestions are disabled
func ProvideClassifier(cfg *config.Config, taxonomy *models.Taxonomy, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) (Classifier, error) {
	if !cfg.AI.Enabled || cfg.AI.APIKey == "" {
		logger.Warn("ai classifier not configured, ai suggestions disabled")
		return nil, nil
	}
	return NewClient(&cfg.AI, taxonomy, logger, metricsCollector)
}

// Classify sends every sample in one request and returns one verdict per
// sample in input order
func (c *Client) Classify(ctx context.Context, samples []DomainSample) ([]DomainVerdict, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrClassifier, err)
	}

	prompt, err := c.prompts.Classify(c.taxonomy.Definitions(), samples)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		{Role: schema.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: c.prompts.System()}}},
		{Role: schema.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt}}},
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	c.metrics.RecordClassifierRequest(time.Since(start))
	if err != nil {
		c.logger.Error("classifier request failed",
			zap.Error(err),
			zap.Int("domains", len(samples)),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("%w: empty response", ErrClassifier)
	}

	verdicts, err := parseVerdicts(resp.Choices[0].Content, samples, c.taxonomy)
	if err != nil {
		c.logger.Error("failed to parse classifier response", zap.Error(err))
		return nil, err
	}

	c.logger.Info("classifier request completed",
		zap.Int("domains", len(samples)),
		zap.Duration("duration", time.Since(start)))

	return verdicts, nil
}

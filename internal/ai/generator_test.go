package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

type fakeLLM struct {
	content  string
	err      error
	messages []llms.MessageContent
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

type fakeDomains []models.DomainUsage

func (f fakeDomains) UncategorizedDomains(context.Context, time.Time, int, int) ([]models.DomainUsage, error) {
	return f, nil
}

type fakeReplacer struct {
	calls   int
	source  models.SuggestionSource
	written []*models.CategorizationSuggestion
}

func (f *fakeReplacer) ReplacePending(_ context.Context, source models.SuggestionSource, s []*models.CategorizationSuggestion) error {
	f.calls++
	f.source = source
	f.written = s
	return nil
}

func testTaxonomy() *models.Taxonomy {
	return models.NewTaxonomy([]models.SubcategoryDefinition{
		{Name: models.SubcategorySchool, ParentCategory: models.CategoryProductive, Description: "Learning platforms"},
		{Name: models.SubcategoryResearch, ParentCategory: models.CategoryProductive, Description: "Reference and research"},
		{Name: models.SubcategoryReading, ParentCategory: models.CategoryNeutral, Description: "News and blogs"},
		{Name: models.SubcategoryGaming, ParentCategory: models.CategoryDistracting, Description: "Games"},
		{Name: models.SubcategoryScrolling, ParentCategory: models.CategoryDistracting, Description: "Social feeds"},
	})
}

func newTestGenerator(t *testing.T, llm *fakeLLM, domains fakeDomains, store *fakeReplacer) *Generator {
	t.Helper()
	logger := zap.NewNop()
	mc := metrics.NewMetricsCollector(&config.MetricsConfig{Enabled: false}, logger)

	client, err := newClient(llm, &config.AIConfig{Temperature: 0.3, MaxTokens: 2000, RequestsPerMinute: 600}, testTaxonomy(), logger, mc)
	require.NoError(t, err)

	cfg := &config.Config{AI: config.AIConfig{LookbackWindow: 7 * 24 * time.Hour, MinVisits: 3, MaxDomains: 20}}
	return NewGenerator(cfg, domains, client, store, logger, mc)
}

var threeDomains = fakeDomains{
	{Domain: "khanacademy.org", VisitCount: 40, AvgDurationSeconds: 900},
	{Domain: "coolmathgames.com", VisitCount: 25, AvgDurationSeconds: 400},
	{Domain: "mystery.example", VisitCount: 3, AvgDurationSeconds: 30},
}

func TestGenerator_DefaultsMissingDomains(t *testing.T) {
	llm := &fakeLLM{content: `{"suggestions":[
		{"domain":"coolmathgames.com","category":"distracting","subcategory":"gaming","confidence":0.9,"reason":"Game portal"},
		{"domain":"KhanAcademy.org","category":"productive","subcategory":"school","confidence":0.95,"reason":"Learning platform"}
	]}`}
	store := &fakeReplacer{}
	g := newTestGenerator(t, llm, threeDomains, store)

	out, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "khanacademy.org", out[0].Pattern)
	assert.Equal(t, models.CategoryProductive, out[0].SuggestedCategory)
	require.NotNil(t, out[0].SuggestedSubcategory)
	assert.Equal(t, models.SubcategorySchool, *out[0].SuggestedSubcategory)

	assert.Equal(t, "coolmathgames.com", out[1].Pattern)
	assert.Equal(t, models.CategoryDistracting, out[1].SuggestedCategory)

	assert.Equal(t, "mystery.example", out[2].Pattern)
	assert.Equal(t, models.CategoryNeutral, out[2].SuggestedCategory)
	assert.InDelta(t, 0.5, out[2].Confidence, 1e-9)
	assert.Equal(t, "Unable to categorize", out[2].Reason)
	assert.Nil(t, out[2].SuggestedSubcategory)

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, models.SourceAI, store.source)
	assert.Len(t, store.written, 3)
	for _, s := range store.written {
		assert.Equal(t, models.SuggestionPending, s.Status)
		assert.Equal(t, models.SourceAI, s.Source)
	}
}

func TestGenerator_ClassifierFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"unparseable content", &fakeLLM{content: "Sorry, I can't help with that."}},
		{"call error", &fakeLLM{err: errors.New("503 service unavailable")}},
		{"empty content", &fakeLLM{content: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeReplacer{}
			g := newTestGenerator(t, tt.llm, threeDomains, store)

			_, err := g.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrClassifier)
			assert.Equal(t, 0, store.calls)
		})
	}
}

func TestGenerator_NoCandidates(t *testing.T) {
	llm := &fakeLLM{}
	store := &fakeReplacer{}
	g := newTestGenerator(t, llm, nil, store)

	out, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Nil(t, llm.messages)
	assert.Equal(t, 0, store.calls)
}

func TestGenerator_Disabled(t *testing.T) {
	logger := zap.NewNop()
	g := NewGenerator(&config.Config{}, threeDomains, nil, &fakeReplacer{}, logger,
		metrics.NewMetricsCollector(&config.MetricsConfig{Enabled: false}, logger))

	assert.False(t, g.Enabled())
	_, err := g.Run(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestParseVerdicts(t *testing.T) {
	tax := testTaxonomy()
	samples := []DomainSample{{Domain: "a.com"}, {Domain: "b.com"}, {Domain: "c.com"}}

	t.Run("fenced json", func(t *testing.T) {
		content := "```json\n{\"suggestions\":[{\"domain\":\"a.com\",\"category\":\"productive\",\"confidence\":0.7,\"reason\":\"docs\"}]}\n```"
		out, err := parseVerdicts(content, samples, tax)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, models.CategoryProductive, out[0].Category)
		assert.InDelta(t, 0.7, out[0].Confidence, 1e-9)
	})

	t.Run("invalid entries fall back to the default", func(t *testing.T) {
		content := `{"suggestions":[
			{"domain":"a.com","category":"sometimes","confidence":0.9,"reason":"?"},
			{"domain":"b.com","category":"Distracting","confidence":7,"reason":""},
			{"domain":"c.com","category":"productive","subcategory":"gaming","confidence":0.6,"reason":"mixed"}
		]}`
		out, err := parseVerdicts(content, samples, tax)
		require.NoError(t, err)

		assert.Equal(t, DomainVerdict{Domain: "a.com", Category: models.CategoryNeutral, Confidence: 0.5, Reason: "Unable to categorize"}, out[0])

		assert.Equal(t, models.CategoryDistracting, out[1].Category)
		assert.InDelta(t, 0.5, out[1].Confidence, 1e-9)
		assert.Equal(t, "Unable to categorize", out[1].Reason)

		assert.Equal(t, models.CategoryProductive, out[2].Category)
		assert.Nil(t, out[2].Subcategory, "a subcategory from another category is dropped")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseVerdicts("categories: none", samples, tax)
		assert.ErrorIs(t, err, ErrClassifier)
	})
}

func TestPromptBuilder_Classify(t *testing.T) {
	pb, err := NewPromptBuilder()
	require.NoError(t, err)

	prompt, err := pb.Classify(testTaxonomy().Definitions(), []DomainSample{
		{Domain: "khanacademy.org", VisitCount: 40, AvgDuration: 900},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "- productive: Educational")
	assert.Contains(t, prompt, "  - school: Learning platforms")
	assert.Contains(t, prompt, "  - gaming: Games")
	assert.Contains(t, prompt, "productive/neutral/distracting")
	assert.Contains(t, prompt, "- khanacademy.org (visited 40 times, avg 15min/visit)")
	assert.NotEmpty(t, pb.System())
}

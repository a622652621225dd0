package categorization

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

type fakeApps struct {
	rules map[string]*models.AppCategoryRule
	err   error
	calls int
}

func (f *fakeApps) GetCategoryForApp(_ context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if orgID != nil {
		if r, ok := f.rules[appName+"|"+orgID.String()]; ok {
			return r, nil
		}
	}
	return f.rules[appName+"|global"], nil
}

type fakePatterns struct {
	rules []*models.WebsitePatternRule
	err   error
}

func (f *fakePatterns) FindBestMatch(_ context.Context, domain string, _ *uuid.UUID) (*models.WebsitePatternRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var best *models.WebsitePatternRule
	for _, r := range f.rules {
		if !strings.Contains(domain, r.Pattern) {
			continue
		}
		if best == nil || r.Priority > best.Priority ||
			(r.Priority == best.Priority && len(r.Pattern) > len(best.Pattern)) {
			best = r
		}
	}
	return best, nil
}

type fakeCustomRules struct {
	byOrg map[uuid.UUID][]*models.ProductivityRule
	calls int
}

func (f *fakeCustomRules) ListForOrganization(_ context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error) {
	f.calls++
	return f.byOrg[orgID], nil
}

type fakeUsers struct {
	orgs map[uuid.UUID]uuid.UUID
}

func (f *fakeUsers) GetOrganizationID(_ context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	if org, ok := f.orgs[userID]; ok {
		return &org, nil
	}
	return nil, nil
}

type resolverFixture struct {
	resolver *Resolver
	apps     *fakeApps
	patterns *fakePatterns
	rules    *fakeCustomRules
	users    *fakeUsers
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	seed, err := LoadSeed("")
	require.NoError(t, err)

	f := &resolverFixture{
		apps:     &fakeApps{rules: map[string]*models.AppCategoryRule{}},
		patterns: &fakePatterns{},
		rules:    &fakeCustomRules{byOrg: map[uuid.UUID][]*models.ProductivityRule{}},
		users:    &fakeUsers{orgs: map[uuid.UUID]uuid.UUID{}},
	}

	cfg := &config.Config{}
	logger := zap.NewNop()
	collector := metrics.NewMetricsCollector(&config.MetricsConfig{Enabled: false}, logger)

	f.resolver = NewResolver(cfg, logger, collector, NewHeuristics(seed),
		models.NewTaxonomy(seed.Subcategories), f.apps, f.patterns, f.rules, f.users)
	return f
}

func strPtr(s string) *string { return &s }

func TestCategorize_Scenarios(t *testing.T) {
	f := newResolverFixture(t)

	tests := []struct {
		name       string
		desc       models.ActivityDescriptor
		category   models.Category
		confidence float64
	}{
		{
			name:       "code editor without url",
			desc:       models.ActivityDescriptor{AppName: "Visual Studio Code"},
			category:   models.CategoryProductive,
			confidence: 0.85,
		},
		{
			name: "educational youtube video in chrome",
			desc: models.ActivityDescriptor{
				AppName:     "Google Chrome",
				URL:         "https://youtube.com/watch?v=x",
				WindowTitle: "Python Tutorial for Beginners",
			},
			category:   models.CategoryProductive,
			confidence: 0.8,
		},
		{
			name:       "discord gaming night",
			desc:       models.ActivityDescriptor{AppName: "Discord", WindowTitle: "Gaming Night"},
			category:   models.CategoryDistracting,
			confidence: 0.85,
		},
		{
			name:       "discord study group",
			desc:       models.ActivityDescriptor{AppName: "Discord", WindowTitle: "Study Group Session"},
			category:   models.CategoryNeutral,
			confidence: 0.6,
		},
		{
			name:       "system process",
			desc:       models.ActivityDescriptor{AppName: "Finder"},
			category:   models.CategoryNeutral,
			confidence: 1.0,
		},
		{
			name:       "unknown app",
			desc:       models.ActivityDescriptor{AppName: "SomeTool"},
			category:   models.CategoryNeutral,
			confidence: 0.5,
		},
		{
			name:       "browser on distracting domain",
			desc:       models.ActivityDescriptor{AppName: "Safari", URL: "https://www.netflix.com/browse"},
			category:   models.CategoryDistracting,
			confidence: 0.8,
		},
		{
			name:       "entertainment youtube",
			desc:       models.ActivityDescriptor{AppName: "Firefox", URL: "https://www.youtube.com/watch?v=1", WindowTitle: "Funny Prank Compilation"},
			category:   models.CategoryDistracting,
			confidence: 0.8,
		},
		{
			name:       "mixed youtube signals",
			desc:       models.ActivityDescriptor{AppName: "Firefox", URL: "https://www.youtube.com/watch?v=1", WindowTitle: "Funny math tutorial"},
			category:   models.CategoryNeutral,
			confidence: 0.6,
		},
		{
			name:       "twitter defaults to distracting",
			desc:       models.ActivityDescriptor{AppName: "Google Chrome", URL: "https://x.com/home"},
			category:   models.CategoryDistracting,
			confidence: 0.8,
		},
		{
			name:       "educational subreddit",
			desc:       models.ActivityDescriptor{AppName: "Google Chrome", URL: "https://www.reddit.com/r/learnprogramming/comments/1"},
			category:   models.CategoryProductive,
			confidence: 0.8,
		},
		{
			name:       "edu domain falls back to tld check",
			desc:       models.ActivityDescriptor{AppName: "Google Chrome", URL: "https://cs.stanford.edu/courses"},
			category:   models.CategoryProductive,
			confidence: 0.8,
		},
		{
			name:       "gaming domain",
			desc:       models.ActivityDescriptor{AppName: "Google Chrome", URL: "https://coolmathgames.com/0-run"},
			category:   models.CategoryDistracting,
			confidence: 0.85,
		},
		{
			name:       "productive app beats unknown site",
			desc:       models.ActivityDescriptor{AppName: "Xcode", URL: "https://example.org/"},
			category:   models.CategoryProductive,
			confidence: 0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.resolver.Categorize(context.Background(), tt.desc)
			assert.Equal(t, tt.category, res.Category)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestCategorize_DomainListsMatchWholeLabels(t *testing.T) {
	f := newResolverFixture(t)

	for _, rawURL := range []string{
		"https://www.dropbox.com/home",
		"https://www.fedex.com/tracking",
		"https://app.box.com/folder/0",
		"https://mynetflix.com.example/",
	} {
		t.Run(rawURL, func(t *testing.T) {
			res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
				AppName: "Google Chrome",
				URL:     rawURL,
			})
			assert.Equal(t, models.CategoryNeutral, res.Category)
			assert.Equal(t, models.StepUnknownSite, res.Step)
			assert.NotContains(t, res.Reason, "Twitter/X")
		})
	}

	t.Run("subdomain of a listed site still matches", func(t *testing.T) {
		res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
			AppName: "Google Chrome",
			URL:     "https://mobile.twitter.com/home",
		})
		assert.Equal(t, models.CategoryDistracting, res.Category)
		assert.Equal(t, "Twitter/X is typically used for social media", res.Reason)
	})
}

func TestCategorize_UnknownSiteNeedsReview(t *testing.T) {
	f := newResolverFixture(t)

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
		AppName: "Google Chrome",
		URL:     "https://qwzx.example/",
	})

	assert.Equal(t, models.CategoryNeutral, res.Category)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, models.StepUnknownSite, res.Step)
}

func TestCategorize_AppRuleWinsRegardlessOfContext(t *testing.T) {
	f := newResolverFixture(t)
	orgID := uuid.New()
	f.apps.rules["Discord|"+orgID.String()] = &models.AppCategoryRule{
		AppName:     "Discord",
		Category:    models.CategoryProductive,
		Subcategory: models.SubcategoryPtr(models.SubcategorySchool),
	}

	inputs := []models.ActivityDescriptor{
		{AppName: "Discord", OrganizationID: &orgID},
		{AppName: "Discord", OrganizationID: &orgID, URL: "https://www.netflix.com", WindowTitle: "Gaming Night"},
		{AppName: "Discord", OrganizationID: &orgID, URL: "http://localhost:3000"},
	}
	for _, in := range inputs {
		res := f.resolver.Categorize(context.Background(), in)
		assert.Equal(t, models.CategoryProductive, res.Category)
		require.NotNil(t, res.Subcategory)
		assert.Equal(t, models.SubcategorySchool, *res.Subcategory)
		assert.InDelta(t, 0.95, res.Confidence, 1e-9)
		assert.Equal(t, "Discord is categorized as productive (school) by organization policy", res.Reason)
		assert.Equal(t, models.StepAppRule, res.Step)
	}

	// other organizations fall back to the heuristics
	other := uuid.New()
	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Discord", OrganizationID: &other})
	assert.Equal(t, models.CategoryDistracting, res.Category)
}

func TestCategorize_UserResolvesToOrganization(t *testing.T) {
	f := newResolverFixture(t)
	orgID, userID := uuid.New(), uuid.New()
	f.users.orgs[userID] = orgID
	f.rules.byOrg[orgID] = []*models.ProductivityRule{
		{OrganizationID: orgID, WindowTitlePattern: strPtr("chemistry"), Category: models.CategoryProductive, Priority: 5},
	}

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
		AppName:     "Steam",
		WindowTitle: "Chemistry Lab Simulator",
		UserID:      &userID,
	})

	assert.Equal(t, models.CategoryProductive, res.Category)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, "Matches organization rule: chemistry", res.Reason)
	assert.Equal(t, models.StepCustomRule, res.Step)
}

func TestCategorize_CustomRulesSkippedWithoutContext(t *testing.T) {
	f := newResolverFixture(t)

	f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Steam"})
	assert.Zero(t, f.rules.calls)

	unaffiliated := uuid.New()
	f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Steam", UserID: &unaffiliated})
	assert.Zero(t, f.rules.calls)
}

func TestCategorize_StoredPatternPriority(t *testing.T) {
	f := newResolverFixture(t)
	f.patterns.rules = []*models.WebsitePatternRule{
		{Pattern: "docs.example.com", Category: models.CategoryDistracting, Priority: 1},
		{Pattern: "example.com", Category: models.CategoryProductive, Subcategory: models.SubcategoryPtr(models.SubcategoryResearch), Priority: 5},
	}

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
		AppName: "Google Chrome",
		URL:     "https://docs.example.com/page",
	})

	assert.Equal(t, models.CategoryProductive, res.Category)
	require.NotNil(t, res.Subcategory)
	assert.Equal(t, models.SubcategoryResearch, *res.Subcategory)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, "docs.example.com is categorized as productive (research)", res.Reason)
}

func TestCategorize_LocalhostShortCircuitsStoredRules(t *testing.T) {
	f := newResolverFixture(t)
	f.patterns.rules = []*models.WebsitePatternRule{
		{Pattern: "localhost", Category: models.CategoryDistracting, Priority: 100},
	}

	for _, u := range []string{"http://localhost:8080/app", "http://127.0.0.1:5000", "http://0.0.0.0/"} {
		res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Google Chrome", URL: u})
		assert.Equal(t, models.CategoryProductive, res.Category, u)
		require.NotNil(t, res.Subcategory, u)
		assert.Equal(t, models.SubcategoryProductivity, *res.Subcategory)
		assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	}
}

func TestCategorize_LookupFailureDegrades(t *testing.T) {
	f := newResolverFixture(t)
	f.apps.err = errors.New("connection refused")

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Visual Studio Code"})

	assert.Equal(t, models.CategoryNeutral, res.Category)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, "lookup failed", res.Reason)
	assert.Equal(t, models.StepLookupFailed, res.Step)
	assert.Nil(t, res.Subcategory)
}

func TestCategorize_PatternLookupFailureDegrades(t *testing.T) {
	f := newResolverFixture(t)
	f.patterns.err = errors.New("timeout")

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{
		AppName: "Google Chrome",
		URL:     "https://github.com",
	})

	assert.Equal(t, models.StepLookupFailed, res.Step)
	assert.Zero(t, res.Confidence)
}

func TestCategorize_Idempotent(t *testing.T) {
	f := newResolverFixture(t)
	desc := models.ActivityDescriptor{
		AppName:     "Google Chrome",
		URL:         "https://news.example.com/article",
		WindowTitle: "New research on sleep",
	}

	first := f.resolver.Categorize(context.Background(), desc)
	second := f.resolver.Categorize(context.Background(), desc)
	assert.Equal(t, first, second)
}

func TestCategorize_InfersMatchingSubcategory(t *testing.T) {
	f := newResolverFixture(t)

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Minecraft"})
	assert.Equal(t, models.CategoryDistracting, res.Category)
	require.NotNil(t, res.Subcategory)
	assert.Equal(t, models.SubcategoryGaming, *res.Subcategory)

	// communication belongs to neutral, so it is not attached to a distracting verdict
	res = f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Discord", WindowTitle: "Raid"})
	assert.Equal(t, models.CategoryDistracting, res.Category)
	assert.Nil(t, res.Subcategory)
}

func TestCategorize_DropsInconsistentStoredSubcategory(t *testing.T) {
	f := newResolverFixture(t)
	f.apps.rules["Zoom|global"] = &models.AppCategoryRule{
		AppName:     "Zoom",
		Category:    models.CategoryProductive,
		Subcategory: models.SubcategoryPtr(models.SubcategoryGaming),
	}

	res := f.resolver.Categorize(context.Background(), models.ActivityDescriptor{AppName: "Zoom"})
	assert.Equal(t, models.CategoryProductive, res.Category)
	assert.Nil(t, res.Subcategory)
}

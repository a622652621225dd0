package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activity-categorizer/internal/models"
)

func TestLoadSeed_Embedded(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)

	assert.Equal(t, 1, seed.Version)
	assert.Len(t, seed.Subcategories, 10)
	assert.Contains(t, seed.Domains.Productive, "khanacademy.org")
	assert.Contains(t, seed.Domains.ContextDependent, "youtube.com")
	// app names are lowercased on load
	assert.Contains(t, seed.Apps.Productive, "visual studio code")

	tax := models.NewTaxonomy(seed.Subcategories)
	parent, ok := tax.Parent(models.SubcategoryScrolling)
	require.True(t, ok)
	assert.Equal(t, models.CategoryDistracting, parent)
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "subcategories: [unclosed"},
		{"no subcategories", "version: 1\n"},
		{"unknown parent", "subcategories:\n  - name: school\n    parent: sometimes\n"},
		{
			"inference names unknown subcategory",
			"subcategories:\n  - name: school\n    parent: productive\nsubcategory_inference:\n  - subcategory: napping\n    contains: [sleep]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://YouTube.com/watch?v=x", "youtube.com"},
		{"http://localhost:3000/path", "localhost"},
		{"https://www.reddit.com/r/sat", "www.reddit.com"},
		{"not a url", "not a url"},
		{"Example.COM/page", "example.com/page"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDomain(tt.in))
		})
	}
}

func TestMatchCustomRule(t *testing.T) {
	orgID := uuid.New()
	titleRule := &models.ProductivityRule{ID: uuid.New(), OrganizationID: orgID, WindowTitlePattern: strPtr("Algebra"), Category: models.CategoryProductive, Priority: 10}
	urlRule := &models.ProductivityRule{ID: uuid.New(), OrganizationID: orgID, URLPattern: strPtr("coolmath"), Category: models.CategoryDistracting, Priority: 5}
	appRule := &models.ProductivityRule{ID: uuid.New(), OrganizationID: orgID, AppName: strPtr("chrome"), Category: models.CategoryNeutral, Priority: 1}

	rules := []*models.ProductivityRule{titleRule, urlRule, appRule}

	t.Run("first rule in order wins even on a later field", func(t *testing.T) {
		m, ok := MatchCustomRule(rules, "Google Chrome", "https://coolmath.com", "Algebra practice")
		require.True(t, ok)
		assert.Equal(t, titleRule.ID, m.Rule.ID)
		assert.Equal(t, "Algebra", m.Pattern)
	})

	t.Run("falls through to later rules", func(t *testing.T) {
		m, ok := MatchCustomRule(rules, "Google Chrome", "https://COOLMATH.com/run", "Run 3")
		require.True(t, ok)
		assert.Equal(t, urlRule.ID, m.Rule.ID)
	})

	t.Run("app name checked before url within a rule", func(t *testing.T) {
		both := &models.ProductivityRule{AppName: strPtr("safari"), URLPattern: strPtr("wiki"), Category: models.CategoryProductive}
		m, ok := MatchCustomRule([]*models.ProductivityRule{both}, "Safari", "https://wiki.org", "")
		require.True(t, ok)
		assert.Equal(t, "safari", m.Pattern)
	})

	t.Run("empty patterns never match", func(t *testing.T) {
		empty := &models.ProductivityRule{AppName: strPtr(""), Category: models.CategoryProductive}
		_, ok := MatchCustomRule([]*models.ProductivityRule{empty}, "Anything", "", "")
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := MatchCustomRule(rules, "Terminal", "", "zsh")
		assert.False(t, ok)
	})
}

func TestHeuristics_UnknownSite(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	h := NewHeuristics(seed)

	tests := []struct {
		name       string
		domain     string
		url        string
		title      string
		category   models.Category
		confidence float64
	}{
		{"government", "irs.gov", "https://irs.gov", "", models.CategoryProductive, 0.8},
		{"tech news", "dailynews.com", "https://dailynews.com/a", "Tech layoffs", models.CategoryProductive, 0.7},
		{"general news", "dailynews.com", "https://dailynews.com/a", "Local weather", models.CategoryNeutral, 0.6},
		{"educational keywords", "example.org", "https://example.org/biology/lesson-3", "", models.CategoryProductive, 0.75},
		{"distraction keywords", "example.org", "https://example.org/watch", "Celebrity gossip", models.CategoryDistracting, 0.75},
		{"commerce", "example.org", "https://example.org/cart", "", models.CategoryDistracting, 0.8},
		{"tool", "mytool.io", "https://mytool.io", "", models.CategoryNeutral, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.UnknownSite(tt.domain, tt.url, tt.title)
			assert.Equal(t, tt.category, res.Category)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.False(t, res.NeedsReview)
		})
	}
}

func TestHeuristics_InferSubcategory(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	h := NewHeuristics(seed)

	tests := map[string]models.Subcategory{
		"Google Classroom": models.SubcategorySchool,
		"chrome":           models.SubcategoryResearch,
		"Figma":            models.SubcategoryCreativity,
		"Todoist":          models.SubcategoryProductivity,
		"Mail":             models.SubcategoryCommunication,
		"Kindle":           models.SubcategoryReading,
		"Headspace":        models.SubcategoryHealth,
		"Roblox":           models.SubcategoryGaming,
		"TikTok":           models.SubcategoryScrolling,
		"Netflix":          models.SubcategoryEntertainment,
	}
	for app, want := range tests {
		got, ok := h.InferSubcategory(app)
		require.True(t, ok, app)
		assert.Equal(t, want, got, app)
	}

	_, ok := h.InferSubcategory("Google Chrome")
	assert.False(t, ok)
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		domain string
		entry  string
		want   bool
	}{
		{"x.com", "x.com", true},
		{"mobile.x.com", "x.com", true},
		{"dropbox.com", "x.com", false},
		{"fedex.com", "x.com", false},
		{"app.box.com", "x.com", false},
		{"www.youtube.com", "youtube.com", true},
		{"notyoutube.com", "youtube.com", false},
		{"localhost", "localhost", true},
		{"localhost.evil.example", "localhost", false},
		{"example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain+"/"+tt.entry, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesDomain(tt.domain, tt.entry))
		})
	}
}

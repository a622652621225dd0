package categorization

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"activity-categorizer/internal/models"
)

//go:embed seed/default.yaml
var seedFS embed.FS

const defaultSeedFile = "seed/default.yaml"

// Seed holds the reference lists used by the heuristics
type Seed struct {
	Version       int                            `yaml:"version"`
	Subcategories []models.SubcategoryDefinition `yaml:"subcategories"`
	LocalHosts    []string                       `yaml:"local_hosts"`

	Domains struct {
		Productive       []string `yaml:"productive"`
		Distracting      []string `yaml:"distracting"`
		ContextDependent []string `yaml:"context_dependent"`
	} `yaml:"domains"`

	Context struct {
		YouTube struct {
			Educational   []string `yaml:"educational"`
			Entertainment []string `yaml:"entertainment"`
		} `yaml:"youtube"`
		Twitter struct {
			Educational []string `yaml:"educational"`
		} `yaml:"twitter"`
		Reddit struct {
			ProductiveSubreddits []string `yaml:"productive_subreddits"`
		} `yaml:"reddit"`
	} `yaml:"context"`

	Apps struct {
		Productive  []string `yaml:"productive"`
		Distracting []string `yaml:"distracting"`
		Browsers    []string `yaml:"browsers"`
		System      []string `yaml:"system"`
	} `yaml:"apps"`

	UnknownSite struct {
		TrustedSuffixes []string `yaml:"trusted_suffixes"`
		Gaming          []string `yaml:"gaming"`
		News            []string `yaml:"news"`
		NewsTopics      []string `yaml:"news_topics"`
		Educational     []string `yaml:"educational"`
		Distraction     []string `yaml:"distraction"`
		Commerce        []string `yaml:"commerce"`
		Tools           []string `yaml:"tools"`
	} `yaml:"unknown_site"`

	SubcategoryInference []InferenceGroup `yaml:"subcategory_inference"`
}

// InferenceGroup maps app-name keywords to a subcategory
type InferenceGroup struct {
	Subcategory models.Subcategory `yaml:"subcategory"`
	Contains    []string           `yaml:"contains"`
	Equals      []string           `yaml:"equals"`
}

// LoadSeed reads the seed file at path, or the embedded default when path is empty
func LoadSeed(path string) (*Seed, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = seedFS.ReadFile(defaultSeedFile)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	return ParseSeed(data)
}

// ParseSeed decodes and validates seed data. All list entries are lowercased.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	s.normalize()

	return &s, nil
}

func (s *Seed) validate() error {
	if len(s.Subcategories) == 0 {
		return fmt.Errorf("seed has no subcategories")
	}

	known := make(map[models.Subcategory]bool, len(s.Subcategories))
	for _, d := range s.Subcategories {
		if !d.ParentCategory.Valid() {
			return fmt.Errorf("subcategory %q: %w: %q", d.Name, models.ErrInvalidCategory, d.ParentCategory)
		}
		known[d.Name] = true
	}

	for _, g := range s.SubcategoryInference {
		if !known[g.Subcategory] {
			return fmt.Errorf("inference group: %w: %q", models.ErrInvalidSubcategory, g.Subcategory)
		}
	}

	return nil
}

func (s *Seed) normalize() {
	lists := []*[]string{
		&s.LocalHosts,
		&s.Domains.Productive, &s.Domains.Distracting, &s.Domains.ContextDependent,
		&s.Context.YouTube.Educational, &s.Context.YouTube.Entertainment,
		&s.Context.Twitter.Educational, &s.Context.Reddit.ProductiveSubreddits,
		&s.Apps.Productive, &s.Apps.Distracting, &s.Apps.Browsers, &s.Apps.System,
		&s.UnknownSite.TrustedSuffixes, &s.UnknownSite.Gaming, &s.UnknownSite.News,
		&s.UnknownSite.NewsTopics, &s.UnknownSite.Educational, &s.UnknownSite.Distraction,
		&s.UnknownSite.Commerce, &s.UnknownSite.Tools,
	}
	for _, l := range lists {
		lowerAll(*l)
	}
	for i := range s.SubcategoryInference {
		lowerAll(s.SubcategoryInference[i].Contains)
		lowerAll(s.SubcategoryInference[i].Equals)
	}
}

func lowerAll(items []string) {
	for i, v := range items {
		items[i] = strings.ToLower(strings.TrimSpace(v))
	}
}

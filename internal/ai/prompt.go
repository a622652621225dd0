package ai

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strings"
	"text/template"

	"activity-categorizer/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var categorySummaries = map[models.Category]string{
	models.CategoryProductive:  "Educational, learning, coding, research, school-related",
	models.CategoryNeutral:     "Could be either productive or distracting depending on context",
	models.CategoryDistracting: "Social media, games, entertainment, non-educational",
}

var categoryOrder = []models.Category{
	models.CategoryProductive,
	models.CategoryNeutral,
	models.CategoryDistracting,
}

// PromptBuilder renders the classifier prompts from embedded templates
type PromptBuilder struct {
	system   string
	classify *template.Template
}

type categoryGroup struct {
	Category      models.Category
	Summary       string
	Subcategories []subcategoryLine
}

type subcategoryLine struct {
	Name        models.Subcategory
	Description string
}

type classifyData struct {
	Groups     []categoryGroup
	Categories []string
	Samples    []DomainSample
}

// NewPromptBuilder loads the embedded templates
func NewPromptBuilder() (*PromptBuilder, error) {
	system, err := templateFS.ReadFile("templates/system.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read system prompt: %w", err)
	}

	funcMap := template.FuncMap{
		"join":    strings.Join,
		"minutes": func(seconds float64) int { return int(math.Round(seconds / 60)) },
	}

	classify, err := template.New("classify.tmpl").Funcs(funcMap).ParseFS(templateFS, "templates/classify.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse classify template: %w", err)
	}

	return &PromptBuilder{
		system:   strings.TrimSpace(string(system)),
		classify: classify,
	}, nil
}

// System returns the system prompt
func (pb *PromptBuilder) System() string {
	return pb.system
}

// Classify renders the user prompt for a batch of domains. The subcategory
// list comes from the taxonomy so new subcategories reach the prompt without
// a code change.
func (pb *PromptBuilder) Classify(defs []models.SubcategoryDefinition, samples []DomainSample) (string, error) {
	data := classifyData{Samples: samples}

	for _, c := range categoryOrder {
		group := categoryGroup{Category: c, Summary: categorySummaries[c]}
		for _, d := range defs {
			if d.ParentCategory != c {
				continue
			}
			desc := d.Description
			if desc == "" {
				desc = d.DisplayName
			}
			group.Subcategories = append(group.Subcategories, subcategoryLine{Name: d.Name, Description: desc})
		}
		data.Groups = append(data.Groups, group)
		data.Categories = append(data.Categories, string(c))
	}

	var buf bytes.Buffer
	if err := pb.classify.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render classify prompt: %w", err)
	}
	return buf.String(), nil
}

package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category is the top-level classification of an activity
type Category string

const (
	CategoryProductive  Category = "productive"
	CategoryNeutral     Category = "neutral"
	CategoryDistracting Category = "distracting"
)

// Subcategory is a finer label nested under exactly one Category
type Subcategory string

const (
	SubcategorySchool        Subcategory = "school"
	SubcategoryResearch      Subcategory = "research"
	SubcategoryCreativity    Subcategory = "creativity"
	SubcategoryProductivity  Subcategory = "productivity"
	SubcategoryCommunication Subcategory = "communication"
	SubcategoryReading       Subcategory = "reading"
	SubcategoryHealth        Subcategory = "health"
	SubcategoryGaming        Subcategory = "gaming"
	SubcategoryScrolling     Subcategory = "scrolling"
	SubcategoryEntertainment Subcategory = "entertainment"
)

var (
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidSubcategory  = errors.New("invalid subcategory")
	ErrSubcategoryMismatch = errors.New("subcategory does not belong to category")
)

// Valid reports whether c is one of the three known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryProductive, CategoryNeutral, CategoryDistracting:
		return true
	}
	return false
}

// ParseCategory normalizes and validates a category string
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// ProductivityScore is the numeric score the learner compares against
func (c Category) ProductivityScore() float64 {
	switch c {
	case CategoryProductive:
		return 0.8
	case CategoryDistracting:
		return 0.2
	default:
		return 0.5
	}
}

// SubcategoryDefinition is a row of the subcategory reference table
type SubcategoryDefinition struct {
	Name           Subcategory `json:"name" yaml:"name"`
	ParentCategory Category    `json:"parent_category" yaml:"parent"`
	DisplayName    string      `json:"display_name" yaml:"display_name"`
	Description    string      `json:"description,omitempty" yaml:"description"`
	SortOrder      int         `json:"sort_order" yaml:"sort_order"`
}

// Taxonomy holds the subcategory -> parent category mapping. The mapping is
// loaded from data and may be replaced at runtime.
type Taxonomy struct {
	mu      sync.RWMutex
	parents map[Subcategory]Category
	defs    []SubcategoryDefinition
}

// NewTaxonomy builds a taxonomy from subcategory definitions
func NewTaxonomy(defs []SubcategoryDefinition) *Taxonomy {
	t := &Taxonomy{}
	t.Replace(defs)
	return t
}

// Replace swaps the mapping. Definitions with an unknown parent are skipped.
func (t *Taxonomy) Replace(defs []SubcategoryDefinition) {
	parents := make(map[Subcategory]Category, len(defs))
	kept := make([]SubcategoryDefinition, 0, len(defs))
	for _, d := range defs {
		if !d.ParentCategory.Valid() || d.Name == "" {
			continue
		}
		parents[d.Name] = d.ParentCategory
		kept = append(kept, d)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SortOrder < kept[j].SortOrder
	})

	t.mu.Lock()
	t.parents = parents
	t.defs = kept
	t.mu.Unlock()
}

// Parent returns the parent category of a subcategory
func (t *Taxonomy) Parent(sub Subcategory) (Category, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.parents[sub]
	return c, ok
}

// Definitions returns the definitions ordered by sort order
func (t *Taxonomy) Definitions() []SubcategoryDefinition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SubcategoryDefinition, len(t.defs))
	copy(out, t.defs)
	return out
}

// Validate checks a category and optional subcategory pair
func (t *Taxonomy) Validate(category Category, sub *Subcategory) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if sub == nil || *sub == "" {
		return nil
	}
	parent, ok := t.Parent(*sub)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidSubcategory, *sub)
	}
	if parent != category {
		return fmt.Errorf("%w: %q belongs to %q, not %q", ErrSubcategoryMismatch, *sub, parent, category)
	}
	return nil
}

// Consistent reports whether sub may be attached to category
func (t *Taxonomy) Consistent(category Category, sub *Subcategory) bool {
	return t.Validate(category, sub) == nil
}

// IsValidationError reports whether err came from taxonomy validation
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidSubcategory) ||
		errors.Is(err, ErrSubcategoryMismatch)
}

// SubcategoryPtr is a helper for optional subcategory fields
func SubcategoryPtr(s Subcategory) *Subcategory {
	return &s
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Productive ")
	require.NoError(t, err)
	assert.Equal(t, CategoryProductive, c)

	_, err = ParseCategory("fun")
	assert.ErrorIs(t, err, ErrInvalidCategory)
	assert.True(t, IsValidationError(err))
}

func TestCategory_ProductivityScore(t *testing.T) {
	assert.Equal(t, 0.8, CategoryProductive.ProductivityScore())
	assert.Equal(t, 0.5, CategoryNeutral.ProductivityScore())
	assert.Equal(t, 0.2, CategoryDistracting.ProductivityScore())
}

func TestTaxonomy(t *testing.T) {
	tax := NewTaxonomy([]SubcategoryDefinition{
		{Name: SubcategoryGaming, ParentCategory: CategoryDistracting, SortOrder: 3},
		{Name: SubcategorySchool, ParentCategory: CategoryProductive, SortOrder: 1},
		{Name: "orphan", ParentCategory: "unknown", SortOrder: 2},
	})

	defs := tax.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, SubcategorySchool, defs[0].Name)

	parent, ok := tax.Parent(SubcategoryGaming)
	require.True(t, ok)
	assert.Equal(t, CategoryDistracting, parent)

	_, ok = tax.Parent("orphan")
	assert.False(t, ok)

	assert.NoError(t, tax.Validate(CategoryNeutral, nil))
	assert.NoError(t, tax.Validate(CategoryNeutral, SubcategoryPtr("")))
	assert.NoError(t, tax.Validate(CategoryProductive, SubcategoryPtr(SubcategorySchool)))
	assert.ErrorIs(t, tax.Validate("fun", nil), ErrInvalidCategory)
	assert.ErrorIs(t, tax.Validate(CategoryProductive, SubcategoryPtr("knitting")), ErrInvalidSubcategory)
	assert.ErrorIs(t, tax.Validate(CategoryProductive, SubcategoryPtr(SubcategoryGaming)), ErrSubcategoryMismatch)
	assert.False(t, tax.Consistent(CategoryProductive, SubcategoryPtr(SubcategoryGaming)))

	t.Run("replace swaps the mapping", func(t *testing.T) {
		tax.Replace([]SubcategoryDefinition{{Name: SubcategoryHealth, ParentCategory: CategoryProductive}})
		_, ok := tax.Parent(SubcategoryGaming)
		assert.False(t, ok)
		assert.True(t, tax.Consistent(CategoryProductive, SubcategoryPtr(SubcategoryHealth)))
	})
}

func TestSuggestionStatus_Terminal(t *testing.T) {
	assert.False(t, SuggestionPending.Terminal())
	assert.True(t, SuggestionApproved.Terminal())
	assert.True(t, SuggestionRejected.Terminal())
	assert.True(t, ActionApprove.Valid())
	assert.False(t, ReviewAction("defer").Valid())
}

package categorizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/store"
)

func testCategories() []models.CategoryConfig {
	return []models.CategoryConfig{
		{Name: "Groceries", Keywords: []string{"coop", "MIGROS"}},
		{Name: "Transport", Keywords: []string{"SBB", "CFF"}},
		{Name: "Shopping", Keywords: []string{"", "coop city"}},
	}
}

func TestKeywordStrategy_Name(t *testing.T) {
	assert.Equal(t, "Keyword", (&KeywordStrategy{}).Name())
}

func TestKeywordStrategy_Categorize(t *testing.T) {
	mockStore := &store.MockCategoryStore{Categories: testCategories()}
	strategy := NewKeywordStrategy(mockStore, logging.NewMockLogger())

	tests := []struct {
		name     string
		tx       Transaction
		expected string
		found    bool
	}{
		{"merchant match", Transaction{Merchant: "COOP Lausanne"}, "Groceries", true},
		{"case insensitive", Transaction{Merchant: "migros morges"}, "Groceries", true},
		{"description match", Transaction{Description: "Card payment - CFF Mobile"}, "Transport", true},
		// file order wins over the more specific keyword
		{"first category wins", Transaction{Merchant: "Coop City"}, "Groceries", true},
		{"no match", Transaction{Merchant: "Unknown shop"}, "", false},
		{"empty transaction", Transaction{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, found, err := strategy.Categorize(context.Background(), tt.tx)
			assert.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, category.Name)
		})
	}
}

func TestKeywordStrategy_StoreError(t *testing.T) {
	logger := logging.NewMockLogger()
	strategy := NewKeywordStrategy(&store.MockCategoryStore{LoadCategoriesError: errors.New("disk")}, logger)

	_, found, err := strategy.Categorize(context.Background(), Transaction{Merchant: "COOP"})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.True(t, logger.HasEntry("WARN", "Failed to load categories for KeywordStrategy"))
}

func TestKeywordStrategy_Reload(t *testing.T) {
	mockStore := &store.MockCategoryStore{}
	strategy := NewKeywordStrategy(mockStore, nil)
	assert.Empty(t, strategy.CategoryNames())

	mockStore.Categories = testCategories()
	strategy.ReloadCategories()
	assert.Equal(t, []string{"Groceries", "Transport", "Shopping"}, strategy.CategoryNames())
}

package categorizer

import (
	"context"
	"strings"
	"sync"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// KeywordStrategy implements categorization using keyword pattern matching
// from category configuration loaded from YAML files.
type KeywordStrategy struct {
	mu         sync.RWMutex
	categories []models.CategoryConfig
	store      CategoryStoreInterface
	logger     logging.Logger
}

// NewKeywordStrategy creates a new KeywordStrategy instance.
func NewKeywordStrategy(store CategoryStoreInterface, logger logging.Logger) *KeywordStrategy {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	strategy := &KeywordStrategy{
		store:  store,
		logger: logger,
	}
	strategy.loadCategories()
	return strategy
}

// Name returns the name of this strategy for logging and debugging.
func (s *KeywordStrategy) Name() string {
	return "Keyword"
}

// Categorize matches configured keywords against merchant and description,
// case-insensitively. Categories are tried in file order.
func (s *KeywordStrategy) Categorize(ctx context.Context, tx Transaction) (models.Category, bool, error) {
	merchant := strings.ToUpper(tx.Merchant)
	description := strings.ToUpper(tx.Description)
	if strings.TrimSpace(merchant) == "" && strings.TrimSpace(description) == "" {
		return models.Category{}, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, categoryConfig := range s.categories {
		for _, keyword := range categoryConfig.Keywords {
			keywordUpper := strings.ToUpper(strings.TrimSpace(keyword))
			if keywordUpper == "" {
				continue
			}
			if strings.Contains(merchant, keywordUpper) || strings.Contains(description, keywordUpper) {
				s.logger.WithFields(
					logging.Field{Key: "strategy", Value: s.Name()},
					logging.Field{Key: "merchant", Value: tx.Merchant},
					logging.Field{Key: "keyword", Value: keyword},
					logging.Field{Key: logging.FieldCategory, Value: categoryConfig.Name},
				).Debug("Transaction categorized using keyword matching")

				return models.Category{
					Name:        categoryConfig.Name,
					Description: categoryDescriptionFromName(categoryConfig.Name),
				}, true, nil
			}
		}
	}

	return models.Category{}, false, nil
}

func (s *KeywordStrategy) loadCategories() {
	if s.store == nil {
		return
	}
	categories, err := s.store.LoadCategories()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load categories for KeywordStrategy")
		return
	}
	s.mu.Lock()
	s.categories = categories
	s.mu.Unlock()
	s.logger.WithField(logging.FieldCount, len(categories)).Debug("Loaded categories for KeywordStrategy")
}

// ReloadCategories reloads the categories from the store.
func (s *KeywordStrategy) ReloadCategories() {
	s.loadCategories()
}

// CategoryNames lists the configured category names in file order.
func (s *KeywordStrategy) CategoryNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.categories))
	for _, c := range s.categories {
		names = append(names, c.Name)
	}
	return names
}

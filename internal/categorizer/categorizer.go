// Package categorizer assigns a category to detected movements by running
// an ordered list of strategies: keyword matching from a YAML file, then
// optionally a Gemini model.
package categorizer

import (
	"context"
	"fmt"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// Categorizer runs its strategies in order; the first hit wins.
type Categorizer struct {
	strategies []CategorizationStrategy
	fallback   string
	logger     logging.Logger
}

// NewCategorizer builds a categorizer with the keyword strategy and, when
// aiClient is non-nil, the AI strategy after it.
func NewCategorizer(store CategoryStoreInterface, aiClient AIClient, fallback string, logger logging.Logger) *Categorizer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if fallback == "" {
		fallback = models.CategoryUncategorized
	}

	keyword := NewKeywordStrategy(store, logger)
	strategies := []CategorizationStrategy{keyword}
	if aiClient != nil {
		strategies = append(strategies, NewAIStrategy(aiClient, keyword.CategoryNames, logger))
	}

	return &Categorizer{strategies: strategies, fallback: fallback, logger: logger}
}

// NewCategorizerWithStrategies is used when the strategy list is assembled
// elsewhere (tests, custom wiring).
func NewCategorizerWithStrategies(strategies []CategorizationStrategy, fallback string, logger logging.Logger) *Categorizer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if fallback == "" {
		fallback = models.CategoryUncategorized
	}
	return &Categorizer{strategies: strategies, fallback: fallback, logger: logger}
}

// Categorize returns a category name, never empty. Strategy errors are
// logged and skipped.
func (c *Categorizer) Categorize(ctx context.Context, tx Transaction) string {
	for _, strategy := range c.strategies {
		category, found, err := strategy.Categorize(ctx, tx)
		if err != nil {
			c.logger.WithError(err).WithField("strategy", strategy.Name()).
				Warn("Categorization strategy failed")
			continue
		}
		if found && category.Name != "" {
			return category.Name
		}
	}
	return c.fallback
}

// Strategies returns the strategy names in evaluation order.
func (c *Categorizer) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

func categoryDescriptionFromName(name string) string {
	return fmt.Sprintf("%s transactions", name)
}

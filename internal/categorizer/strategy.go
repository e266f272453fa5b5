package categorizer

import (
	"context"

	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/models"
)

// Transaction is the view of a detected movement a strategy categorizes.
type Transaction struct {
	Merchant    string
	Description string
	Amount      decimal.Decimal
	Income      bool
}

// CategorizationStrategy defines a method for categorizing transactions.
// Each strategy implements a specific approach to categorization (keywords, AI, etc.).
type CategorizationStrategy interface {
	// Categorize returns the category and whether the strategy found one.
	// An error means the strategy itself failed; the caller moves on.
	Categorize(ctx context.Context, tx Transaction) (models.Category, bool, error)

	// Name returns the name of this strategy for logging and debugging purposes.
	Name() string
}

// CategoryStoreInterface is the category source the keyword strategy reads.
type CategoryStoreInterface interface {
	LoadCategories() ([]models.CategoryConfig, error)
}

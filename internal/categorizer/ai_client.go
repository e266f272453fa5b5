package categorizer

import "context"

// AIClient abstracts the model that suggests a category for a transaction.
// Allowed lists the category names the answer must be chosen from; it may
// be empty.
type AIClient interface {
	SuggestCategory(ctx context.Context, tx Transaction, allowed []string) (string, error)
}

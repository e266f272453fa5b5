package categorizer

import (
	"context"
	"strings"
	"sync"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// AIStrategy implements categorization using AI services.
// Answers are cached per merchant for the life of the process.
type AIStrategy struct {
	aiClient AIClient
	allowed  func() []string
	logger   logging.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewAIStrategy creates a new AIStrategy instance. allowed, when non-nil,
// supplies the category names the model must choose from.
func NewAIStrategy(aiClient AIClient, allowed func() []string, logger logging.Logger) *AIStrategy {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &AIStrategy{
		aiClient: aiClient,
		allowed:  allowed,
		logger:   logger,
		cache:    make(map[string]string),
	}
}

// Name returns the name of this strategy for logging and debugging.
func (s *AIStrategy) Name() string {
	return "AI"
}

// Categorize asks the AI client. Client failures and unknown answers are
// reported as not found so the next strategy can run.
func (s *AIStrategy) Categorize(ctx context.Context, tx Transaction) (models.Category, bool, error) {
	if s.aiClient == nil {
		return models.Category{}, false, nil
	}
	key := strings.ToUpper(strings.TrimSpace(tx.Merchant))
	if key == "" {
		return models.Category{}, false, nil
	}

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return models.Category{Name: cached, Description: categoryDescriptionFromName(cached)}, true, nil
	}

	var allowed []string
	if s.allowed != nil {
		allowed = s.allowed()
	}

	answer, err := s.aiClient.SuggestCategory(ctx, tx, allowed)
	if err != nil {
		s.logger.WithError(err).WithFields(
			logging.Field{Key: "strategy", Value: s.Name()},
			logging.Field{Key: "merchant", Value: tx.Merchant},
		).Warn("AI categorization failed")
		return models.Category{}, false, nil
	}

	name, valid := normalizeAnswer(answer, allowed)
	if !valid {
		s.logger.WithFields(
			logging.Field{Key: "strategy", Value: s.Name()},
			logging.Field{Key: "merchant", Value: tx.Merchant},
			logging.Field{Key: "ai_category", Value: answer},
		).Debug("AI returned an unusable category")
		return models.Category{}, false, nil
	}

	s.mu.Lock()
	s.cache[key] = name
	s.mu.Unlock()

	s.logger.WithFields(
		logging.Field{Key: "strategy", Value: s.Name()},
		logging.Field{Key: "merchant", Value: tx.Merchant},
		logging.Field{Key: logging.FieldCategory, Value: name},
	).Debug("Transaction categorized using AI")

	return models.Category{Name: name, Description: categoryDescriptionFromName(name)}, true, nil
}

// normalizeAnswer maps the answer onto an allowed name, ignoring case.
func normalizeAnswer(answer string, allowed []string) (string, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, models.CategoryUncategorized) {
		return "", false
	}
	if len(allowed) == 0 {
		return answer, true
	}
	for _, name := range allowed {
		if strings.EqualFold(name, answer) {
			return name, true
		}
	}
	return "", false
}

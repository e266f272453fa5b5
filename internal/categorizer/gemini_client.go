package categorizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"fjacquet/networth-sync/internal/logging"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements AIClient against the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  logging.Logger
}

// NewGeminiClient creates a Gemini-backed AIClient.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, logger logging.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// SuggestCategory asks the model for a single category name.
func (c *GeminiClient) SuggestCategory(ctx context.Context, tx Transaction, allowed []string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := buildPrompt(tx, allowed)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	answer := cleanAnswer(resp.Text())
	c.logger.WithFields(
		logging.Field{Key: logging.FieldOperation, Value: "gemini_categorization"},
		logging.Field{Key: "merchant", Value: tx.Merchant},
		logging.Field{Key: logging.FieldCategory, Value: answer},
	).Debug("Gemini suggested a category")

	return answer, nil
}

func buildPrompt(tx Transaction, allowed []string) string {
	var b strings.Builder
	b.WriteString("Classify this bank card transaction into one spending category.\n")
	if len(allowed) > 0 {
		b.WriteString("Answer with exactly one of: ")
		b.WriteString(strings.Join(allowed, ", "))
		b.WriteString(".\n")
	}
	b.WriteString("Answer with the category name only.\n\n")
	fmt.Fprintf(&b, "Merchant: %s\n", tx.Merchant)
	fmt.Fprintf(&b, "Description: %s\n", tx.Description)
	fmt.Fprintf(&b, "Amount: %s\n", tx.Amount.StringFixed(2))
	if tx.Income {
		b.WriteString("Direction: incoming\n")
	} else {
		b.WriteString("Direction: outgoing\n")
	}
	return b.String()
}

func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'.*`)
}

// Package matcher applies declarative extraction rules to notification text
// and produces transaction candidates.
package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// CompiledRule is an ExtractionRule with its patterns compiled.
type CompiledRule struct {
	models.ExtractionRule
	amount   *regexp.Regexp
	merchant *regexp.Regexp
}

// Compile validates rule and compiles its patterns. The amount pattern must
// have at least one capture group; the first one holds the amount.
func Compile(rule models.ExtractionRule) (*CompiledRule, error) {
	if strings.TrimSpace(rule.AmountPattern) == "" {
		return nil, fmt.Errorf("rule %q: amount_pattern is required", rule.Name)
	}
	if strings.TrimSpace(rule.SearchQuery) == "" {
		return nil, fmt.Errorf("rule %q: query is required", rule.Name)
	}
	if strings.TrimSpace(rule.CardIdentifier) == "" {
		return nil, fmt.Errorf("rule %q: card is required", rule.Name)
	}

	switch rule.Direction {
	case "":
		rule.Direction = models.DirectionExpense
	case models.DirectionExpense, models.DirectionIncome:
	default:
		return nil, fmt.Errorf("rule %q: unknown direction %q", rule.Name, rule.Direction)
	}
	if rule.Name == "" {
		rule.Name = rule.CardIdentifier + "/" + rule.OperationLabel
	}

	amount, err := regexp.Compile(rule.AmountPattern)
	if err != nil {
		return nil, fmt.Errorf("rule %q: invalid amount_pattern: %w", rule.Name, err)
	}
	if amount.NumSubexp() < 1 {
		return nil, fmt.Errorf("rule %q: amount_pattern needs a capture group", rule.Name)
	}

	compiled := &CompiledRule{ExtractionRule: rule, amount: amount}
	if rule.MerchantPattern != "" {
		compiled.merchant, err = regexp.Compile(rule.MerchantPattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid merchant_pattern: %w", rule.Name, err)
		}
	}
	return compiled, nil
}

// CompileAll compiles rules keeping their order. Any invalid rule fails the
// whole set.
func CompileAll(rules []models.ExtractionRule) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(rules))
	for i, r := range rules {
		c, err := Compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i+1, err)
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// Matcher evaluates compiled rules in their configured order.
type Matcher struct {
	rules  []*CompiledRule
	logger logging.Logger
}

// New creates a Matcher over already compiled rules.
func New(rules []*CompiledRule, logger logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Matcher{rules: rules, logger: logger}
}

// Rules returns the rules in evaluation order.
func (m *Matcher) Rules() []*CompiledRule {
	return m.rules
}

// Match applies one rule to text. A nil candidate with a nil error means
// the amount pattern did not match. A matched amount that cannot be parsed
// is a *parsererror.ParseError. SourceMessageID and Timestamp are left for
// the caller.
func (m *Matcher) Match(rule *CompiledRule, text string) (*models.TransactionCandidate, error) {
	groups := rule.amount.FindStringSubmatch(text)
	if groups == nil {
		return nil, nil
	}

	amount, err := currencyutils.ParseLocalizedAmount(groups[1])
	if err != nil {
		return nil, fmt.Errorf("rule %q matched an unparsable amount: %w", rule.Name, err)
	}

	r := rule.ExtractionRule
	candidate := &models.TransactionCandidate{
		Amount:   amount,
		Merchant: m.merchant(rule, text),
		Rule:     &r,
	}
	return candidate, nil
}

func (m *Matcher) merchant(rule *CompiledRule, text string) string {
	if rule.merchant == nil {
		m.logger.WithField(logging.FieldRule, rule.Name).
			Warn("Rule has no merchant pattern, description falls back to label")
		return ""
	}
	groups := rule.merchant.FindStringSubmatch(text)
	if groups == nil {
		m.logger.WithField(logging.FieldRule, rule.Name).
			Warn("Merchant pattern did not match, description falls back to label")
		return ""
	}
	if len(groups) > 1 {
		return strings.TrimSpace(groups[1])
	}
	return strings.TrimSpace(groups[0])
}

// MatchFirst evaluates the rules in order and stops at the first one whose
// amount pattern matches.
func (m *Matcher) MatchFirst(text string) (*models.TransactionCandidate, error) {
	for _, rule := range m.rules {
		candidate, err := m.Match(rule, text)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			return candidate, nil
		}
	}
	return nil, nil
}

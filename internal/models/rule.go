package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a notification reports money leaving or
// entering the account.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// ExtractionRule describes how to find and read one kind of bank
// notification. Rules are immutable once loaded.
type ExtractionRule struct {
	Name            string    `yaml:"name"`
	CardIdentifier  string    `yaml:"card"`
	SearchQuery     string    `yaml:"query"`
	AmountPattern   string    `yaml:"amount_pattern"`
	MerchantPattern string    `yaml:"merchant_pattern,omitempty"`
	OperationLabel  string    `yaml:"label"`
	Currency        string    `yaml:"currency,omitempty"`
	Direction       Direction `yaml:"direction,omitempty"`
}

// IsIncome reports whether matches credit the account.
func (r *ExtractionRule) IsIncome() bool {
	return r.Direction == DirectionIncome
}

// TransactionCandidate is a transaction extracted from one message. It is
// consumed once by the reconciler and never stored.
type TransactionCandidate struct {
	SourceMessageID string
	Amount          decimal.Decimal
	Merchant        string
	Timestamp       time.Time
	Rule            *ExtractionRule
}

// Description renders "<label> - <merchant>", or only the label when no
// merchant was extracted.
func (c *TransactionCandidate) Description() string {
	label := ""
	if c.Rule != nil {
		label = c.Rule.OperationLabel
	}
	merchant := strings.TrimSpace(c.Merchant)
	switch {
	case merchant == "":
		return label
	case label == "":
		return merchant
	}
	return label + " - " + merchant
}

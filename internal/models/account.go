// Package models provides the data structures used throughout the application.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes the three account families.
type AccountKind string

const (
	AccountKindBank  AccountKind = "bank"
	AccountKindDebt  AccountKind = "debt"
	AccountKindAsset AccountKind = "asset"
)

// ParseAccountKind accepts a kind name case-insensitively.
func ParseAccountKind(s string) (AccountKind, error) {
	switch AccountKind(strings.ToLower(strings.TrimSpace(s))) {
	case AccountKindBank:
		return AccountKindBank, nil
	case AccountKindDebt:
		return AccountKindDebt, nil
	case AccountKindAsset:
		return AccountKindAsset, nil
	}
	return "", fmt.Errorf("unknown account kind %q (want bank, debt or asset)", s)
}

// Account is a bank, debt or asset account with its denormalized current
// amount. For assets Balance holds the "value".
type Account struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Kind           AccountKind     `json:"kind" yaml:"kind"`
	Type           string          `json:"type,omitempty" yaml:"type,omitempty"`
	Currency       string          `json:"currency,omitempty" yaml:"currency,omitempty"`
	Balance        decimal.Decimal `json:"balance" yaml:"balance"`
	LastUpdated    time.Time       `json:"lastUpdated" yaml:"last_updated"`
	CardIdentifier string          `json:"cardIdentifier,omitempty" yaml:"card_identifier,omitempty"`
}

// AmountField names the stored field holding the current amount.
func (a *Account) AmountField() string {
	if a.Kind == AccountKindAsset {
		return "value"
	}
	return "balance"
}

// HasLastUpdated reports whether any observation has been applied yet.
func (a *Account) HasLastUpdated() bool {
	return !a.LastUpdated.IsZero()
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementLogCapacity bounds the rolling movement feed of each account.
const MovementLogCapacity = 20

// Movement is one applied transaction in the recent-activity feed.
// Amount is negative for money leaving the account.
type Movement struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description"`
	Timestamp     time.Time       `json:"timestamp"`
	Category      string          `json:"category,omitempty"`
}

// MovementLog holds the newest-first movements of one account.
type MovementLog struct {
	AccountID string     `json:"accountId"`
	Items     []Movement `json:"items"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance of ledger entries and observations.
const (
	SourceEmail   = "email"
	SourceCSV     = "csv"
	SourceManual  = "manual"
	SourceRefresh = "refresh"
)

// LedgerEntry is the single balance snapshot of an account for one calendar
// day. A later observation for the same day overwrites it.
type LedgerEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Day          string          `json:"day"` // YYYY-MM-DD in the ledger timezone
	Balance      decimal.Decimal `json:"balance"`
	Timestamp    time.Time       `json:"timestamp"`
	Source       string          `json:"source,omitempty"`
	IsAutoImport bool            `json:"isAutoImport"`
}

// Observation is an absolute balance or value reading at a point in time.
type Observation struct {
	AccountID string          `json:"accountId"`
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
}

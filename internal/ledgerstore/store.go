// Package ledgerstore defines the account store the reconciler writes to.
// A store offers plain reads for display and per-account transactions in
// which every read happens before any write and all writes commit as one
// unit.
package ledgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fjacquet/networth-sync/internal/models"
)

var (
	// ErrAccountNotFound is returned when the account does not exist.
	// Reconciliation never creates accounts.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionConflict is returned once optimistic retries are
	// exhausted.
	ErrTransactionConflict = errors.New("transaction conflict: retries exhausted")

	// ErrReadAfterWrite is returned when a transaction reads after it has
	// already buffered a write.
	ErrReadAfterWrite = errors.New("transaction read after write")

	// ErrForeignAccount is returned when a transaction touches a document of
	// another account.
	ErrForeignAccount = errors.New("transaction is scoped to a different account")
)

// DefaultMaxAttempts bounds optimistic retries when none is configured.
const DefaultMaxAttempts = 5

// Tx is a transaction scoped to a single account. All reads must precede
// all writes.
type Tx interface {
	// Account reads the account or returns ErrAccountNotFound.
	Account() (*models.Account, error)
	// LedgerEntryForDay returns the entry with a timestamp in [start, end],
	// or nil when the day has none.
	LedgerEntryForDay(start, end time.Time) (*models.LedgerEntry, error)
	// MovementLog returns the log, empty when none was written yet.
	MovementLog() (*models.MovementLog, error)

	PutAccount(account *models.Account) error
	PutLedgerEntry(entry *models.LedgerEntry) error
	PutMovementLog(log *models.MovementLog) error
}

// TxFunc is run, possibly several times, inside RunInTransaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the account store.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	// SaveAccount creates or replaces an account outside reconciliation
	// (manual entry, account discovery).
	SaveAccount(ctx context.Context, account *models.Account) error

	// RunInTransaction runs fn atomically for accountID, re-running it on
	// conflicting concurrent commits. fn must not have side effects outside
	// tx.
	RunInTransaction(ctx context.Context, accountID string, fn TxFunc) error

	// LedgerEntries lists entries with timestamps in [from, to], oldest first.
	LedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error)
	MovementLog(ctx context.Context, accountID string) (*models.MovementLog, error)

	Close() error
}

// LedgerEntryID is the deterministic id of an account's entry for a day.
func LedgerEntryID(accountID, day string) string {
	return accountID + "_" + day
}

// ValidateAccount checks the fields every backend requires.
func ValidateAccount(a *models.Account) error {
	if a == nil {
		return errors.New("account is nil")
	}
	if a.ID == "" {
		return errors.New("account id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("account %s: name is required", a.ID)
	}
	if _, err := models.ParseAccountKind(string(a.Kind)); err != nil {
		return fmt.Errorf("account %s: %w", a.ID, err)
	}
	return nil
}

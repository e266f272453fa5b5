package ledgerstore

import (
	"fmt"

	"fjacquet/networth-sync/internal/models"
)

// Guard enforces the read-before-write and single-account rules for a
// backend's Tx implementation.
type Guard struct {
	AccountID string
	written   bool
}

// BeforeRead fails once a write has been buffered.
func (g *Guard) BeforeRead() error {
	if g.written {
		return ErrReadAfterWrite
	}
	return nil
}

// BeforeWrite checks ownerID and marks the transaction as writing.
func (g *Guard) BeforeWrite(ownerID string) error {
	if ownerID != g.AccountID {
		return fmt.Errorf("%w: %s in transaction for %s", ErrForeignAccount, ownerID, g.AccountID)
	}
	g.written = true
	return nil
}

// Wrote reports whether any write was buffered.
func (g *Guard) Wrote() bool {
	return g.written
}

// CheckLedgerEntry validates an entry before it is written.
func (g *Guard) CheckLedgerEntry(e *models.LedgerEntry) error {
	if e == nil || e.Day == "" {
		return fmt.Errorf("ledger entry for %s has no day", g.AccountID)
	}
	return g.BeforeWrite(e.AccountID)
}

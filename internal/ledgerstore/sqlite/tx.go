package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/models"
)

// readCheck re-validates one read inside the commit transaction.
type readCheck func(ctx context.Context, tx *sql.Tx) error

type sqlTx struct {
	ctx   context.Context
	store *Store
	guard ledgerstore.Guard

	checks []readCheck

	pendingAccount *models.Account
	pendingEntries []*models.LedgerEntry
	pendingLog     *models.MovementLog
}

var _ ledgerstore.Tx = (*sqlTx)(nil)

func newTx(ctx context.Context, s *Store, accountID string) *sqlTx {
	return &sqlTx{ctx: ctx, store: s, guard: ledgerstore.Guard{AccountID: accountID}}
}

func versionCheck(query string, want int64, args ...any) readCheck {
	return func(ctx context.Context, tx *sql.Tx) error {
		var got int64
		err := tx.QueryRowContext(ctx, query, args...).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			got = 0
		} else if err != nil {
			return fmt.Errorf("validate read: %w", err)
		}
		if got != want {
			return errStale
		}
		return nil
	}
}

func (t *sqlTx) Account() (*models.Account, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	accountID := t.guard.AccountID

	row := t.store.db.QueryRowContext(t.ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	a, version, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledgerstore.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", accountID, err)
	}

	t.checks = append(t.checks, versionCheck(`SELECT version FROM accounts WHERE id = ?`, version, accountID))
	return a, nil
}

func (t *sqlTx) LedgerEntryForDay(start, end time.Time) (*models.LedgerEntry, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	accountID := t.guard.AccountID
	from, to := start.UnixMilli(), end.UnixMilli()

	row := t.store.db.QueryRowContext(t.ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE account_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC LIMIT 1`, accountID, from, to)
	e, version, err := scanLedgerEntry(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e, version = nil, 0
	case err != nil:
		return nil, fmt.Errorf("read ledger entry: %w", err)
	}

	seenID := ""
	if e != nil {
		seenID = e.ID
	}
	t.checks = append(t.checks, func(ctx context.Context, tx *sql.Tx) error {
		var (
			id string
			v  int64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, version FROM ledger_entries
			WHERE account_id = ? AND ts >= ? AND ts <= ?
			ORDER BY ts DESC LIMIT 1`, accountID, from, to).Scan(&id, &v)
		if errors.Is(err, sql.ErrNoRows) {
			id, v = "", 0
		} else if err != nil {
			return fmt.Errorf("validate ledger read: %w", err)
		}
		if id != seenID || v != version {
			return errStale
		}
		return nil
	})
	return e, nil
}

func (t *sqlTx) MovementLog() (*models.MovementLog, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	accountID := t.guard.AccountID

	log, version, err := t.store.readMovementLog(t.ctx, t.store.db, accountID)
	if err != nil {
		return nil, err
	}
	t.checks = append(t.checks, versionCheck(`SELECT version FROM movement_logs WHERE account_id = ?`, version, accountID))
	return log, nil
}

func (t *sqlTx) PutAccount(a *models.Account) error {
	if err := ledgerstore.ValidateAccount(a); err != nil {
		return err
	}
	if err := t.guard.BeforeWrite(a.ID); err != nil {
		return err
	}
	cp := *a
	t.pendingAccount = &cp
	return nil
}

func (t *sqlTx) PutLedgerEntry(e *models.LedgerEntry) error {
	if err := t.guard.CheckLedgerEntry(e); err != nil {
		return err
	}
	cp := *e
	if cp.ID == "" {
		cp.ID = ledgerstore.LedgerEntryID(cp.AccountID, cp.Day)
	}
	t.pendingEntries = append(t.pendingEntries, &cp)
	return nil
}

func (t *sqlTx) PutMovementLog(log *models.MovementLog) error {
	if log == nil {
		return errors.New("movement log is nil")
	}
	if err := t.guard.BeforeWrite(log.AccountID); err != nil {
		return err
	}
	cp := models.MovementLog{AccountID: log.AccountID, Items: append([]models.Movement(nil), log.Items...)}
	t.pendingLog = &cp
	return nil
}

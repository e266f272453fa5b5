// Package sqlite implements ledgerstore.Store on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
//
// Transactions are optimistic. Reads inside a transaction record the row
// versions they saw; writes are buffered and applied at commit inside a
// single BEGIN IMMEDIATE transaction that first re-checks every recorded
// version. A changed version aborts the commit and the closure is re-run.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// errStale marks a commit whose reads are no longer current.
var errStale = errors.New("stale read")

// Store is a SQLite-backed ledgerstore.Store.
type Store struct {
	db          *sql.DB
	maxAttempts int
	logger      logging.Logger
}

var _ ledgerstore.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, maxAttempts int, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if maxAttempts < 1 {
		maxAttempts = ledgerstore.DefaultMaxAttempts
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{db: db, maxAttempts: maxAttempts, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, int64, error) {
	var (
		a           models.Account
		kind        string
		balance     string
		lastUpdated int64
		version     int64
	)
	if err := row.Scan(&a.ID, &a.Name, &kind, &a.Type, &a.Currency, &balance, &lastUpdated, &a.CardIdentifier, &version); err != nil {
		return nil, 0, err
	}
	a.Kind = models.AccountKind(kind)
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, 0, fmt.Errorf("account %s: corrupt balance %q: %w", a.ID, balance, err)
	}
	a.Balance = amount
	a.LastUpdated = fromMillis(lastUpdated)
	return &a, version, nil
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, int64, error) {
	var (
		e        models.LedgerEntry
		balance  string
		ts       int64
		autoFlag int64
		version  int64
	)
	if err := row.Scan(&e.ID, &e.AccountID, &e.Day, &balance, &ts, &e.Source, &autoFlag, &version); err != nil {
		return nil, 0, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger entry %s: corrupt balance %q: %w", e.ID, balance, err)
	}
	e.Balance = amount
	e.Timestamp = fromMillis(ts)
	e.IsAutoImport = autoFlag != 0
	return &e, version, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// GetAccount returns the account or ledgerstore.ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	a, _, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledgerstore.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, _, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SaveAccount creates or replaces an account.
func (s *Store) SaveAccount(ctx context.Context, a *models.Account) error {
	if err := ledgerstore.ValidateAccount(a); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, kind, type, currency, balance, last_updated, card_identifier, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			type = excluded.type,
			currency = excluded.currency,
			balance = excluded.balance,
			last_updated = excluded.last_updated,
			card_identifier = excluded.card_identifier,
			version = accounts.version + 1`,
		a.ID, a.Name, string(a.Kind), a.Type, a.Currency, a.Balance.String(), toMillis(a.LastUpdated), a.CardIdentifier)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

// LedgerEntries lists entries with timestamps in [from, to], oldest first.
func (s *Store) LedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE account_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		accountID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		e, _, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// MovementLog returns the account's movement log, empty when none exists.
func (s *Store) MovementLog(ctx context.Context, accountID string) (*models.MovementLog, error) {
	log, _, err := s.readMovementLog(ctx, s.db, accountID)
	return log, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) readMovementLog(ctx context.Context, q querier, accountID string) (*models.MovementLog, int64, error) {
	var (
		items   string
		version int64
	)
	err := q.QueryRowContext(ctx, `SELECT items, version FROM movement_logs WHERE account_id = ?`, accountID).
		Scan(&items, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.MovementLog{AccountID: accountID, Items: []models.Movement{}}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read movement log %s: %w", accountID, err)
	}

	log := &models.MovementLog{AccountID: accountID}
	if err := json.Unmarshal([]byte(items), &log.Items); err != nil {
		return nil, 0, fmt.Errorf("decode movement log %s: %w", accountID, err)
	}
	return log, version, nil
}

// RunInTransaction runs fn with optimistic retries.
func (s *Store) RunInTransaction(ctx context.Context, accountID string, fn ledgerstore.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := newTx(ctx, s, accountID)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		err := s.commit(ctx, tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStale) {
			return err
		}

		s.logger.WithFields(
			logging.Field{Key: logging.FieldAccountID, Value: accountID},
			logging.Field{Key: logging.FieldAttempt, Value: attempt},
		).Debug("Concurrent update detected, retrying transaction")
	}
	return fmt.Errorf("%w: account %s after %d attempts", ledgerstore.ErrTransactionConflict, accountID, s.maxAttempts)
}

func (s *Store) commit(ctx context.Context, t *sqlTx) error {
	if !t.guard.Wrote() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, check := range t.checks {
		if err := check(ctx, tx); err != nil {
			return err
		}
	}

	if a := t.pendingAccount; a != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET
				name = ?, kind = ?, type = ?, currency = ?, balance = ?,
				last_updated = ?, card_identifier = ?, version = version + 1
			WHERE id = ?`,
			a.Name, string(a.Kind), a.Type, a.Currency, a.Balance.String(),
			toMillis(a.LastUpdated), a.CardIdentifier, a.ID)
		if err != nil {
			return fmt.Errorf("update account %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ledgerstore.ErrAccountNotFound, a.ID)
		}
	}

	for _, e := range t.pendingEntries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (`+ledgerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				day = excluded.day,
				balance = excluded.balance,
				ts = excluded.ts,
				source = excluded.source,
				is_auto_import = excluded.is_auto_import,
				version = ledger_entries.version + 1
			ON CONFLICT(account_id, day) DO UPDATE SET
				balance = excluded.balance,
				ts = excluded.ts,
				source = excluded.source,
				is_auto_import = excluded.is_auto_import,
				version = ledger_entries.version + 1`,
			e.ID, e.AccountID, e.Day, e.Balance.String(), e.Timestamp.UnixMilli(), e.Source, boolInt(e.IsAutoImport))
		if err != nil {
			return fmt.Errorf("upsert ledger entry %s: %w", e.ID, err)
		}
	}

	if log := t.pendingLog; log != nil {
		items, err := json.Marshal(log.Items)
		if err != nil {
			return fmt.Errorf("encode movement log: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO movement_logs (account_id, items, version) VALUES (?, ?, 1)
			ON CONFLICT(account_id) DO UPDATE SET
				items = excluded.items,
				version = movement_logs.version + 1`,
			log.AccountID, string(items))
		if err != nil {
			return fmt.Errorf("upsert movement log %s: %w", log.AccountID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

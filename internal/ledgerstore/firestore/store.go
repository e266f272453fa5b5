package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// Store is a Firestore-backed ledgerstore.Store.
type Store struct {
	client      *firestore.Client
	maxAttempts int
	logger      logging.Logger
}

var _ ledgerstore.Store = (*Store)(nil)

// NewStore wraps an existing Firestore client.
func NewStore(client *firestore.Client, maxAttempts int, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if maxAttempts < 1 {
		maxAttempts = ledgerstore.DefaultMaxAttempts
	}
	return &Store{client: client, maxAttempts: maxAttempts, logger: logger}
}

func (s *Store) accountRef(accountID string) *firestore.DocumentRef {
	return s.client.Collection(collectionAccounts).Doc(accountID)
}

func (s *Store) historyRef(accountID string) *firestore.CollectionRef {
	return s.accountRef(accountID).Collection(collectionHistory)
}

func (s *Store) movementLogRef(accountID string) *firestore.DocumentRef {
	return s.client.Collection(collectionMovementLogs).Doc(accountID)
}

func (s *Store) dayQuery(accountID string, start, end time.Time) firestore.Query {
	return s.historyRef(accountID).
		Where("timestamp", ">=", start).
		Where("timestamp", "<=", end).
		OrderBy("timestamp", firestore.Desc).
		Limit(1)
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// GetAccount returns the account or ledgerstore.ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	snap, err := s.accountRef(accountID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ledgerstore.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return decodeAccount(snap)
}

func decodeAccount(snap *firestore.DocumentSnapshot) (*models.Account, error) {
	var doc accountDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", snap.Ref.ID, err)
	}
	return accountFromDoc(snap.Ref.ID, doc), nil
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	iter := s.client.Collection(collectionAccounts).OrderBy("name", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.Account
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate accounts: %w", err)
		}
		a, err := decodeAccount(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// SaveAccount creates or replaces an account document.
func (s *Store) SaveAccount(ctx context.Context, a *models.Account) error {
	if err := ledgerstore.ValidateAccount(a); err != nil {
		return err
	}
	if _, err := s.accountRef(a.ID).Set(ctx, accountToDoc(a)); err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

// LedgerEntries lists entries with timestamps in [from, to], oldest first.
func (s *Store) LedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	iter := s.historyRef(accountID).
		Where("timestamp", ">=", from).
		Where("timestamp", "<=", to).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []models.LedgerEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate ledger entries: %w", err)
		}
		var doc ledgerDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", snap.Ref.ID, err)
		}
		out = append(out, *ledgerFromDoc(snap.Ref.ID, doc))
	}
	return out, nil
}

// MovementLog returns the account's movement log, empty when none exists.
func (s *Store) MovementLog(ctx context.Context, accountID string) (*models.MovementLog, error) {
	snap, err := s.movementLogRef(accountID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &models.MovementLog{AccountID: accountID, Items: []models.Movement{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get movement log %s: %w", accountID, err)
	}
	var doc movementLogDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode movement log %s: %w", accountID, err)
	}
	return movementLogFromDoc(accountID, doc), nil
}

// RunInTransaction runs fn in a Firestore transaction. Firestore re-runs
// fn itself when the commit is aborted by a concurrent writer.
func (s *Store) RunInTransaction(ctx context.Context, accountID string, fn ledgerstore.TxFunc) error {
	attempt := 0
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		attempt++
		if attempt > 1 {
			s.logger.WithFields(
				logging.Field{Key: logging.FieldAccountID, Value: accountID},
				logging.Field{Key: logging.FieldAttempt, Value: attempt},
			).Debug("Concurrent update detected, retrying transaction")
		}
		return fn(ctx, &fsTx{store: s, tx: ftx, guard: ledgerstore.Guard{AccountID: accountID}})
	}, firestore.MaxAttempts(s.maxAttempts))
	return mapTransactionError(err, accountID, s.maxAttempts)
}

func mapTransactionError(err error, accountID string, attempts int) error {
	if err == nil {
		return nil
	}
	// Errors returned by fn keep their identity.
	if errors.Is(err, ledgerstore.ErrAccountNotFound) || errors.Is(err, ledgerstore.ErrReadAfterWrite) ||
		errors.Is(err, ledgerstore.ErrForeignAccount) {
		return err
	}
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: account %s after %d attempts: %v", ledgerstore.ErrTransactionConflict, accountID, attempts, err)
	}
	return err
}

type fsTx struct {
	store *Store
	tx    *firestore.Transaction
	guard ledgerstore.Guard
}

var _ ledgerstore.Tx = (*fsTx)(nil)

func (t *fsTx) Account() (*models.Account, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	snap, err := t.tx.Get(t.store.accountRef(t.guard.AccountID))
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ledgerstore.ErrAccountNotFound, t.guard.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", t.guard.AccountID, err)
	}
	return decodeAccount(snap)
}

func (t *fsTx) LedgerEntryForDay(start, end time.Time) (*models.LedgerEntry, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	iter := t.tx.Documents(t.store.dayQuery(t.guard.AccountID, start, end))
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger entry: %w", err)
	}
	var doc ledgerDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode ledger entry %s: %w", snap.Ref.ID, err)
	}
	return ledgerFromDoc(snap.Ref.ID, doc), nil
}

func (t *fsTx) MovementLog() (*models.MovementLog, error) {
	if err := t.guard.BeforeRead(); err != nil {
		return nil, err
	}
	accountID := t.guard.AccountID
	snaps, err := t.tx.GetAll([]*firestore.DocumentRef{t.store.movementLogRef(accountID)})
	if err != nil {
		return nil, fmt.Errorf("read movement log %s: %w", accountID, err)
	}
	if !snaps[0].Exists() {
		return &models.MovementLog{AccountID: accountID, Items: []models.Movement{}}, nil
	}
	var doc movementLogDoc
	if err := snaps[0].DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode movement log %s: %w", accountID, err)
	}
	return movementLogFromDoc(accountID, doc), nil
}

func (t *fsTx) PutAccount(a *models.Account) error {
	if err := ledgerstore.ValidateAccount(a); err != nil {
		return err
	}
	if err := t.guard.BeforeWrite(a.ID); err != nil {
		return err
	}
	return t.tx.Set(t.store.accountRef(a.ID), accountToDoc(a))
}

func (t *fsTx) PutLedgerEntry(e *models.LedgerEntry) error {
	if err := t.guard.CheckLedgerEntry(e); err != nil {
		return err
	}
	id := e.ID
	if id == "" {
		id = ledgerstore.LedgerEntryID(e.AccountID, e.Day)
	}
	return t.tx.Set(t.store.historyRef(e.AccountID).Doc(id), ledgerToDoc(e))
}

func (t *fsTx) PutMovementLog(log *models.MovementLog) error {
	if log == nil {
		return errors.New("movement log is nil")
	}
	if err := t.guard.BeforeWrite(log.AccountID); err != nil {
		return err
	}
	return t.tx.Set(t.store.movementLogRef(log.AccountID), movementLogToDoc(log))
}

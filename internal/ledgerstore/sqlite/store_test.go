package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

func openTestStore(t *testing.T, maxAttempts int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"), maxAttempts, logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, id string, balance string) {
	t.Helper()
	require.NoError(t, s.SaveAccount(context.Background(), &models.Account{
		ID:       id,
		Name:     "Account " + id,
		Kind:     models.AccountKindBank,
		Currency: "CHF",
		Balance:  decimal.RequireFromString(balance),
	}))
}

func TestSaveAndGetAccount(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 10, 30, 0, 123000000, time.UTC)

	require.NoError(t, s.SaveAccount(ctx, &models.Account{
		ID:             "visa",
		Name:           "Visa 1234",
		Kind:           models.AccountKindDebt,
		Type:           "credit_card",
		Currency:       "CHF",
		Balance:        decimal.RequireFromString("1234.56"),
		LastUpdated:    updated,
		CardIdentifier: "1234",
	}))

	a, err := s.GetAccount(ctx, "visa")
	require.NoError(t, err)
	assert.Equal(t, "Visa 1234", a.Name)
	assert.Equal(t, models.AccountKindDebt, a.Kind)
	assert.Equal(t, "credit_card", a.Type)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(a.Balance))
	assert.True(t, updated.Equal(a.LastUpdated))
	assert.Equal(t, "1234", a.CardIdentifier)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ledgerstore.ErrAccountNotFound)

	assert.Error(t, s.SaveAccount(ctx, &models.Account{ID: "x", Name: "x", Kind: "loan"}))
}

func TestListAccounts(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	for _, a := range []models.Account{
		{ID: "3", Name: "Savings", Kind: models.AccountKindBank},
		{ID: "1", Name: "House", Kind: models.AccountKindAsset},
		{ID: "2", Name: "Mortgage", Kind: models.AccountKindDebt},
	} {
		a := a
		require.NoError(t, s.SaveAccount(ctx, &a))
	}

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, []string{"House", "Mortgage", "Savings"}, []string{accounts[0].Name, accounts[1].Name, accounts[2].Name})
	assert.False(t, accounts[0].HasLastUpdated())
}

func TestRunInTransaction_CommitsAllWrites(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	seedAccount(t, s, "acc", "100")

	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	ts := day.Add(9 * time.Hour)

	err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		a, err := tx.Account()
		require.NoError(t, err)
		entry, err := tx.LedgerEntryForDay(day, day.Add(24*time.Hour-time.Nanosecond))
		require.NoError(t, err)
		assert.Nil(t, entry)
		log, err := tx.MovementLog()
		require.NoError(t, err)
		assert.Empty(t, log.Items)

		a.Balance = decimal.RequireFromString("145")
		a.LastUpdated = ts
		require.NoError(t, tx.PutAccount(a))
		require.NoError(t, tx.PutLedgerEntry(&models.LedgerEntry{
			AccountID:    "acc",
			Day:          "2024-05-02",
			Balance:      a.Balance,
			Timestamp:    ts,
			Source:       models.SourceEmail,
			IsAutoImport: true,
		}))
		log.Items = append(log.Items, models.Movement{
			TransactionID: "msg-1",
			Amount:        decimal.RequireFromString("-45"),
			Description:   "Card payment - COOP",
			Timestamp:     ts,
		})
		return tx.PutMovementLog(log)
	})
	require.NoError(t, err)

	a, err := s.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(145).Equal(a.Balance))

	entries, err := s.LedgerEntries(ctx, "acc", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acc_2024-05-02", entries[0].ID)
	assert.True(t, entries[0].IsAutoImport)
	assert.Equal(t, models.SourceEmail, entries[0].Source)
	assert.True(t, ts.Equal(entries[0].Timestamp))

	log, err := s.MovementLog(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, log.Items, 1)
	assert.Equal(t, "msg-1", log.Items[0].TransactionID)
	assert.True(t, decimal.NewFromInt(-45).Equal(log.Items[0].Amount))
}

func TestRunInTransaction_LedgerEntryOverwrite(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	seedAccount(t, s, "acc", "0")
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	end := day.Add(24*time.Hour - time.Nanosecond)

	write := func(value string, at time.Time) {
		err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
			existing, err := tx.LedgerEntryForDay(day, end)
			if err != nil {
				return err
			}
			entry := &models.LedgerEntry{AccountID: "acc", Day: "2024-05-02", Balance: decimal.RequireFromString(value), Timestamp: at}
			if existing != nil {
				entry.ID = existing.ID
			}
			return tx.PutLedgerEntry(entry)
		})
		require.NoError(t, err)
	}

	write("10", day.Add(time.Hour))
	write("20", day.Add(2*time.Hour))

	entries, err := s.LedgerEntries(ctx, "acc", day, end)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(entries[0].Balance))
}

func TestRunInTransaction_SameDayDifferentID(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	seedAccount(t, s, "acc", "0")
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	end := day.Add(24*time.Hour - time.Nanosecond)

	tests := []struct {
		id    string
		value string
		at    time.Time
	}{
		{"acc_legacy", "10", day.Add(23 * time.Hour)},
		{ledgerstore.LedgerEntryID("acc", "2024-05-02"), "20", day.Add(time.Hour)},
	}
	for _, tt := range tests {
		err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
			if _, err := tx.LedgerEntryForDay(day, day.Add(time.Hour)); err != nil {
				return err
			}
			return tx.PutLedgerEntry(&models.LedgerEntry{
				ID: tt.id, AccountID: "acc", Day: "2024-05-02", Balance: decimal.RequireFromString(tt.value), Timestamp: tt.at,
			})
		})
		require.NoError(t, err, tt.id)
	}

	entries, err := s.LedgerEntries(ctx, "acc", day, end)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acc_legacy", entries[0].ID)
	assert.True(t, decimal.NewFromInt(20).Equal(entries[0].Balance))
	assert.True(t, day.Add(time.Hour).Equal(entries[0].Timestamp))
}

func TestRunInTransaction_ReadAfterWrite(t *testing.T) {
	s := openTestStore(t, 0)
	seedAccount(t, s, "acc", "0")

	err := s.RunInTransaction(context.Background(), "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		a, err := tx.Account()
		if err != nil {
			return err
		}
		if err := tx.PutAccount(a); err != nil {
			return err
		}
		_, err = tx.MovementLog()
		return err
	})
	assert.ErrorIs(t, err, ledgerstore.ErrReadAfterWrite)
}

func TestRunInTransaction_ForeignAccount(t *testing.T) {
	s := openTestStore(t, 0)
	seedAccount(t, s, "acc", "0")
	seedAccount(t, s, "other", "0")

	err := s.RunInTransaction(context.Background(), "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		return tx.PutMovementLog(&models.MovementLog{AccountID: "other"})
	})
	assert.ErrorIs(t, err, ledgerstore.ErrForeignAccount)
}

func TestRunInTransaction_MissingAccount(t *testing.T) {
	s := openTestStore(t, 0)

	err := s.RunInTransaction(context.Background(), "ghost", func(ctx context.Context, tx ledgerstore.Tx) error {
		_, err := tx.Account()
		return err
	})
	assert.ErrorIs(t, err, ledgerstore.ErrAccountNotFound)
}

func TestRunInTransaction_RetriesOnConflict(t *testing.T) {
	s := openTestStore(t, 5)
	ctx := context.Background()
	seedAccount(t, s, "acc", "100")

	attempts := 0
	err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		attempts++
		a, err := tx.Account()
		if err != nil {
			return err
		}
		if attempts == 1 {
			// a concurrent writer commits between our read and our commit
			concurrent := *a
			concurrent.Balance = decimal.NewFromInt(500)
			require.NoError(t, s.SaveAccount(ctx, &concurrent))
		}
		a.Balance = a.Balance.Add(decimal.NewFromInt(1))
		return tx.PutAccount(a)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	a, err := s.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(501).Equal(a.Balance))
}

func TestRunInTransaction_ConflictOnUnwrittenRead(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()
	seedAccount(t, s, "acc", "100")

	attempts := 0
	err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		attempts++
		if _, err := tx.Account(); err != nil {
			return err
		}
		log, err := tx.MovementLog()
		if err != nil {
			return err
		}
		if attempts == 1 {
			require.NoError(t, s.SaveAccount(ctx, &models.Account{ID: "acc", Name: "renamed", Kind: models.AccountKindBank}))
		}
		// only the log is written; the account read must still be current
		return tx.PutMovementLog(log)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunInTransaction_Exhausted(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()
	seedAccount(t, s, "acc", "100")

	attempts := 0
	err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		attempts++
		a, err := tx.Account()
		if err != nil {
			return err
		}
		bump := *a
		require.NoError(t, s.SaveAccount(ctx, &bump))
		return tx.PutAccount(a)
	})
	assert.ErrorIs(t, err, ledgerstore.ErrTransactionConflict)
	assert.Equal(t, 3, attempts)
}

func TestRunInTransaction_FuncErrorNotRetried(t *testing.T) {
	s := openTestStore(t, 5)
	seedAccount(t, s, "acc", "100")
	boom := errors.New("boom")

	attempts := 0
	err := s.RunInTransaction(context.Background(), "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestRunInTransaction_CanceledContext(t *testing.T) {
	s := openTestStore(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunInTransaction(ctx, "acc", func(ctx context.Context, tx ledgerstore.Tx) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMovementLog_Empty(t *testing.T) {
	s := openTestStore(t, 0)
	log, err := s.MovementLog(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, "acc", log.AccountID)
	assert.Empty(t, log.Items)
}

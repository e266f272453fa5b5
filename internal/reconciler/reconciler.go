// Package reconciler applies balance changes to accounts. Every call runs
// in one store transaction scoped to the account: the account, the
// day-bucket ledger entry and the movement log are read first, then
// written together.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/dateutils"
	"fjacquet/networth-sync/internal/dedup"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
)

// Outcome of ApplyDelta.
type Outcome int

const (
	// Applied means the balance, ledger entry and movement log were written.
	Applied Outcome = iota + 1
	// Skipped means the transaction id was already in the movement log and
	// nothing was written.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// DeltaRequest is one detected transaction to add to an account.
type DeltaRequest struct {
	AccountID     string
	TransactionID string
	// Delta is added to the current balance as is.
	Delta       decimal.Decimal
	Direction   models.Direction
	Description string
	Currency    string
	Category    string
	Timestamp   time.Time
	Source      string
}

// Result of ApplyDelta. Balance is the account balance after the call.
type Result struct {
	Outcome Outcome
	Balance decimal.Decimal
}

// ObservationResult of ApplyObservation.
type ObservationResult struct {
	Day string `json:"day"`
	// Value is the recorded reading, rounded to cents.
	Value             decimal.Decimal `json:"value"`
	ProjectionUpdated bool            `json:"projectionUpdated"`
	// Balance is the account balance after the call.
	Balance decimal.Decimal `json:"balance"`
}

type observationConfig struct {
	projection bool
}

// ObservationOption tunes ApplyObservation.
type ObservationOption func(*observationConfig)

// WithoutProjection only upserts the ledger entry and never touches the
// account's current amount.
func WithoutProjection() ObservationOption {
	return func(c *observationConfig) { c.projection = false }
}

// Reconciler applies deltas and observations to accounts.
type Reconciler struct {
	store  ledgerstore.Store
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time
}

// New creates a Reconciler. loc defines calendar days for ledger entries.
func New(store ledgerstore.Store, loc *time.Location, logger logging.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Reconciler{store: store, loc: loc, logger: logger, now: time.Now}
}

// SignedDelta turns a notification amount into the delta for an account:
// an expense grows a debt and shrinks a bank or asset balance, income does
// the opposite.
func SignedDelta(kind models.AccountKind, direction models.Direction, amount decimal.Decimal) decimal.Decimal {
	magnitude := amount.Abs()
	grows := kind == models.AccountKindDebt
	if direction == models.DirectionIncome {
		grows = !grows
	}
	if grows {
		return magnitude
	}
	return magnitude.Neg()
}

// MovementAmount is the signed movement log amount: negative for money
// leaving the account.
func MovementAmount(direction models.Direction, delta decimal.Decimal) decimal.Decimal {
	if direction == models.DirectionIncome {
		return delta.Abs()
	}
	return delta.Abs().Neg()
}

// ApplyDelta adds req.Delta to the account balance unless the transaction
// id was already applied. A missing account is ledgerstore.ErrAccountNotFound
// and is never created.
func (r *Reconciler) ApplyDelta(ctx context.Context, req DeltaRequest) (Result, error) {
	if req.AccountID == "" || req.TransactionID == "" {
		return Result{}, errors.New("account id and transaction id are required")
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	source := req.Source
	if source == "" {
		source = models.SourceEmail
	}
	start, end := dateutils.StartOfDay(ts, r.loc), dateutils.EndOfDay(ts, r.loc)
	day := dateutils.DayKey(ts, r.loc)

	var result Result
	err := r.store.RunInTransaction(ctx, req.AccountID, func(ctx context.Context, tx ledgerstore.Tx) error {
		result = Result{}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		existing, err := tx.LedgerEntryForDay(start, end)
		if err != nil {
			return err
		}
		log, err := tx.MovementLog()
		if err != nil {
			return err
		}

		if dedup.HasApplied(log, req.TransactionID) {
			result = Result{Outcome: Skipped, Balance: account.Balance}
			return nil
		}

		newBalance := currencyutils.Round2(account.Balance.Add(req.Delta))
		account.Balance = newBalance
		if ts.After(account.LastUpdated) {
			account.LastUpdated = ts
		}
		if err := tx.PutAccount(account); err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			ID:           ledgerstore.LedgerEntryID(req.AccountID, day),
			AccountID:    req.AccountID,
			Day:          day,
			Balance:      newBalance,
			Timestamp:    ts,
			Source:       source,
			IsAutoImport: true,
		}
		if existing != nil {
			entry.ID = existing.ID
		}
		if err := tx.PutLedgerEntry(entry); err != nil {
			return err
		}

		currency := req.Currency
		if currency == "" {
			currency = account.Currency
		}
		dedup.RecordApplied(log, models.Movement{
			TransactionID: req.TransactionID,
			Amount:        currencyutils.Round2(MovementAmount(req.Direction, req.Delta)),
			Currency:      currency,
			Description:   req.Description,
			Timestamp:     ts,
			Category:      req.Category,
		})
		if err := tx.PutMovementLog(log); err != nil {
			return err
		}

		result = Result{Outcome: Applied, Balance: newBalance}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply delta %s to %s: %w", req.TransactionID, req.AccountID, err)
	}

	r.logger.WithFields(
		logging.Field{Key: logging.FieldAccountID, Value: req.AccountID},
		logging.Field{Key: logging.FieldTransactionID, Value: req.TransactionID},
		logging.Field{Key: logging.FieldOutcome, Value: result.Outcome.String()},
		logging.Field{Key: logging.FieldBalance, Value: result.Balance.String()},
		logging.Field{Key: logging.FieldDay, Value: day},
	).Info("Delta reconciled")

	return result, nil
}

// ApplyObservation records an absolute reading: the ledger entry of the
// observation's day is overwritten, and the account's current amount is
// replaced only when the observation is strictly newer than LastUpdated.
func (r *Reconciler) ApplyObservation(ctx context.Context, obs models.Observation, opts ...ObservationOption) (ObservationResult, error) {
	cfg := observationConfig{projection: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if obs.AccountID == "" {
		return ObservationResult{}, errors.New("account id is required")
	}
	if obs.Timestamp.IsZero() {
		return ObservationResult{}, errors.New("observation timestamp is required")
	}
	source := obs.Source
	if source == "" {
		source = models.SourceManual
	}

	value := currencyutils.Round2(obs.Value)
	start, end := dateutils.StartOfDay(obs.Timestamp, r.loc), dateutils.EndOfDay(obs.Timestamp, r.loc)
	day := dateutils.DayKey(obs.Timestamp, r.loc)

	var result ObservationResult
	err := r.store.RunInTransaction(ctx, obs.AccountID, func(ctx context.Context, tx ledgerstore.Tx) error {
		result = ObservationResult{Day: day, Value: value}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		existing, err := tx.LedgerEntryForDay(start, end)
		if err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			ID:           ledgerstore.LedgerEntryID(obs.AccountID, day),
			AccountID:    obs.AccountID,
			Day:          day,
			Balance:      value,
			Timestamp:    obs.Timestamp,
			Source:       source,
			IsAutoImport: source != models.SourceManual,
		}
		if existing != nil {
			entry.ID = existing.ID
		}
		if err := tx.PutLedgerEntry(entry); err != nil {
			return err
		}

		result.Balance = account.Balance
		if cfg.projection && (!account.HasLastUpdated() || obs.Timestamp.After(account.LastUpdated)) {
			account.Balance = value
			account.LastUpdated = obs.Timestamp
			if err := tx.PutAccount(account); err != nil {
				return err
			}
			result.ProjectionUpdated = true
			result.Balance = value
		}
		return nil
	})
	if err != nil {
		return ObservationResult{}, fmt.Errorf("apply observation to %s for %s: %w", obs.AccountID, day, err)
	}

	r.logger.WithFields(
		logging.Field{Key: logging.FieldAccountID, Value: obs.AccountID},
		logging.Field{Key: logging.FieldDay, Value: day},
		logging.Field{Key: "projection_updated", Value: result.ProjectionUpdated},
		logging.Field{Key: logging.FieldBalance, Value: result.Balance.String()},
	).Debug("Observation reconciled")

	return result, nil
}

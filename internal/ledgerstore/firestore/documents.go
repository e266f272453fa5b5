package firestore

import (
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/models"
)

const (
	collectionAccounts     = "accounts"
	collectionHistory      = "history"
	collectionMovementLogs = "movementLogs"
)

// accountDoc stores the current amount under "balance" for bank and debt
// accounts and under "value" for assets.
type accountDoc struct {
	Name           string    `firestore:"name"`
	Kind           string    `firestore:"kind"`
	Type           string    `firestore:"type,omitempty"`
	Currency       string    `firestore:"currency,omitempty"`
	Balance        *float64  `firestore:"balance,omitempty"`
	Value          *float64  `firestore:"value,omitempty"`
	LastUpdated    time.Time `firestore:"lastUpdated,omitempty"`
	CardIdentifier string    `firestore:"cardIdentifier,omitempty"`
}

type ledgerDoc struct {
	AccountID    string    `firestore:"accountId"`
	Day          string    `firestore:"day"`
	Balance      float64   `firestore:"balance"`
	Timestamp    time.Time `firestore:"timestamp"`
	Source       string    `firestore:"source,omitempty"`
	IsAutoImport bool      `firestore:"isAutoImport"`
}

type movementDoc struct {
	TransactionID string    `firestore:"transactionId"`
	Amount        float64   `firestore:"amount"`
	Currency      string    `firestore:"currency,omitempty"`
	Description   string    `firestore:"description"`
	Timestamp     time.Time `firestore:"timestamp"`
	Category      string    `firestore:"category,omitempty"`
}

type movementLogDoc struct {
	Items []movementDoc `firestore:"items"`
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := currencyutils.Round2(d).Float64()
	return f
}

func fromFloat(f float64) decimal.Decimal {
	return currencyutils.Round2(decimal.NewFromFloat(f))
}

func accountToDoc(a *models.Account) accountDoc {
	amount := toFloat(a.Balance)
	doc := accountDoc{
		Name:           a.Name,
		Kind:           string(a.Kind),
		Type:           a.Type,
		Currency:       a.Currency,
		LastUpdated:    a.LastUpdated,
		CardIdentifier: a.CardIdentifier,
	}
	if a.Kind == models.AccountKindAsset {
		doc.Value = &amount
	} else {
		doc.Balance = &amount
	}
	return doc
}

func accountFromDoc(id string, doc accountDoc) *models.Account {
	a := &models.Account{
		ID:             id,
		Name:           doc.Name,
		Kind:           models.AccountKind(doc.Kind),
		Type:           doc.Type,
		Currency:       doc.Currency,
		LastUpdated:    doc.LastUpdated,
		CardIdentifier: doc.CardIdentifier,
	}
	switch {
	case a.Kind == models.AccountKindAsset && doc.Value != nil:
		a.Balance = fromFloat(*doc.Value)
	case doc.Balance != nil:
		a.Balance = fromFloat(*doc.Balance)
	case doc.Value != nil:
		a.Balance = fromFloat(*doc.Value)
	}
	return a
}

func ledgerToDoc(e *models.LedgerEntry) ledgerDoc {
	return ledgerDoc{
		AccountID:    e.AccountID,
		Day:          e.Day,
		Balance:      toFloat(e.Balance),
		Timestamp:    e.Timestamp,
		Source:       e.Source,
		IsAutoImport: e.IsAutoImport,
	}
}

func ledgerFromDoc(id string, doc ledgerDoc) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:           id,
		AccountID:    doc.AccountID,
		Day:          doc.Day,
		Balance:      fromFloat(doc.Balance),
		Timestamp:    doc.Timestamp,
		Source:       doc.Source,
		IsAutoImport: doc.IsAutoImport,
	}
}

func movementLogToDoc(log *models.MovementLog) movementLogDoc {
	doc := movementLogDoc{Items: make([]movementDoc, 0, len(log.Items))}
	for _, m := range log.Items {
		doc.Items = append(doc.Items, movementDoc{
			TransactionID: m.TransactionID,
			Amount:        toFloat(m.Amount),
			Currency:      m.Currency,
			Description:   m.Description,
			Timestamp:     m.Timestamp,
			Category:      m.Category,
		})
	}
	return doc
}

func movementLogFromDoc(accountID string, doc movementLogDoc) *models.MovementLog {
	log := &models.MovementLog{AccountID: accountID, Items: make([]models.Movement, 0, len(doc.Items))}
	for _, m := range doc.Items {
		log.Items = append(log.Items, models.Movement{
			TransactionID: m.TransactionID,
			Amount:        fromFloat(m.Amount),
			Currency:      m.Currency,
			Description:   m.Description,
			Timestamp:     m.Timestamp,
			Category:      m.Category,
		})
	}
	return log
}

// Package dedup keeps the bounded per-account movement log used to reject
// transactions that were already applied.
package dedup

import (
	"sort"

	"fjacquet/networth-sync/internal/models"
)

// HasApplied reports whether transactionID is already in the log.
func HasApplied(log *models.MovementLog, transactionID string) bool {
	if log == nil || transactionID == "" {
		return false
	}
	for _, m := range log.Items {
		if m.TransactionID == transactionID {
			return true
		}
	}
	return false
}

// RecordApplied prepends m, re-sorts newest first and evicts the oldest
// entries beyond models.MovementLogCapacity. It must run in the same store
// transaction as the balance change it records.
func RecordApplied(log *models.MovementLog, m models.Movement) {
	items := make([]models.Movement, 0, len(log.Items)+1)
	items = append(items, m)
	for _, existing := range log.Items {
		if existing.TransactionID != m.TransactionID {
			items = append(items, existing)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})

	if len(items) > models.MovementLogCapacity {
		items = items[:models.MovementLogCapacity]
	}
	log.Items = items
}

package csvimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"fjacquet/networth-sync/internal/dateutils"
	"fjacquet/networth-sync/internal/models"
)

// ExportDelimiter separates exported columns. Amounts use ',' as decimal
// separator, so ';' keeps cells unquoted.
const ExportDelimiter = ';'

// HistoryReader reads ledger entries for a day range.
type HistoryReader interface {
	LedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error)
}

// historyRow is one exported ledger day. The date and value columns read
// back through Import unchanged.
type historyRow struct {
	Date       string `csv:"date"`
	Value      string `csv:"value"`
	Source     string `csv:"source"`
	AutoImport bool   `csv:"auto_import"`
}

// ExportHistory writes the ledger entries of accountID between from and to,
// inclusive, oldest first. It returns the number of rows written.
func ExportHistory(ctx context.Context, reader HistoryReader, accountID string, from, to time.Time, w io.Writer) (int, error) {
	entries, err := reader.LedgerEntries(ctx, accountID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger history: %w", err)
	}

	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		day, err := time.Parse(dateutils.DateLayoutISO, e.Day)
		if err != nil {
			return 0, fmt.Errorf("ledger entry %s has an invalid day %q: %w", e.ID, e.Day, err)
		}
		rows = append(rows, historyRow{
			Date:       dateutils.FormatDate(day, dateutils.DateLayoutLocalized),
			Value:      strings.Replace(e.Balance.StringFixed(2), ".", ",", 1),
			Source:     e.Source,
			AutoImport: e.IsAutoImport,
		})
	}

	cw := csv.NewWriter(w)
	cw.Comma = ExportDelimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return 0, fmt.Errorf("error writing CSV data: %w", err)
	}
	return len(rows), nil
}

// Package csvimport loads files of dated balance observations into one
// account. Rows merge by calendar day and only the newest row of the whole
// file may move the account's current value.
package csvimport

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/dateutils"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/parsererror"
	"fjacquet/networth-sync/internal/reconciler"
)

// Observer applies observations; *reconciler.Reconciler satisfies it.
type Observer interface {
	ApplyObservation(ctx context.Context, obs models.Observation, opts ...reconciler.ObservationOption) (reconciler.ObservationResult, error)
}

// Result reports one import.
type Result struct {
	Imported          int                    `json:"imported"`
	Dropped           []parsererror.RowError `json:"dropped,omitempty"`
	Latest            *models.Observation    `json:"latest,omitempty"`
	ProjectionUpdated bool                   `json:"projectionUpdated"`
	Message           string                 `json:"message"`
}

// Importer turns CSV files into observations.
type Importer struct {
	observer Observer
	loc      *time.Location
	logger   logging.Logger
}

// NewImporter creates an Importer. Dates are read as calendar days in loc.
func NewImporter(observer Observer, loc *time.Location, logger logging.Logger) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Importer{observer: observer, loc: loc, logger: logger}
}

type parsedRow struct {
	line  int
	date  time.Time
	value decimal.Decimal
}

// Import reads r and applies its rows to accountID. source names the input
// in messages. When no row is usable a *parsererror.NoValidRecordsError is
// returned and nothing is written.
func (im *Importer) Import(ctx context.Context, accountID, source string, r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", source, err)
	}

	raw, delimiter, err := readRows(source, data)
	if err != nil {
		return Result{}, err
	}
	logger := im.logger.WithFields(
		logging.Field{Key: logging.FieldAccountID, Value: accountID},
		logging.Field{Key: "source", Value: source},
		logging.Field{Key: logging.FieldDelimiter, Value: string(delimiter)},
	)

	var result Result
	rows := make([]parsedRow, 0, len(raw))
	for i, row := range raw {
		line := i + 2
		date, err := dateutils.ParseLocalizedDate(row.Date, im.loc)
		if err != nil {
			result.Dropped = append(result.Dropped, im.drop(logger, line, err))
			continue
		}
		value, err := currencyutils.ParseLocalizedAmount(row.Value)
		if err != nil {
			result.Dropped = append(result.Dropped, im.drop(logger, line, err))
			continue
		}
		rows = append(rows, parsedRow{line: line, date: date, value: currencyutils.Round2(value)})
	}

	if len(rows) == 0 {
		return result, &parsererror.NoValidRecordsError{
			Source:          source,
			ExpectedColumns: ExpectedColumns,
			ExpectedFormat:  ExpectedFormat,
			Dropped:         result.Dropped,
		}
	}

	rows = collapseDays(rows, im.loc)
	latest := rows[len(rows)-1]

	for _, row := range rows[:len(rows)-1] {
		if _, err := im.observer.ApplyObservation(ctx, observation(accountID, row), reconciler.WithoutProjection()); err != nil {
			result.Message = fmt.Sprintf("Imported %d of %d rows before failing", result.Imported, len(rows))
			return result, fmt.Errorf("import %s line %d: %w", source, row.line, err)
		}
		result.Imported++
	}

	obs := observation(accountID, latest)
	res, err := im.observer.ApplyObservation(ctx, obs)
	if err != nil {
		result.Message = fmt.Sprintf("Imported %d of %d rows before failing", result.Imported, len(rows))
		return result, fmt.Errorf("import %s line %d: %w", source, latest.line, err)
	}
	result.Imported++
	result.Latest = &obs
	result.ProjectionUpdated = res.ProjectionUpdated
	result.Message = resultMessage(result)

	logger.WithFields(
		logging.Field{Key: logging.FieldCount, Value: result.Imported},
		logging.Field{Key: "dropped", Value: len(result.Dropped)},
		logging.Field{Key: "projection_updated", Value: result.ProjectionUpdated},
	).Info("CSV import finished")
	return result, nil
}

func (im *Importer) drop(logger logging.Logger, line int, err error) parsererror.RowError {
	logger.WithError(err).WithField(logging.FieldRow, line).Warn("Dropping CSV row")
	return parsererror.RowError{Row: line, Reason: err.Error()}
}

// collapseDays sorts rows by date, keeping file order for equal dates, and
// keeps the last row of each calendar day.
func collapseDays(rows []parsedRow, loc *time.Location) []parsedRow {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	out := rows[:0]
	for _, row := range rows {
		if n := len(out); n > 0 && dateutils.DayKey(out[n-1].date, loc) == dateutils.DayKey(row.date, loc) {
			out[n-1] = row
			continue
		}
		out = append(out, row)
	}
	return out
}

func observation(accountID string, row parsedRow) models.Observation {
	return models.Observation{
		AccountID: accountID,
		Value:     row.value,
		Timestamp: row.date,
		Source:    models.SourceCSV,
	}
}

func resultMessage(r Result) string {
	msg := fmt.Sprintf("Imported %d day(s)", r.Imported)
	if n := len(r.Dropped); n > 0 {
		msg += fmt.Sprintf(", dropped %d invalid row(s)", n)
	}
	if r.Latest != nil {
		if r.ProjectionUpdated {
			msg += fmt.Sprintf("; current value set to %s from %s", r.Latest.Value.StringFixed(2), r.Latest.Timestamp.Format(dateutils.DateLayoutISO))
		} else {
			msg += "; current value kept, a newer reading already exists"
		}
	}
	return msg
}

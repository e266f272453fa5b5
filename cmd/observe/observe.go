// Package observe implements the command that records one balance reading.
package observe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/common"
	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/dateutils"
	"fjacquet/networth-sync/internal/models"
)

var (
	accountID string
	value     string
	date      string
	source    string
)

// Cmd represents the observe command
var Cmd = &cobra.Command{
	Use:   "observe",
	Short: "Record an absolute balance for an account",
	Long: `Record the balance of an account as read from a statement or a bank app.
Without --date the reading is taken now and always replaces the current value
unless a newer reading exists.`,
	RunE: observeFunc,
}

func init() {
	Cmd.Flags().StringVarP(&accountID, "account", "a", "", "Account ID")
	Cmd.Flags().StringVarP(&value, "value", "v", "", "Balance, e.g. 1234.56 or 1.234,56")
	Cmd.Flags().StringVarP(&date, "date", "t", "", "Day of the reading as DD/MM/YYYY (default: now)")
	Cmd.Flags().StringVarP(&source, "source", "s", models.SourceManual, "Source recorded on the ledger entry")
	_ = Cmd.MarkFlagRequired("account")
	_ = Cmd.MarkFlagRequired("value")
}

func observeFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := root.NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	obs, err := BuildObservation(accountID, value, date, source, c.GetLocation(), time.Now())
	if err != nil {
		return err
	}
	return Run(ctx, c, cmd.OutOrStdout(), obs)
}

// ParseValue accepts a plain decimal ("-1234.56") or the localized form
// used by bank exports ("1.234,56").
func ParseValue(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, ",") {
		if d, err := decimal.NewFromString(text); err == nil {
			return d, nil
		}
	}
	return currencyutils.ParseLocalizedAmount(text)
}

// BuildObservation turns command-line input into an observation. A date
// places the reading at the start of that day in loc.
func BuildObservation(accountID, value, date, source string, loc *time.Location, now time.Time) (models.Observation, error) {
	v, err := ParseValue(value)
	if err != nil {
		return models.Observation{}, fmt.Errorf("invalid value %q: %w", value, err)
	}

	ts := now
	if date != "" {
		ts, err = dateutils.ParseLocalizedDate(date, loc)
		if err != nil {
			return models.Observation{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
	}
	if source == "" {
		source = models.SourceManual
	}
	return models.Observation{AccountID: accountID, Value: v, Timestamp: ts, Source: source}, nil
}

// Run applies obs and prints the outcome.
func Run(ctx context.Context, c *container.Container, w io.Writer, obs models.Observation) error {
	res, err := c.GetReconciler().ApplyObservation(ctx, obs)
	if err != nil {
		return err
	}
	currency := ""
	if account, err := c.GetLedger().GetAccount(ctx, obs.AccountID); err == nil {
		currency = account.Currency
	}
	common.PrintObservation(w, obs.AccountID, currency, res)
	return nil
}

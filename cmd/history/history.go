// Package history implements the command that exports an account's daily
// ledger and shows its recent movements.
package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/common"
	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/csvimport"
	"fjacquet/networth-sync/internal/dateutils"
	"fjacquet/networth-sync/internal/models"
)

// Options selects what to export.
type Options struct {
	AccountID string
	From      string
	To        string
	Output    string
	Movements bool
}

var opts Options

// Cmd represents the history command
var Cmd = &cobra.Command{
	Use:   "history",
	Short: "Export the daily balance history of an account as CSV",
	Long: `Write one CSV row per ledger day (date;value;source;auto_import). The
file can be imported back with the import command. With --movements the
most recent transactions detected for the account are listed instead.`,
	RunE: historyFunc,
}

func init() {
	Cmd.Flags().StringVarP(&opts.AccountID, "account", "a", "", "Account ID")
	Cmd.Flags().StringVar(&opts.From, "from", "", "First day as DD/MM/YYYY (default: all history)")
	Cmd.Flags().StringVar(&opts.To, "to", "", "Last day as DD/MM/YYYY (default: today)")
	Cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file (default: stdout)")
	Cmd.Flags().BoolVarP(&opts.Movements, "movements", "m", false, "List recent movements instead of the ledger")
	_ = Cmd.MarkFlagRequired("account")
}

func historyFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := root.NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return Run(ctx, c, cmd.OutOrStdout(), opts, time.Now())
}

// Range resolves the inclusive export window in loc.
func Range(from, to string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	start := time.Unix(0, 0).In(loc)
	end := dateutils.EndOfDay(now, loc)
	if from != "" {
		d, err := dateutils.ParseLocalizedDate(from, loc)
		if err != nil {
			return start, end, fmt.Errorf("invalid --from: %w", err)
		}
		start = d
	}
	if to != "" {
		d, err := dateutils.ParseLocalizedDate(to, loc)
		if err != nil {
			return start, end, fmt.Errorf("invalid --to: %w", err)
		}
		end = dateutils.EndOfDay(d, loc)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}

// Run writes the export to opts.Output, or to w when no file is given.
func Run(ctx context.Context, c *container.Container, w io.Writer, opts Options, now time.Time) error {
	store := c.GetLedger()
	if _, err := store.GetAccount(ctx, opts.AccountID); err != nil {
		return err
	}

	if opts.Movements {
		log, err := store.MovementLog(ctx, opts.AccountID)
		if err != nil {
			return fmt.Errorf("failed to read movements: %w", err)
		}
		common.PrintMovements(w, log)
		return nil
	}

	start, end, err := Range(opts.From, opts.To, c.GetLocation(), now)
	if err != nil {
		return err
	}

	out := w
	if opts.Output != "" {
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, models.PermissionConfigFile)
		if err != nil {
			return fmt.Errorf("error creating CSV file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	n, err := csvimport.ExportHistory(ctx, store, opts.AccountID, start, end, out)
	if err != nil {
		return err
	}
	if opts.Output != "" {
		common.Success(w, fmt.Sprintf("wrote %d day(s) to %s", n, opts.Output))
	}
	return nil
}

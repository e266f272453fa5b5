// Package common contains shared output helpers for command handlers
package common

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"fjacquet/networth-sync/internal/csvimport"
	"fjacquet/networth-sync/internal/currencyutils"
	"fjacquet/networth-sync/internal/ingest"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/reconciler"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// Success prints a success line.
func Success(w io.Writer, text string) {
	green.Fprintf(w, "  → %s\n", text)
}

// Info prints a neutral line.
func Info(w io.Writer, text string) {
	fmt.Fprintf(w, "  → %s\n", text)
}

// Warning prints a warning line.
func Warning(w io.Writer, text string) {
	yellow.Fprintf(w, "  ⚠ %s\n", text)
}

// Error prints an error line.
func Error(w io.Writer, text string) {
	red.Fprintf(w, "Error: %s\n", text)
}

// PrintSummary reports an ingestion pass.
func PrintSummary(w io.Writer, s ingest.Summary) {
	bold.Fprintf(w, "Pass %s\n", s.PassID)
	Success(w, fmt.Sprintf("applied: %d", s.Applied))
	Info(w, fmt.Sprintf("duplicates skipped: %d", s.Skipped))
	Info(w, fmt.Sprintf("no match: %d", s.NoMatch))
	if s.Failed > 0 {
		Warning(w, fmt.Sprintf("failed: %d", s.Failed))
	}
	if s.RulesSkipped > 0 {
		Warning(w, fmt.Sprintf("rules skipped: %d", s.RulesSkipped))
	}
	if s.TimedOut {
		Warning(w, "pass stopped early on timeout")
	}
	Info(w, s.Message)
}

// PrintImport reports a CSV import.
func PrintImport(w io.Writer, r csvimport.Result) {
	Success(w, r.Message)
	for _, d := range r.Dropped {
		Warning(w, d.Error())
	}
}

// PrintObservation reports a single balance reading.
func PrintObservation(w io.Writer, accountID, currency string, r reconciler.ObservationResult) {
	recorded := currencyutils.FormatAmount(r.Value, currency)
	if r.ProjectionUpdated {
		Success(w, fmt.Sprintf("%s: %s recorded for %s, current value updated", accountID, recorded, r.Day))
		return
	}
	Info(w, fmt.Sprintf("%s: %s recorded for %s, a newer reading already exists (current value %s)",
		accountID, recorded, r.Day, currencyutils.FormatAmount(r.Balance, currency)))
}

// PrintAccounts lists accounts as an aligned table.
func PrintAccounts(w io.Writer, accounts []models.Account) {
	if len(accounts) == 0 {
		Info(w, "no accounts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"ID", "NAME", "KIND", "BALANCE", "CARD", "UPDATED"}, "\t"))
	for _, a := range accounts {
		updated := "-"
		if a.HasLastUpdated() {
			updated = a.LastUpdated.Format("2006-01-02 15:04")
		}
		card := a.CardIdentifier
		if card == "" {
			card = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Name, a.Kind, currencyutils.FormatAmount(a.Balance, a.Currency), card, updated)
	}
	_ = tw.Flush()
}

// PrintMovements lists a movement log, newest first.
func PrintMovements(w io.Writer, log *models.MovementLog) {
	if log == nil || len(log.Items) == 0 {
		Info(w, "no movements")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"WHEN", "AMOUNT", "CATEGORY", "DESCRIPTION"}, "\t"))
	for _, m := range log.Items {
		category := m.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			m.Timestamp.Format("2006-01-02 15:04"), m.Amount.StringFixed(2), category, m.Description)
	}
	_ = tw.Flush()
}

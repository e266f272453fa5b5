// Package sync implements the command that runs one ingestion pass.
package sync

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/common"
	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/mailsource"
)

// Cmd represents the sync command
var Cmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one ingestion pass over the mailbox",
	Long: `Search the mailbox with every extraction rule, reconcile each detected
transaction into its account and mark handled messages as read.`,
	RunE: syncFunc,
}

func syncFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := root.NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return Run(ctx, c, cmd.OutOrStdout())
}

// Run executes a pass and prints its summary. The summary is printed even
// when the pass fails so that the applied count is never lost.
func Run(ctx context.Context, c *container.Container, w io.Writer) error {
	orch, err := c.Orchestrator(ctx)
	if err != nil {
		return err
	}

	summary, err := orch.RunPass(ctx)
	common.PrintSummary(w, summary)
	if err != nil {
		if mailsource.IsAuthError(err) {
			common.Error(w, "mail source authentication failed, refresh the OAuth token")
		}
		return fmt.Errorf("ingestion pass failed: %w", err)
	}
	return nil
}

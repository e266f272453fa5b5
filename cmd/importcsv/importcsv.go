// Package importcsv implements the command that loads balance history
// from a CSV export.
package importcsv

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/common"
	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
)

var (
	accountID string
	filePath  string
)

// Cmd represents the import command
var Cmd = &cobra.Command{
	Use:   "import",
	Short: "Import balance history for an account from a CSV file",
	Long: `Import a CSV file with date and value columns (DD/MM/YYYY, amounts like
1.234,56) into an account's ledger. Invalid rows are reported and skipped;
the most recent row becomes the current value unless a newer reading exists.`,
	RunE: importFunc,
}

func init() {
	Cmd.Flags().StringVarP(&accountID, "account", "a", "", "Account ID to import into")
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", "CSV file to import")
	_ = Cmd.MarkFlagRequired("account")
	_ = Cmd.MarkFlagRequired("file")
}

func importFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := root.NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return Run(ctx, c, cmd.OutOrStdout(), accountID, filePath)
}

// Run imports path into accountID.
func Run(ctx context.Context, c *container.Container, w io.Writer, accountID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	res, err := c.GetImporter().Import(ctx, accountID, filepath.Base(path), f)
	if err != nil {
		if res.Imported > 0 {
			common.Warning(w, res.Message)
		}
		return err
	}
	common.PrintImport(w, res)
	return nil
}

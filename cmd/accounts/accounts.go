// Package accounts implements the commands that list and create accounts
// and bind notification cards to them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/common"
	"fjacquet/networth-sync/cmd/observe"
	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/models"
)

// AddOptions describes a new account.
type AddOptions struct {
	ID       string
	Name     string
	Kind     string
	Type     string
	Currency string
	Balance  string
	Card     string
}

var addOpts AddOptions

// Cmd represents the accounts command
var Cmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage tracked accounts",
	Long:  `List accounts, create new ones and bind notification cards to them.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their current value",
	Args:  cobra.NoArgs,
	RunE: withContainer(func(ctx context.Context, c *container.Container, w io.Writer, _ []string) error {
		return List(ctx, c, w)
	}),
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: withContainer(func(ctx context.Context, c *container.Container, w io.Writer, _ []string) error {
		return Add(ctx, c, w, addOpts)
	}),
}

var linkCardCmd = &cobra.Command{
	Use:   "link-card <card> <account-id>",
	Short: "Route notifications for a card to an account",
	Long: `Record in the rules file that notifications for <card> belong to
<account-id>. The mapping takes precedence over account card identifiers.`,
	Args: cobra.ExactArgs(2),
	RunE: withContainer(func(ctx context.Context, c *container.Container, w io.Writer, args []string) error {
		return LinkCard(ctx, c, w, args[0], args[1])
	}),
}

func init() {
	addCmd.Flags().StringVar(&addOpts.ID, "id", "", "Account ID")
	addCmd.Flags().StringVarP(&addOpts.Name, "name", "n", "", "Display name")
	addCmd.Flags().StringVarP(&addOpts.Kind, "kind", "k", string(models.AccountKindBank), "bank, debt or asset")
	addCmd.Flags().StringVar(&addOpts.Type, "type", "", "Free-form account type, e.g. checking or credit-card")
	addCmd.Flags().StringVar(&addOpts.Currency, "currency", "CHF", "Currency code")
	addCmd.Flags().StringVarP(&addOpts.Balance, "balance", "b", "0", "Opening balance")
	addCmd.Flags().StringVar(&addOpts.Card, "card", "", "Card identifier found in notifications")
	_ = addCmd.MarkFlagRequired("id")
	_ = addCmd.MarkFlagRequired("name")

	Cmd.AddCommand(listCmd, addCmd, linkCardCmd)
}

type containerFunc func(ctx context.Context, c *container.Container, w io.Writer, args []string) error

func withContainer(fn containerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := root.NewContainer(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return fn(ctx, c, cmd.OutOrStdout(), args)
	}
}

// List prints every account.
func List(ctx context.Context, c *container.Container, w io.Writer) error {
	accounts, err := c.GetLedger().ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	common.PrintAccounts(w, accounts)
	return nil
}

// Add creates an account. Existing ids are rejected so that a typo never
// overwrites a balance.
func Add(ctx context.Context, c *container.Container, w io.Writer, opts AddOptions) error {
	kind, err := models.ParseAccountKind(opts.Kind)
	if err != nil {
		return err
	}
	balance, err := observe.ParseValue(opts.Balance)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", opts.Balance, err)
	}

	store := c.GetLedger()
	if _, err := store.GetAccount(ctx, opts.ID); err == nil {
		return fmt.Errorf("account %s already exists", opts.ID)
	} else if !errors.Is(err, ledgerstore.ErrAccountNotFound) {
		return err
	}

	account := &models.Account{
		ID:             opts.ID,
		Name:           opts.Name,
		Kind:           kind,
		Type:           opts.Type,
		Currency:       strings.ToUpper(opts.Currency),
		Balance:        balance,
		CardIdentifier: strings.TrimSpace(opts.Card),
	}
	if err := store.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	common.Success(w, fmt.Sprintf("created %s account %s (%s)", kind, account.ID, account.Name))
	return nil
}

// LinkCard binds card to an existing account in the rules file.
func LinkCard(ctx context.Context, c *container.Container, w io.Writer, card, accountID string) error {
	if _, err := c.GetLedger().GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := c.GetConfigStore().SaveCardMapping(card, accountID); err != nil {
		return err
	}
	common.Success(w, fmt.Sprintf("card %s now routes to %s", strings.TrimSpace(card), accountID))
	return nil
}

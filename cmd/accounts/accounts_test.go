package accounts_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/networth-sync/cmd/accounts"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/store"
)

const rules = `rules:
  - name: visa
    card: "1234"
    query: "Visa 1234"
    amount_pattern: 'CHF\s*([\d.,]+)'
    label: Card payment
`

func TestAccountsCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range accounts.Cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["add"])
	assert.True(t, names["link-card"])
}

func TestAdd(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	c := container.NewTestContainer(t, container.WriteTestConfig(t, ""))

	tests := []struct {
		name    string
		opts    accounts.AddOptions
		wantErr string
	}{
		{
			name: "debt account with card",
			opts: accounts.AddOptions{ID: "visa", Name: "Visa", Kind: "Debt", Currency: "chf", Balance: "1.200,00", Card: " 1234 "},
		},
		{
			name:    "duplicate id",
			opts:    accounts.AddOptions{ID: "visa", Name: "Other", Kind: "bank", Balance: "0"},
			wantErr: "already exists",
		},
		{
			name:    "unknown kind",
			opts:    accounts.AddOptions{ID: "x", Name: "X", Kind: "pension", Balance: "0"},
			wantErr: "pension",
		},
		{
			name:    "bad balance",
			opts:    accounts.AddOptions{ID: "y", Name: "Y", Kind: "bank", Balance: "lots"},
			wantErr: "invalid balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := accounts.Add(ctx, c, &out, tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), "created debt account visa")
		})
	}

	acc, err := c.GetLedger().GetAccount(ctx, "visa")
	require.NoError(t, err)
	assert.Equal(t, models.AccountKindDebt, acc.Kind)
	assert.Equal(t, "CHF", acc.Currency)
	assert.Equal(t, "1234", acc.CardIdentifier)
	assert.True(t, decimal.NewFromInt(1200).Equal(acc.Balance))
	assert.Equal(t, "Visa", acc.Name)
}

func TestList(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	c := container.NewTestContainer(t, container.WriteTestConfig(t, ""))

	var out bytes.Buffer
	require.NoError(t, accounts.List(ctx, c, &out))
	assert.Contains(t, out.String(), "no accounts")

	require.NoError(t, accounts.Add(ctx, c, &out, accounts.AddOptions{ID: "bank", Name: "Checking", Kind: "bank", Currency: "CHF", Balance: "10"}))
	out.Reset()
	require.NoError(t, accounts.List(ctx, c, &out))
	assert.Contains(t, out.String(), "Checking")
	assert.Contains(t, out.String(), "10.00")
}

func TestLinkCard(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	cfg := container.WriteTestConfig(t, rules)
	c := container.NewTestContainer(t, cfg)
	require.NoError(t, c.GetLedger().SaveAccount(ctx, &models.Account{ID: "visa", Name: "Visa", Kind: models.AccountKindDebt}))

	var out bytes.Buffer
	require.NoError(t, accounts.LinkCard(ctx, c, &out, "1234", "visa"))
	assert.Contains(t, out.String(), "card 1234 now routes to visa")

	saved, err := store.NewConfigStore(cfg.Ingest.RulesFile, "").LoadRules()
	require.NoError(t, err)
	assert.Equal(t, "visa", saved.Cards["1234"])
	assert.Len(t, saved.Rules, 1)

	err = accounts.LinkCard(ctx, c, &out, "9999", "ghost")
	assert.True(t, errors.Is(err, ledgerstore.ErrAccountNotFound), "got %v", err)
}

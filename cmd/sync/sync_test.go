package sync_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpass "fjacquet/networth-sync/cmd/sync"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/mailsource"
	"fjacquet/networth-sync/internal/models"
)

const rules = `rules:
  - name: visa
    card: "1234"
    query: "Visa 1234"
    amount_pattern: 'CHF\s*([\d.,]+)'
    label: Card payment
`

func TestSyncCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sync", syncpass.Cmd.Use)
	assert.Contains(t, syncpass.Cmd.Short, "ingestion pass")
	assert.NotNil(t, syncpass.Cmd.RunE)
}

func TestRun(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()

	t.Run("applies and prints the summary", func(t *testing.T) {
		source := mailsource.NewFakeSource(mailsource.TextMessage("m1", "Visa 1234 CHF 20,00"))
		c := container.NewTestContainer(t, container.WriteTestConfig(t, rules), container.WithMailSource(source))
		require.NoError(t, c.GetLedger().SaveAccount(ctx, &models.Account{
			ID: "visa", Name: "Visa", Kind: models.AccountKindDebt, CardIdentifier: "1234", Balance: decimal.Zero,
		}))

		var out bytes.Buffer
		require.NoError(t, syncpass.Run(ctx, c, &out))
		assert.Contains(t, out.String(), "applied: 1")
	})

	t.Run("auth failure still prints the summary", func(t *testing.T) {
		source := mailsource.NewFakeSource()
		source.SearchError = &mailsource.SourceAuthError{Op: "search", Err: errors.New("401 unauthorized")}
		c := container.NewTestContainer(t, container.WriteTestConfig(t, rules), container.WithMailSource(source))
		require.NoError(t, c.GetLedger().SaveAccount(ctx, &models.Account{
			ID: "visa", Name: "Visa", Kind: models.AccountKindDebt, CardIdentifier: "1234",
		}))

		var out bytes.Buffer
		err := syncpass.Run(ctx, c, &out)
		require.Error(t, err)
		assert.True(t, mailsource.IsAuthError(err))
		assert.Contains(t, out.String(), "applied: 0")
		assert.Contains(t, out.String(), "refresh the OAuth token")
	})

	t.Run("missing rules", func(t *testing.T) {
		c := container.NewTestContainer(t, container.WriteTestConfig(t, ""), container.WithMailSource(mailsource.NewFakeSource()))
		var out bytes.Buffer
		require.Error(t, syncpass.Run(ctx, c, &out))
	})
}

package observe_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/networth-sync/cmd/observe"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/models"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1234.56", want: "1234.56"},
		{in: "-20", want: "-20"},
		{in: "1.234,56", want: "1234.56"},
		{in: "1234,5", want: "1234.5"},
		{in: " 42 ", want: "42"},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := observe.ParseValue(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestBuildObservation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to now and manual", func(t *testing.T) {
		obs, err := observe.BuildObservation("bank", "10", "", "", loc, now)
		require.NoError(t, err)
		assert.Equal(t, now, obs.Timestamp)
		assert.Equal(t, models.SourceManual, obs.Source)
	})

	t.Run("date is midnight in the ledger timezone", func(t *testing.T) {
		obs, err := observe.BuildObservation("bank", "10", "01/06/2024", "refresh", loc, now)
		require.NoError(t, err)
		assert.True(t, time.Date(2024, 6, 1, 0, 0, 0, 0, loc).Equal(obs.Timestamp))
		assert.Equal(t, "refresh", obs.Source)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := observe.BuildObservation("bank", "ten", "", "", loc, now)
		assert.ErrorContains(t, err, "invalid value")

		_, err = observe.BuildObservation("bank", "10", "2024-06-01", "", loc, now)
		assert.ErrorContains(t, err, "invalid date")
	})
}

func TestRun(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	c := container.NewTestContainer(t, container.WriteTestConfig(t, ""))
	require.NoError(t, c.GetLedger().SaveAccount(ctx, &models.Account{
		ID: "broker", Name: "Broker", Kind: models.AccountKindAsset, Currency: "CHF",
	}))

	var out bytes.Buffer
	obs := models.Observation{AccountID: "broker", Value: decimal.NewFromInt(5000), Timestamp: time.Now(), Source: models.SourceManual}
	require.NoError(t, observe.Run(ctx, c, &out, obs))
	assert.Contains(t, out.String(), "broker: CHF 5000.00 recorded")

	out.Reset()
	older := models.Observation{AccountID: "broker", Value: decimal.NewFromInt(4200), Timestamp: time.Now().AddDate(0, 0, -3), Source: models.SourceManual}
	require.NoError(t, observe.Run(ctx, c, &out, older))
	assert.Contains(t, out.String(), "broker: CHF 4200.00 recorded")
	assert.Contains(t, out.String(), "current value CHF 5000.00")

	acc, err := c.GetLedger().GetAccount(ctx, "broker")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5000).Equal(acc.Balance))

	obs.AccountID = "missing"
	err = observe.Run(ctx, c, &out, obs)
	assert.True(t, errors.Is(err, ledgerstore.ErrAccountNotFound), "got %v", err)
}

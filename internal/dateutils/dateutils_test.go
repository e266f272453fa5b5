package dateutils

import (
	"errors"
	"testing"
	"time"

	"fjacquet/networth-sync/internal/parsererror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalizedDate(t *testing.T) {
	tests := []struct {
		input string
		year  int
		month time.Month
		day   int
	}{
		{"15/01/2024", 2024, time.January, 15},
		{"01/12/1999", 1999, time.December, 1},
		{"29/02/2024", 2024, time.February, 29},
		{"5/3/2023", 2023, time.March, 5},
		{"  31/12/2023 ", 2023, time.December, 31},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLocalizedDate(tt.input, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.year, got.Year())
			assert.Equal(t, tt.month, got.Month())
			assert.Equal(t, tt.day, got.Day())
			assert.Equal(t, 0, got.Hour())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseLocalizedDate_Invalid(t *testing.T) {
	tests := []string{
		"",
		"2024-01-15",
		"15.01.2024",
		"15/01",
		"15/01/2024/1",
		"aa/01/2024",
		"15/xx/2024",
		"15/01/20a4",
		"-1/01/2024",
		"32/01/2024",
		"31/02/2024",
		"29/02/2023",
		"00/01/2024",
		"15/13/2024",
		"15/00/2024",
		"15//2024",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLocalizedDate(input, time.UTC)
			require.Error(t, err)
			var pe *parsererror.ParseError
			assert.True(t, errors.As(err, &pe))
			assert.Equal(t, input, pe.Value)
		})
	}
}

func TestParseLocalizedDate_Location(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	got, err := ParseLocalizedDate("01/07/2024", zurich)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC), got.UTC())
}

func TestDayBoundaries(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	// 23:30 UTC on Jan 14 is already Jan 15 in Zurich.
	instant := time.Date(2024, 1, 14, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-15", DayKey(instant, zurich))
	assert.Equal(t, "2024-01-14", DayKey(instant, time.UTC))

	start := StartOfDay(instant, zurich)
	end := EndOfDay(instant, zurich)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, zurich), start)
	assert.True(t, end.After(instant))
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, zurich), end.Add(time.Nanosecond))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", FormatDate(d, ""))
	assert.Equal(t, "09/03/2024", FormatDate(d, DateLayoutLocalized))
}

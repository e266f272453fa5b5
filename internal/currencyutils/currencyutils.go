// Package currencyutils provides the amount parsing and rounding rules for
// money values.
package currencyutils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/parsererror"
)

// ParseLocalizedAmount parses amounts written with '.' as thousands
// separator and ',' as decimal separator ("1.234,56"). Plain "1234,56" and
// "1234" are accepted as well.
func ParseLocalizedAmount(text string) (decimal.Decimal, error) {
	normalized := strings.TrimSpace(text)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")

	if normalized == "" {
		return decimal.Zero, &parsererror.ParseError{
			Parser: "amount",
			Field:  "amount",
			Value:  text,
			Err:    errors.New("empty amount"),
		}
	}

	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, &parsererror.ParseError{
			Parser: "amount",
			Field:  "amount",
			Value:  text,
			Err:    err,
		}
	}
	return amount, nil
}

// Round2 rounds to cents. Every additive balance result goes through it.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// FormatAmount formats a decimal amount with two decimal places and the
// currency symbol or code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	formattedAmount := amount.StringFixed(2)

	if currency != "" {
		switch strings.ToUpper(currency) {
		case "EUR":
			return "€" + formattedAmount
		case "USD":
			return "$" + formattedAmount
		case "GBP":
			return "£" + formattedAmount
		case "CHF":
			return "CHF " + formattedAmount
		default:
			return currency + " " + formattedAmount
		}
	}

	return formattedAmount
}

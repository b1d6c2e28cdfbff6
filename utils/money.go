package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"BRL": "R$",
}

// FormatMoney renders an amount with two decimals, e.g. "$110.00" or "110.00 CHF"
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + amount.StringFixed(2)
	}
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + currency
}

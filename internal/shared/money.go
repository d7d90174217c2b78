package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary value with thousands separators for audit
// descriptions and staff notifications, e.g. "GHS 1,250.00".
func FormatAmount(currency string, amount float64) string {
	if currency == "" {
		currency = "GHS"
	}
	return moneyPrinter.Sprintf("%s %.2f", currency, amount)
}

package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is used when an account has no currency configured.
const DefaultCurrency = "USD"

// NormaliseCurrency returns the canonical ISO 4217 code. Codes unknown to the
// CLDR tables are returned trimmed and uppercased so they still render literally.
func NormaliseCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code
	}
	return unit.String()
}

// FormatAmount renders v with two decimals and thousands grouping. The digits
// come from the decimal itself so large amounts keep every cent.
func FormatAmount(v decimal.Decimal) string {
	fixed := v.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Format renders v prefixed with its currency code, e.g. "USD 1,250.00".
func Format(v decimal.Decimal, code string) string {
	return NormaliseCurrency(code) + " " + FormatAmount(v)
}

// FormatQuantity trims trailing zeros from a quantity.
func FormatQuantity(v decimal.Decimal) string {
	return v.Round(4).String()
}

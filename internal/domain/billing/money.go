package billing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Epsilon is the tolerance used when comparing stored totals with the
// arithmetic that should have produced them.
var Epsilon = decimal.New(1, -2)

// Round2 rounds an amount to cents
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// approxEqual reports whether |a - b| < Epsilon
func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

func sum[T any](items []T, amount func(T) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(amount(it))
	}
	return total
}

// Formatter renders a decimal magnitude for display. The engine only
// produces magnitudes; callers supply the currency presentation.
type Formatter func(decimal.Decimal) string

// PlainFormatter prints the amount with two decimals and no grouping
func PlainFormatter(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NewFormatter returns a locale-aware formatter with thousands grouping,
// e.g. NewFormatter("LKR", language.English)(1234.5) == "LKR 1,234.50".
func NewFormatter(currency string, tag language.Tag) Formatter {
	p := message.NewPrinter(tag)
	return func(d decimal.Decimal) string {
		f, _ := d.Round(2).Float64()
		if currency == "" {
			return p.Sprintf("%.2f", f)
		}
		return p.Sprintf("%s %.2f", currency, f)
	}
}

// ParseFormatterLanguage resolves a BCP 47 tag for NewFormatter, falling
// back to English.
func ParseFormatterLanguage(tag string) language.Tag {
	t, err := language.Parse(tag)
	if err != nil {
		return language.English
	}
	return t
}

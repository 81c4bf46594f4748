package alerting

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD renders a dollar amount with two decimals and thousands separators.
func FormatUSD(v float64) string {
	d := finite(v).Round(2)
	s := addCommas(d.Abs().StringFixed(2))
	if d.Sign() < 0 {
		return "-$" + s
	}
	return "$" + s
}

// FormatPercent renders a percentage value with two decimals.
func FormatPercent(v float64) string {
	return finite(v).StringFixed(2) + "%"
}

func finite(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func addCommas(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n := len(intPart)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// minGroupingDigits mirrors the Swedish number convention: four digit amounts are not grouped.
const minGroupingDigits = 2

// FormatPrice rounds amount to a whole number and groups thousands with a plain space.
// NaN, infinities and zero all render as "0".
// Example: FormatPrice(1499.95) => "1500", FormatPrice(24999) => "24 999"
func FormatPrice(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount == 0 {
		return "0"
	}
	rounded := int64(math.Round(amount))
	if rounded == 0 {
		return "0"
	}
	return groupThousands(rounded)
}

// FormatOptionalPrice treats a missing amount like zero.
func FormatOptionalPrice(amount *float64) string {
	if amount == nil {
		return "0"
	}
	return FormatPrice(*amount)
}

// FormatCurrency renders "<amount> <ISO code>". Native symbols ("kr", "£") are never used.
func FormatCurrency(amount float64, code string) string {
	return FormatPrice(amount) + " " + normalizeCode(code)
}

// FormatPriceRange renders a single price when min equals max, otherwise "min – max CODE".
func FormatPriceRange(min, max float64, code string) string {
	if FormatPrice(min) == FormatPrice(max) || max < min {
		return FormatCurrency(min, code)
	}
	return FormatPrice(min) + " – " + FormatCurrency(max, code)
}

func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return code
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if len(s) < 4+minGroupingDigits-1 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a monetary amount as written by Brazilian and US exports.
//
// Accepted shapes include 1234.56, 1.234,56, 1,234.56, 1234,56, with an
// optional R$ or $ symbol, inner spaces and a leading sign. The rightmost
// '.' or ',' followed by one or two digits is the decimal separator; every
// other separator is a thousands separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	s = strings.NewReplacer("R$", "", "r$", "", "$", "", " ", "", "\u00a0", "").Replace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s'", raw)
	}

	integer, fraction := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		tail := s[i+1:]
		if len(tail) >= 1 && len(tail) <= 2 && isDigits(tail) {
			integer, fraction = s[:i], tail
		}
	}
	integer = strings.NewReplacer(".", "", ",", "").Replace(integer)
	if integer == "" {
		integer = "0"
	}
	if !isDigits(integer) {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s'", raw)
	}

	normalized := integer
	if fraction != "" {
		normalized += "." + fraction
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatBRL renders an amount the way alert messages show it: "R$ 1234.56"
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

// PercentDifference returns |a-b| / max(a,b) * 100, or zero when both amounts are zero
func PercentDifference(a, b decimal.Decimal) decimal.Decimal {
	larger := decimal.Max(a.Abs(), b.Abs())
	if larger.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(larger).Mul(decimal.NewFromInt(100))
}

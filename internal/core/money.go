// Package core provides the domain value types and money parsing utilities
// shared by the forecast engine and the application layers.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-supplied decimal string to a positive amount
// rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half away from zero on the third decimal place. Signs are not
// allowed: rule amounts are magnitudes, the sign comes from the rule kind.
// Returns ErrInvalidAmount for empty, signed, non-numeric, or zero input.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSignedAmount converts a user-supplied decimal string to an amount
// rounded to cents. Unlike ParseAmount it allows zero and a leading minus,
// since observed and start balances can sit in overdraft.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// RoundCents rounds a value to 2 decimal places, half away from zero.
// Every value stored in a simulation point goes through this.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

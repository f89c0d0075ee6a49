// Package core provides money parsing and handling utilities.
//
// This file contains the fixed-point Money type. Amounts are integer cents
// end to end: construction, arithmetic, storage and display never go through
// a floating point value.
package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const currencySymbol = "$"

// maxDollars is the largest dollar amount whose cent value fits in an int64.
const maxDollars = math.MaxInt64 / 100

var (
	ErrMalformedAmount = errors.New("malformed amount")
	ErrOverflow        = errors.New("money overflow")
)

// Money is a signed amount of cents. Positive values are credit, negative
// values are debt.
type Money struct {
	cents int64
}

// ParseError reports a money string that does not have the form
// [+-][$]<dollars>[.<cents>].
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("money amount not of form x.xx or x: %q", e.Input)
}

// Is lets errors.Is match ErrMalformedAmount.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedAmount
}

// FromCents returns the exact amount of cents.
func FromCents(cents int64) Money {
	return Money{cents: cents}
}

// FromDollars returns d whole dollars. Like the arithmetic methods it wraps
// on int64 overflow.
func FromDollars(d int64) Money {
	return Money{cents: d * 100}
}

// Zero returns the zero amount.
func Zero() Money {
	return Money{}
}

// Cents returns the amount as integer cents.
func (m Money) Cents() int64 {
	return m.cents
}

// ParseMoney parses strings such as "12", "$12", "12.5", "-$12.50" or
// "+$30.00".
//
// The fractional part is a decimal fraction of a dollar: one digit means
// tenths ("3.5" is 350 cents) and two digits mean cents. Three or more
// fractional digits, a second decimal point, an empty integer or fractional
// part, or any non-digit character are rejected with a *ParseError.
func ParseMoney(s string) (Money, error) {
	malformed := &ParseError{Input: s}

	str := strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(str, "-") || strings.HasPrefix(str, "+") {
		negative = str[0] == '-'
		str = str[1:]
	}
	str = strings.TrimPrefix(str, currencySymbol)

	parts := strings.Split(str, ".")
	if len(parts) > 2 {
		return Money{}, malformed
	}
	if !isDigits(parts[0]) {
		return Money{}, malformed
	}
	dollars, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || dollars > maxDollars {
		return Money{}, malformed
	}

	var cents int64
	if len(parts) == 2 {
		frac := parts[1]
		if !isDigits(frac) || len(frac) > 2 {
			return Money{}, malformed
		}
		if len(frac) == 1 {
			frac += "0"
		}
		// two digits always fit
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}

	total, err := FromDollars(dollars).AddChecked(FromCents(cents))
	if err != nil {
		return Money{}, malformed
	}
	if negative {
		total = total.Neg()
	}
	return total, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Add returns m+o, wrapping on overflow.
func (m Money) Add(o Money) Money {
	return Money{cents: m.cents + o.cents}
}

// Sub returns m-o, wrapping on overflow.
func (m Money) Sub(o Money) Money {
	return Money{cents: m.cents - o.cents}
}

// Neg returns -m. The negation of the most negative int64 wraps to itself.
func (m Money) Neg() Money {
	return Money{cents: -m.cents}
}

// AddChecked returns m+o or ErrOverflow.
func (m Money) AddChecked(o Money) (Money, error) {
	sum := m.cents + o.cents
	if (o.cents > 0 && sum < m.cents) || (o.cents < 0 && sum > m.cents) {
		return Money{}, ErrOverflow
	}
	return Money{cents: sum}, nil
}

// SubChecked returns m-o or ErrOverflow.
func (m Money) SubChecked(o Money) (Money, error) {
	diff := m.cents - o.cents
	if (o.cents > 0 && diff > m.cents) || (o.cents < 0 && diff < m.cents) {
		return Money{}, ErrOverflow
	}
	return Money{cents: diff}, nil
}

// Cmp returns -1, 0 or +1 depending on whether m is less than, equal to or
// greater than o.
func (m Money) Cmp(o Money) int {
	switch {
	case m.cents < o.cents:
		return -1
	case m.cents > o.cents:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.cents == 0 }
func (m Money) IsPositive() bool { return m.cents > 0 }
func (m Money) IsNegative() bool { return m.cents < 0 }

// Validate checks that m can be used as a transaction magnitude.
func (m Money) Validate() error {
	if m.cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// String formats m as "+$12.50", "-$3.07" or "$0.00".
func (m Money) String() string {
	sign := ""
	switch {
	case m.cents > 0:
		sign = "+"
	case m.cents < 0:
		sign = "-"
	}
	abs := uint64(m.cents)
	if m.cents < 0 {
		abs = uint64(-m.cents)
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, currencySymbol, abs/100, abs%100)
}

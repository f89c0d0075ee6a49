package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyParty    = errors.New("empty party")
	ErrSelfDebt      = errors.New("creditor and debtor are the same user")
	ErrZeroTime      = errors.New("debt time cannot be zero")
)

type (
	// Debt records that Debtor owes Creditor Amount as of Time. A Debt is a
	// value; it is never modified once created.
	Debt struct {
		Creditor string    // party owed money
		Debtor   string    // party owing money
		Time     time.Time // ordering and uniqueness only
		Amount   Money
	}

	// UserBalance is a user's net position: positive when others owe the
	// user, negative when the user owes others.
	UserBalance struct {
		User    string
		Balance Money
	}
)

func NewDebt(creditor, debtor string, at time.Time, amount Money) Debt {
	return Debt{
		Creditor: creditor,
		Debtor:   debtor,
		Time:     at,
		Amount:   amount,
	}
}

// Negate returns the mirror of d: the same obligation seen from the other
// party, with creditor and debtor swapped and the amount negated.
func (d Debt) Negate() Debt {
	return Debt{
		Creditor: d.Debtor,
		Debtor:   d.Creditor,
		Time:     d.Time,
		Amount:   d.Amount.Neg(),
	}
}

// Canonical returns d oriented so that the amount is not negative.
func (d Debt) Canonical() Debt {
	if d.Amount.IsNegative() {
		return d.Negate()
	}
	return d
}

// Equal reports whether d and o describe the same record. Times are compared
// with time.Time.Equal so location and monotonic readings are ignored.
func (d Debt) Equal(o Debt) bool {
	return d.Creditor == o.Creditor &&
		d.Debtor == o.Debtor &&
		d.Time.Equal(o.Time) &&
		d.Amount == o.Amount
}

// Validate checks the fields every stored record must have. The amount sign
// is not checked because mirror records carry negative amounts.
func (d Debt) Validate() error {
	if strings.TrimSpace(d.Creditor) == "" || strings.TrimSpace(d.Debtor) == "" {
		return ErrEmptyParty
	}
	if d.Creditor == d.Debtor {
		return ErrSelfDebt
	}
	if d.Time.IsZero() {
		return ErrZeroTime
	}
	return nil
}

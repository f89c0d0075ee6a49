package core

import (
	"testing"
	"time"
)

func TestDebtNegate(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	cases := []Debt{
		NewDebt("bob", "alice", at, FromCents(1250)),
		NewDebt("alice", "bob", at, FromCents(-1250)),
		NewDebt("x", "y", at, Zero()),
	}
	for i, d := range cases {
		n := d.Negate()
		if n.Creditor != d.Debtor || n.Debtor != d.Creditor {
			t.Fatalf("case %d: parties not swapped: %+v", i, n)
		}
		if !n.Time.Equal(d.Time) {
			t.Fatalf("case %d: time changed: %v", i, n.Time)
		}
		if n.Amount != d.Amount.Neg() {
			t.Fatalf("case %d: amount %v, want %v", i, n.Amount, d.Amount.Neg())
		}
		if !n.Negate().Equal(d) || n.Negate() != d {
			t.Fatalf("case %d: double negation changed the debt", i)
		}
	}
}

func TestDebtCanonical(t *testing.T) {
	at := time.Unix(0, 42).UTC()
	d := NewDebt("bob", "alice", at, FromCents(500))
	if !d.Canonical().Equal(d) {
		t.Fatalf("canonical of a positive debt should be itself")
	}
	if !d.Negate().Canonical().Equal(d) {
		t.Fatalf("canonical of the mirror should be the original")
	}
}

func TestDebtValidate(t *testing.T) {
	at := time.Unix(0, 1)
	good := NewDebt("bob", "alice", at, FromCents(-1))
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Debt{
		NewDebt("", "alice", at, FromCents(1)),
		NewDebt("bob", " ", at, FromCents(1)),
		NewDebt("bob", "bob", at, FromCents(1)),
		NewDebt("bob", "alice", time.Time{}, FromCents(1)),
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

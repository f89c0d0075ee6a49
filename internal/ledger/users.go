package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"owed/internal/core"
	"owed/internal/keys"
	"owed/internal/storage"
)

// User is an entry of the user registry.
type User struct {
	Name  string
	Since time.Time
}

// Summary lists every known user's balance. Total is the sum of all of them;
// a ledger made only of complete pairs always totals zero.
type Summary struct {
	Balances []core.UserBalance
	Total    core.Money
}

func (s Summary) Balanced() bool {
	return s.Total.IsZero()
}

// AddUser registers name. Registering an existing user is a no-op.
func (l *Ledger) AddUser(ctx context.Context, name string) error {
	if err := keys.ValidateUser(name); err != nil {
		return err
	}
	return l.store.Update(ctx, func(tx storage.Tx) error {
		return ensureUser(tx, name, l.clock.Now())
	})
}

// User returns the registry entry of name or ErrUnknownUser.
func (l *Ledger) User(ctx context.Context, name string) (User, error) {
	if err := keys.ValidateUser(name); err != nil {
		return User{}, err
	}
	key := keys.UserKey(name)
	b, err := l.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	if err != nil {
		return User{}, err
	}
	return decodeUser(key, b)
}

// Users returns the registry sorted by name.
func (l *Ledger) Users(ctx context.Context) ([]User, error) {
	start, end := keys.UsersRange()
	var out []User
	for kv, err := range l.store.Range(ctx, start, end) {
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		u, err := decodeUser(kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Summary computes every user's balance from a single scan of the debt
// records, so the balances are consistent with one another. Registered
// users without records are listed with a zero balance.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	users, err := l.Users(ctx)
	if err != nil {
		return Summary{}, err
	}
	balances := make(map[string]core.Money, len(users))
	for _, u := range users {
		balances[u.Name] = core.Zero()
	}

	start, end := keys.DebtsRange()
	for kv, err := range l.store.Range(ctx, start, end) {
		if err != nil {
			return Summary{}, fmt.Errorf("scan debts: %w", err)
		}
		e, err := decodeEntry(kv)
		if err != nil {
			return Summary{}, err
		}
		sum, err := balances[e.Debt.Creditor].AddChecked(e.Debt.Amount)
		if err != nil {
			return Summary{}, fmt.Errorf("balance of %s: %w", e.Debt.Creditor, err)
		}
		balances[e.Debt.Creditor] = sum
	}

	var s Summary
	for name, b := range balances {
		s.Balances = append(s.Balances, core.UserBalance{User: name, Balance: b})
	}
	slices.SortFunc(s.Balances, func(a, b core.UserBalance) int {
		return strings.Compare(a.User, b.User)
	})
	// summed in name order so an overflow does not depend on map order
	for _, ub := range s.Balances {
		if s.Total, err = s.Total.AddChecked(ub.Balance); err != nil {
			return Summary{}, fmt.Errorf("summary total: %w", err)
		}
	}
	return s, nil
}

func ensureUser(tx storage.Tx, name string, since time.Time) error {
	key := keys.UserKey(name)
	_, err := tx.Get(key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	b, err := encodeUser(since)
	if err != nil {
		return err
	}
	return tx.Set(key, b)
}

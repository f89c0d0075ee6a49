package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"owed/internal/cache"
	"owed/internal/core"
	"owed/internal/keys"
	"owed/internal/log"
	"owed/internal/storage"
)

// maxKeyAttempts bounds how often Record draws a new timestamp when the
// drawn key is already taken.
const maxKeyAttempts = 8

// Direction says which way a Submission's obligation runs.
type Direction int

const (
	// PartyOwes means Party owes Counterparty.
	PartyOwes Direction = iota + 1
	// PartyIsOwed means Counterparty owes Party.
	PartyIsOwed
)

func (d Direction) String() string {
	switch d {
	case PartyOwes:
		return "owes"
	case PartyIsOwed:
		return "is-owed-by"
	default:
		return "Direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// ParseDirection accepts the words used on the command line.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "owes":
		return PartyOwes, nil
	case "is-owed-by", "is_owed_by":
		return PartyIsOwed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Submission is a request to record one obligation between two users.
type Submission struct {
	Party        string
	Counterparty string
	Direction    Direction
	Amount       core.Money
}

// Validate checks the submission before anything is written.
func (s Submission) Validate() error {
	if err := keys.ValidateUser(s.Party); err != nil {
		return fmt.Errorf("party: %w", err)
	}
	if err := keys.ValidateUser(s.Counterparty); err != nil {
		return fmt.Errorf("counterparty: %w", err)
	}
	if s.Party == s.Counterparty {
		return core.ErrSelfDebt
	}
	if s.Direction != PartyOwes && s.Direction != PartyIsOwed {
		return ErrInvalidDirection
	}
	return s.Amount.Validate()
}

// parties returns the creditor and the debtor of the canonical record.
func (s Submission) parties() (creditor, debtor string) {
	if s.Direction == PartyOwes {
		return s.Counterparty, s.Party
	}
	return s.Party, s.Counterparty
}

// Ledger records debts as mirrored pairs and derives balances from them.
//
// Every debt is written twice in one store transaction: the canonical record
// under the creditor's prefix with a positive amount, and its negation under
// the debtor's prefix. Each record is therefore filed under its own Creditor
// field, and a user's balance is the sum of the amounts under their prefix.
type Ledger struct {
	store  storage.Store
	logger *log.Logger
	clock  *Clock

	balances   *cache.LRU[string, core.Money]
	flight     singleflight.Group
	generation atomic.Uint64
}

type Option func(*Ledger)

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger.WithComponent(log.ComponentLedger)
		}
	}
}

// WithClock replaces the wall clock used to timestamp new records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = NewClock(now)
	}
}

// WithBalanceCache memoizes balances. Entries are dropped on every write
// made through this Ledger and on Invalidate. size <= 0 disables the cache.
func WithBalanceCache(size int, ttl time.Duration) Option {
	return func(l *Ledger) {
		if size <= 0 {
			l.balances = nil
			return
		}
		l.balances = cache.NewLRU[string, core.Money](size, ttl)
	}
}

func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: log.FromSlog(slog.Default(), log.ComponentLedger),
		clock:  NewClock(time.Now),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BalanceCache returns the balance cache, or nil when caching is disabled.
func (l *Ledger) BalanceCache() *cache.LRU[string, core.Money] {
	return l.balances
}

// Invalidate drops every cached balance. Call it when another process may
// have written to the shared store.
func (l *Ledger) Invalidate() {
	l.generation.Add(1)
}

// Record writes the submission as a mirrored pair and returns the canonical
// entry. Both users are added to the registry in the same transaction.
func (l *Ledger) Record(ctx context.Context, s Submission) (Entry, error) {
	if err := s.Validate(); err != nil {
		return Entry{}, err
	}
	creditor, debtor := s.parties()

	var entry Entry
	err := l.store.Update(ctx, func(tx storage.Tx) error {
		for attempt := 0; attempt < maxKeyAttempts; attempt++ {
			canonical := core.NewDebt(creditor, debtor, l.clock.Now(), s.Amount)
			mirror := canonical.Negate()

			canonicalKey, err := keys.Encode(canonical.Creditor, canonical.Time)
			if err != nil {
				return err
			}
			mirrorKey, err := keys.Encode(mirror.Creditor, mirror.Time)
			if err != nil {
				return err
			}

			taken, err := anyExists(tx, canonicalKey, mirrorKey)
			if err != nil {
				return err
			}
			if taken {
				continue
			}

			if err := putDebt(tx, canonicalKey, canonical); err != nil {
				return err
			}
			if err := putDebt(tx, mirrorKey, mirror); err != nil {
				return err
			}
			if err := ensureUser(tx, creditor, canonical.Time); err != nil {
				return err
			}
			if err := ensureUser(tx, debtor, canonical.Time); err != nil {
				return err
			}
			entry = Entry{Key: string(canonicalKey), Debt: canonical}
			return nil
		}
		return ErrKeyCollision
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to record debt",
			log.NewFields().
				WithOperation(log.OpRecord).
				WithDebt(creditor, debtor, s.Amount.Cents(), 0).
				WithError(err).
				ToSlice()...)
		return Entry{}, fmt.Errorf("record debt: %w", err)
	}
	l.Invalidate()

	l.logger.InfoContext(ctx, "Debt recorded",
		log.NewFields().
			WithOperation(log.OpRecord).
			WithDebt(entry.Debt.Creditor, entry.Debt.Debtor, entry.Debt.Amount.Cents(), entry.Debt.Time.UnixNano()).
			ToSlice()...)
	return entry, nil
}

// Entries yields the records filed under user in chronological order. Each
// iteration runs a fresh scan. The first undecodable record ends the
// sequence with an *EncodingError.
func (l *Ledger) Entries(ctx context.Context, user string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if err := keys.ValidateUser(user); err != nil {
			yield(Entry{}, err)
			return
		}
		start, end := keys.UserRange(user)
		for kv, err := range l.store.Range(ctx, start, end) {
			if err != nil {
				yield(Entry{}, fmt.Errorf("scan %s: %w", user, err))
				return
			}
			e, err := decodeEntry(kv)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// History returns every record filed under user, oldest first.
func (l *Ledger) History(ctx context.Context, user string) ([]core.Debt, error) {
	var out []core.Debt
	for e, err := range l.Entries(ctx, user) {
		if err != nil {
			return nil, err
		}
		out = append(out, e.Debt)
	}
	return out, nil
}

// Balance returns the sum of the amounts filed under user. A user with no
// records has a zero balance.
func (l *Ledger) Balance(ctx context.Context, user string) (core.Money, error) {
	if l.balances == nil {
		return l.sumBalance(ctx, user)
	}

	key := user + "@" + strconv.FormatUint(l.generation.Load(), 10)
	if m, ok := l.balances.Get(key); ok {
		return m, nil
	}
	v, err, _ := l.flight.Do(key, func() (any, error) {
		m, err := l.sumBalance(ctx, user)
		if err != nil {
			return nil, err
		}
		l.balances.Set(key, m)
		return m, nil
	})
	if err != nil {
		return core.Money{}, err
	}
	return v.(core.Money), nil
}

func (l *Ledger) sumBalance(ctx context.Context, user string) (core.Money, error) {
	total := core.Zero()
	n := 0
	for e, err := range l.Entries(ctx, user) {
		if err != nil {
			return core.Money{}, fmt.Errorf("balance of %s: %w", user, err)
		}
		total, err = total.AddChecked(e.Debt.Amount)
		if err != nil {
			return core.Money{}, fmt.Errorf("balance of %s: %w", user, err)
		}
		n++
	}
	l.logger.DebugContext(ctx, "Balance computed",
		log.FieldOperation, log.OpBalance,
		log.FieldUser, user,
		log.FieldScanned, n,
		log.FieldBalance, total.Cents(),
	)
	return total, nil
}

func anyExists(tx storage.Tx, ks ...[]byte) (bool, error) {
	for _, k := range ks {
		_, err := tx.Get(k)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

func putDebt(tx storage.Tx, key []byte, d core.Debt) error {
	b, err := encodeDebt(d)
	if err != nil {
		return err
	}
	return tx.Set(key, b)
}

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"owed/internal/core"
	"owed/internal/keys"
	"owed/internal/log"
	"owed/internal/storage"
)

// PairStatus describes the state of one debt's two records.
type PairStatus int

const (
	PairComplete PairStatus = iota
	PairMissingCanonical
	PairMissingMirror
	PairMissing
	PairConflict
)

func (s PairStatus) String() string {
	switch s {
	case PairComplete:
		return "complete"
	case PairMissingCanonical:
		return "missing-canonical"
	case PairMissingMirror:
		return "missing-mirror"
	case PairMissing:
		return "missing"
	case PairConflict:
		return "conflict"
	default:
		return fmt.Sprintf("PairStatus(%d)", int(s))
	}
}

// Conflict is a record whose counterpart exists but is not its negation.
type Conflict struct {
	Entry  Entry
	Mirror Entry
}

// Report is the outcome of a Reconcile pass.
type Report struct {
	Scanned   int
	Orphans   []Entry // records whose counterpart is absent
	Conflicts []Conflict
	Healed    int
}

// Consistent reports whether the pass found nothing wrong.
func (r Report) Consistent() bool {
	return len(r.Orphans) == 0 && len(r.Conflicts) == 0
}

// Reconcile scans every debt record and checks that its counterpart exists
// and is its exact negation. With heal set, each orphan's missing half is
// written from the orphan. Conflicts are only reported.
func (l *Ledger) Reconcile(ctx context.Context, heal bool) (Report, error) {
	logger := l.logger.WithComponent(log.ComponentReconcile)

	var (
		report  Report
		entries []Entry
		index   = make(map[string]core.Debt)
	)
	start, end := keys.DebtsRange()
	for kv, err := range l.store.Range(ctx, start, end) {
		if err != nil {
			return report, fmt.Errorf("scan debts: %w", err)
		}
		e, err := decodeEntry(kv)
		if err != nil {
			return report, err
		}
		entries = append(entries, e)
		index[e.Key] = e.Debt
	}
	report.Scanned = len(entries)

	for _, e := range entries {
		counterKey, err := keys.Encode(e.Debt.Debtor, e.Debt.Time)
		if err != nil {
			return report, &EncodingError{Key: e.Key, Err: err}
		}
		counter, ok := index[string(counterKey)]
		if !ok {
			report.Orphans = append(report.Orphans, e)
			continue
		}
		// each conflicting pair is reported once, from its smaller key
		if !counter.Equal(e.Debt.Negate()) && bytes.Compare([]byte(e.Key), counterKey) < 0 {
			report.Conflicts = append(report.Conflicts, Conflict{
				Entry:  e,
				Mirror: Entry{Key: string(counterKey), Debt: counter},
			})
		}
	}

	if heal {
		for _, orphan := range report.Orphans {
			healed, err := l.healOrphan(ctx, orphan)
			if err != nil {
				return report, fmt.Errorf("heal %s: %w", orphan.Key, err)
			}
			if healed {
				report.Healed++
			}
		}
		if report.Healed > 0 {
			l.Invalidate()
		}
	}

	args := []any{
		log.FieldOperation, log.OpReconcile,
		log.FieldScanned, report.Scanned,
		log.FieldOrphans, len(report.Orphans),
		log.FieldConflicts, len(report.Conflicts),
		log.FieldHealed, report.Healed,
	}
	if report.Consistent() {
		logger.InfoContext(ctx, "Ledger consistent", args...)
	} else {
		logger.WarnContext(ctx, "Ledger inconsistencies found", args...)
	}
	return report, nil
}

// healOrphan writes the negation of orphan if its counterpart is still
// missing when the transaction runs.
func (l *Ledger) healOrphan(ctx context.Context, orphan Entry) (bool, error) {
	counter := orphan.Debt.Negate()
	counterKey, err := keys.Encode(counter.Creditor, counter.Time)
	if err != nil {
		return false, err
	}

	healed := false
	err = l.store.Update(ctx, func(tx storage.Tx) error {
		taken, err := anyExists(tx, counterKey)
		if err != nil || taken {
			return err
		}
		if err := putDebt(tx, counterKey, counter); err != nil {
			return err
		}
		if err := ensureUser(tx, counter.Creditor, counter.Time); err != nil {
			return err
		}
		healed = true
		return nil
	})
	return healed, err
}

// PairCheck is the outcome of VerifyTransaction.
type PairCheck struct {
	Status PairStatus
	Healed bool
}

// VerifyTransaction checks that both records of d are stored. d may be given
// in either orientation. With heal set, a missing half is rewritten from the
// half that exists, provided that half matches d.
func (l *Ledger) VerifyTransaction(ctx context.Context, d core.Debt, heal bool) (PairCheck, error) {
	if err := d.Validate(); err != nil {
		return PairCheck{}, err
	}
	canonical := d.Canonical()
	mirror := canonical.Negate()
	canonicalKey, err := keys.Encode(canonical.Creditor, canonical.Time)
	if err != nil {
		return PairCheck{}, err
	}
	mirrorKey, err := keys.Encode(mirror.Creditor, mirror.Time)
	if err != nil {
		return PairCheck{}, err
	}

	var check PairCheck
	err = l.store.Update(ctx, func(tx storage.Tx) error {
		gotCanonical, err := getDebt(tx, canonicalKey)
		if err != nil {
			return err
		}
		gotMirror, err := getDebt(tx, mirrorKey)
		if err != nil {
			return err
		}

		switch {
		case gotCanonical == nil && gotMirror == nil:
			check.Status = PairMissing
			return nil
		case gotCanonical != nil && gotMirror != nil:
			if gotCanonical.Equal(canonical) && gotMirror.Equal(mirror) {
				check.Status = PairComplete
			} else {
				check.Status = PairConflict
			}
			return nil
		case gotCanonical != nil:
			if !gotCanonical.Equal(canonical) {
				check.Status = PairConflict
				return nil
			}
			check.Status = PairMissingMirror
			if !heal {
				return nil
			}
			if err := putDebt(tx, mirrorKey, mirror); err != nil {
				return err
			}
		default:
			if !gotMirror.Equal(mirror) {
				check.Status = PairConflict
				return nil
			}
			check.Status = PairMissingCanonical
			if !heal {
				return nil
			}
			if err := putDebt(tx, canonicalKey, canonical); err != nil {
				return err
			}
		}
		if err := ensureUser(tx, canonical.Creditor, canonical.Time); err != nil {
			return err
		}
		if err := ensureUser(tx, canonical.Debtor, canonical.Time); err != nil {
			return err
		}
		check.Healed = true
		return nil
	})
	if err != nil {
		return PairCheck{}, fmt.Errorf("verify transaction: %w", err)
	}
	if check.Healed {
		l.Invalidate()
	}

	level := l.logger.DebugContext
	if check.Status != PairComplete {
		level = l.logger.WarnContext
	}
	fields := log.NewFields().
		WithOperation(log.OpVerify).
		WithDebt(canonical.Creditor, canonical.Debtor, canonical.Amount.Cents(), canonical.Time.UnixNano())
	fields["status"] = check.Status.String()
	fields[log.FieldHealed] = check.Healed
	level(ctx, "Transaction verified", fields.ToSlice()...)
	return check, nil
}

// getDebt returns the record at key, or nil when there is none.
func getDebt(tx storage.Tx, key []byte) (*core.Debt, error) {
	b, err := tx.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(storage.KV{Key: key, Value: b})
	if err != nil {
		return nil, err
	}
	return &e.Debt, nil
}

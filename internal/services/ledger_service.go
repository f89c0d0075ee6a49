package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"owed/internal/core"
	"owed/internal/ledger"
	"owed/internal/log"
)

// Publisher announces committed debts to other processes.
type Publisher interface {
	PublishDebtRecorded(ctx context.Context, d core.Debt) error
	Close() error
}

// LedgerService is the ledger as seen by the command line: every read goes
// straight to the Ledger, and every recorded debt is also published.
type LedgerService struct {
	*ledger.Ledger
	publisher Publisher
	logger    *log.Logger
}

// NewLedgerService wraps l. publisher may be nil, in which case nothing is
// published.
func NewLedgerService(l *ledger.Ledger, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.FromSlog(slog.Default(), log.ComponentLedger)
	}
	return &LedgerService{
		Ledger:    l,
		publisher: publisher,
		logger:    logger,
	}
}

// Record commits the debt pair, then publishes it. The write stands even
// when publishing fails; the periodic reconcile pass covers what the
// consumers miss.
func (s *LedgerService) Record(ctx context.Context, sub ledger.Submission) (ledger.Entry, error) {
	entry, err := s.Ledger.Record(ctx, sub)
	if err != nil {
		return ledger.Entry{}, err
	}

	if err := s.publish(ctx, entry.Debt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish debt recorded event",
			log.NewFields().
				WithOperation(log.OpPublish).
				WithDebt(entry.Debt.Creditor, entry.Debt.Debtor, entry.Debt.Amount.Cents(), entry.Debt.Time.UnixNano()).
				WithError(err).
				ToSlice()...)
	}
	return entry, nil
}

func (s *LedgerService) publish(ctx context.Context, d core.Debt) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping debt recorded event")
		return nil
	}
	return s.publisher.PublishDebtRecorded(ctx, d)
}

// Close closes the publisher. The store belongs to whoever opened it.
func (s *LedgerService) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}

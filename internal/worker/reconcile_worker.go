package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"owed/internal/amqp"
	"owed/internal/core"
	"owed/internal/keys"
	"owed/internal/ledger"
	"owed/internal/log"
)

// rejected are the errors a redelivery cannot fix: the message itself is
// invalid or the stored record it refers to cannot be decoded.
var rejected = []error{
	core.ErrEmptyParty,
	core.ErrSelfDebt,
	core.ErrZeroTime,
	keys.ErrInvalidUser,
	keys.ErrInvalidTime,
	ledger.ErrCorruptRecord,
}

func isRejected(err error) bool {
	for _, target := range rejected {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ReconcileWorker keeps a shared store's debt pairs whole. It checks each
// announced debt as it arrives and periodically scans the whole ledger.
type ReconcileWorker struct {
	ledger   *ledger.Ledger
	heal     bool
	interval time.Duration
	logger   *log.Logger
}

func NewReconcileWorker(l *ledger.Ledger, heal bool, interval time.Duration, logger *log.Logger) *ReconcileWorker {
	if logger == nil {
		logger = log.FromSlog(slog.Default(), log.ComponentWorker)
	}
	return &ReconcileWorker{
		ledger:   l,
		heal:     heal,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleDebtRecorded processes one debt recorded message. Returning an
// error requeues the message, so only store failures are returned. An
// invalid message or a corrupt stored record is logged and dropped; a pair
// that is missing or conflicting is logged and left to the periodic pass.
func (w *ReconcileWorker) HandleDebtRecorded(ctx context.Context, msg *amqp.DebtRecordedMessage) error {
	check, err := w.ledger.VerifyTransaction(ctx, msg.Debt(), w.heal)
	if err != nil {
		if isRejected(err) {
			w.logger.ErrorContext(ctx, "Dropping debt recorded message",
				log.FieldMessageID, msg.ID,
				log.FieldCreditor, msg.Creditor,
				log.FieldDebtor, msg.Debtor,
				log.FieldError, err,
			)
			return nil
		}
		return fmt.Errorf("verify debt %s: %w", msg.ID, err)
	}

	args := []any{
		log.FieldMessageID, msg.ID,
		log.FieldCreditor, msg.Creditor,
		log.FieldDebtor, msg.Debtor,
		"status", check.Status.String(),
		log.FieldHealed, check.Healed,
	}
	switch check.Status {
	case ledger.PairComplete:
		w.logger.DebugContext(ctx, "Debt pair complete", args...)
	case ledger.PairMissingCanonical, ledger.PairMissingMirror:
		w.logger.WarnContext(ctx, "Debt pair incomplete", args...)
	default:
		w.logger.ErrorContext(ctx, "Debt pair unusable", args...)
	}
	return nil
}

// RunOnce runs a single reconcile pass.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (ledger.Report, error) {
	return w.ledger.Reconcile(ctx, w.heal)
}

// RunPeriodic reconciles immediately and then on every interval until ctx
// is done. A failed pass is logged and retried at the next tick.
func (w *ReconcileWorker) RunPeriodic(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting periodic reconcile",
		"interval", w.interval,
		"heal", w.heal,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Reconcile pass failed",
				log.FieldOperation, log.OpReconcile,
				log.FieldError, err,
			)
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Periodic reconcile stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

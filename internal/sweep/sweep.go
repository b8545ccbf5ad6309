// Package sweep holds the two scheduled batch jobs: pickup reminders and
// overdue returns. Both are plain re-entrant functions; an overlapping run
// relies on the same transactional guards the interactive paths use.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/metrics"
	"github.com/Rat-cell/lockerhub/internal/notify"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

type Options struct {
	// MaxPickupWindow is how long a deposited parcel may wait before the
	// overdue job returns it to sender.
	MaxPickupWindow time.Duration
	// ReminderLead is how long after deposit the one-time reminder goes out.
	ReminderLead time.Duration
}

type Sweeper struct {
	txm      storage.TxManager
	parcels  storage.ParcelRepository
	lockers  storage.LockerRepository
	audit    audit.Recorder
	notifier notify.Sender
	logger   *zap.Logger
	opts     Options

	// now is swappable in tests; the overdue threshold is strict, so tests
	// pin the clock to exercise the boundary.
	now func() time.Time
}

func New(
	txm storage.TxManager,
	parcels storage.ParcelRepository,
	lockers storage.LockerRepository,
	recorder audit.Recorder,
	notifier notify.Sender,
	logger *zap.Logger,
	opts Options,
) *Sweeper {
	return &Sweeper{
		txm:      txm,
		parcels:  parcels,
		lockers:  lockers,
		audit:    recorder,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// RunReminders sends the one-time pickup reminder to every deposited parcel
// past the lead time that has not been reminded yet. A send failure leaves
// reminder_sent_at unset so the next run retries; it never aborts the batch.
func (s *Sweeper) RunReminders(ctx context.Context) (sent, failed int, err error) {
	before := s.now().UTC().Add(-s.opts.ReminderLead)
	due, err := s.parcels.GetReminderDue(ctx, before)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to select reminder candidates: %w", err)
	}

	for _, parcel := range due {
		location := ""
		if parcel.LockerID != nil {
			locker, err := s.lockers.GetByID(ctx, *parcel.LockerID)
			if err != nil {
				s.logger.Error("reminder: failed to resolve locker",
					zap.String("parcel_id", parcel.ID), zap.Error(err))
				metrics.OperationErrorsTotal.WithLabelValues("reminder_sweep").Inc()
				failed++
				continue
			}
			location = locker.Location
		}

		subject, body := notify.ReminderMessage(location)
		if err := s.notifier.Send(ctx, parcel.RecipientEmail, subject, body); err != nil {
			s.logger.Warn("reminder: send failed, will retry next sweep",
				zap.String("parcel_id", parcel.ID), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("reminder_sweep").Inc()
			failed++
			continue
		}

		// Mark only after a successful send. The guarded update makes a
		// concurrent sweep's duplicate mark harmless.
		if err := s.parcels.SetReminderSent(ctx, parcel.ID, s.now().UTC()); err != nil {
			s.logger.Error("reminder: failed to mark reminder sent",
				zap.String("parcel_id", parcel.ID), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("reminder_sweep").Inc()
			failed++
			continue
		}
		metrics.RemindersSentTotal.Inc()
		sent++
	}
	return sent, failed, nil
}

// RunOverdue returns every parcel deposited strictly longer ago than the
// pickup window to its sender. Each parcel transitions in its own
// transaction so one bad row cannot poison the batch.
func (s *Sweeper) RunOverdue(ctx context.Context) (processed, failed int, err error) {
	cutoff := s.now().UTC().Add(-s.opts.MaxPickupWindow)
	overdue, err := s.parcels.GetOverdue(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to select overdue parcels: %w", err)
	}

	for _, parcel := range overdue {
		if parcel.DepositedAt == nil {
			s.logger.Warn("overdue: parcel without deposit timestamp skipped",
				zap.String("parcel_id", parcel.ID))
			failed++
			continue
		}
		if err := s.returnToSender(ctx, parcel.ID, cutoff); err != nil {
			s.logger.Error("overdue: failed to return parcel",
				zap.String("parcel_id", parcel.ID), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("overdue_sweep").Inc()
			failed++
			continue
		}
		processed++
	}
	return processed, failed, nil
}

func (s *Sweeper) returnToSender(ctx context.Context, parcelID string, cutoff time.Time) error {
	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	parcel, err := s.parcels.GetByIDTx(ctx, tx, parcelID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get parcel: %w", err)
	}
	// Re-check under lock: an interactive pickup or a concurrent sweep run
	// may already have moved the parcel.
	if parcel.Status != repository.ParcelDeposited ||
		parcel.DepositedAt == nil || !parcel.DepositedAt.Before(cutoff) {
		return nil
	}

	var lockerID string
	var lockerNext repository.LockerStatus
	if parcel.LockerID != nil {
		lockerID = *parcel.LockerID
		locker, err := s.lockers.GetByIDTx(ctx, tx, lockerID)
		if err != nil {
			return fmt.Errorf("failed to get locker: %w", err)
		}
		// Contents stay inside until staff empties the locker, so an
		// occupied (or admin-disabled) locker waits for collection.
		switch locker.Status {
		case repository.LockerOccupied, repository.LockerOutOfService:
			lockerNext = repository.LockerAwaitingCollection
		default:
			lockerNext = repository.LockerFree
		}
		if lockerNext != locker.Status {
			if err := s.lockers.UpdateStatusTx(ctx, tx, lockerID, lockerNext); err != nil {
				return fmt.Errorf("failed to update locker: %w", err)
			}
		}
	}

	parcel.Status = repository.ParcelReturnToSender
	if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
		return fmt.Errorf("failed to update parcel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit return: %w", err)
	}

	metrics.OverdueReturnsTotal.Inc()
	s.audit.Record(ctx, audit.Entry{
		Timestamp: s.now().UTC(),
		Action:    "parcel_returned_to_sender",
		ParcelID:  parcel.ID,
		LockerID:  lockerID,
		OldStatus: string(repository.ParcelDeposited),
		NewStatus: string(repository.ParcelReturnToSender),
		Details:   map[string]interface{}{"locker_status": string(lockerNext)},
	})
	return nil
}

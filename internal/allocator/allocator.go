// Package allocator reserves and releases lockers. Reservation is the one
// place two requests can race over the same row, so the claim itself is a
// single conditional update executed inside the caller's transaction.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

// ErrNoAvailability is the expected business outcome when every locker of
// the requested size is taken. Callers must not create a parcel record.
var ErrNoAvailability = errors.New("no available locker of requested size")

type Allocator struct {
	txm     storage.TxManager
	lockers storage.LockerRepository
	audit   audit.Recorder
	logger  *zap.Logger
}

func New(txm storage.TxManager, lockers storage.LockerRepository, recorder audit.Recorder, logger *zap.Logger) *Allocator {
	return &Allocator{
		txm:     txm,
		lockers: lockers,
		audit:   recorder,
		logger:  logger,
	}
}

// ReserveTx claims one free locker of the requested size within the caller's
// transaction. The caller owns commit/rollback and audit emission.
func (a *Allocator) ReserveTx(ctx context.Context, tx storage.Tx, size repository.LockerSize) (*repository.Locker, error) {
	if !repository.ValidLockerSize(size) {
		return nil, fmt.Errorf("invalid locker size %q", size)
	}

	locker, err := a.lockers.ReserveFreeTx(ctx, tx, size)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNoAvailability
		}
		return nil, fmt.Errorf("failed to reserve locker: %w", err)
	}
	return locker, nil
}

// FindAndReserve reserves a locker in its own transaction. Used when a
// reservation is not part of a larger lifecycle transition.
func (a *Allocator) FindAndReserve(ctx context.Context, size repository.LockerSize) (*repository.Locker, error) {
	tx, err := a.txm.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	locker, err := a.ReserveTx(ctx, tx, size)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	a.audit.Record(ctx, audit.Entry{
		Timestamp: time.Now().UTC(),
		Action:    "locker_reserved",
		LockerID:  locker.ID,
		OldStatus: string(repository.LockerFree),
		NewStatus: string(repository.LockerOccupied),
	})
	return locker, nil
}

// ReleaseTx returns a locker to circulation within the caller's transaction.
// A locker an admin took out of service while it held a parcel stays out of
// service; it is now simply empty.
func (a *Allocator) ReleaseTx(ctx context.Context, tx storage.Tx, lockerID string, wasOutOfServiceWhileOccupied bool) error {
	target := repository.LockerFree
	if wasOutOfServiceWhileOccupied {
		target = repository.LockerOutOfService
	}

	if err := a.lockers.UpdateStatusTx(ctx, tx, lockerID, target); err != nil {
		return fmt.Errorf("failed to release locker %s: %w", lockerID, err)
	}
	return nil
}

// Release releases a locker in its own transaction.
func (a *Allocator) Release(ctx context.Context, lockerID string, wasOutOfServiceWhileOccupied bool) error {
	tx, err := a.txm.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := a.ReleaseTx(ctx, tx, lockerID, wasOutOfServiceWhileOccupied); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit release: %w", err)
	}

	target := repository.LockerFree
	if wasOutOfServiceWhileOccupied {
		target = repository.LockerOutOfService
	}
	a.audit.Record(ctx, audit.Entry{
		Timestamp: time.Now().UTC(),
		Action:    "locker_released",
		LockerID:  lockerID,
		NewStatus: string(target),
	})
	a.logger.Debug("locker released", zap.String("locker_id", lockerID), zap.String("status", string(target)))
	return nil
}

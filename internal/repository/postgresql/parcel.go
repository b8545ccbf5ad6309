package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/Rat-cell/lockerhub/internal/db"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

type ParcelRepo struct {
	db db.DB
}

func NewParcelRepo(db db.DB) storage.ParcelRepository {
	return &ParcelRepo{db: db}
}

func (r *ParcelRepo) CreateTx(ctx context.Context, tx storage.Tx, parcel *repository.Parcel) error {
	ptx, err := txFrom(tx)
	if err != nil {
		return err
	}

	_, err = ptx.Exec(ctx, `
        INSERT INTO parcels (
            id, locker_id, recipient_email, status, pin_hash, otp_expiry,
            deposited_at, picked_up_at, pin_generation_token, pin_generation_token_expiry,
            pin_generation_count, last_pin_generation, reminder_sent_at, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `, parcel.ID, parcel.LockerID, parcel.RecipientEmail, parcel.Status, parcel.PinHash, parcel.OtpExpiry,
		parcel.DepositedAt, parcel.PickedUpAt, parcel.PinGenerationToken, parcel.PinGenerationTokenExpiry,
		parcel.PinGenerationCount, parcel.LastPinGeneration, parcel.ReminderSentAt, parcel.CreatedAt, parcel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert parcel: %w", err)
	}
	return nil
}

func (r *ParcelRepo) GetByID(ctx context.Context, id string) (*repository.Parcel, error) {
	var parcel repository.Parcel
	err := r.db.Get(ctx, &parcel, "SELECT * FROM parcels WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *ParcelRepo) GetByIDTx(ctx context.Context, tx storage.Tx, id string) (*repository.Parcel, error) {
	ptx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var parcel repository.Parcel
	err = ptx.Get(ctx, &parcel, "SELECT * FROM parcels WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *ParcelRepo) GetByTokenTx(ctx context.Context, tx storage.Tx, token string) (*repository.Parcel, error) {
	ptx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var parcel repository.Parcel
	err = ptx.Get(ctx, &parcel, "SELECT * FROM parcels WHERE pin_generation_token = $1 FOR UPDATE", token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *ParcelRepo) GetDepositedByEmailAndLocker(ctx context.Context, email, lockerID string) (*repository.Parcel, error) {
	var parcel repository.Parcel
	err := r.db.Get(ctx, &parcel, `
        SELECT * FROM parcels
        WHERE lower(recipient_email) = lower($1) AND locker_id = $2 AND status = $3
    `, email, lockerID, repository.ParcelDeposited)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *ParcelRepo) GetDepositedWithPin(ctx context.Context) ([]*repository.Parcel, error) {
	var parcels []*repository.Parcel
	err := r.db.Select(ctx, &parcels, `
        SELECT * FROM parcels
        WHERE status = $1 AND pin_hash IS NOT NULL
        ORDER BY deposited_at ASC
    `, repository.ParcelDeposited)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposited parcels with pin: %w", err)
	}
	return parcels, nil
}

func (r *ParcelRepo) GetReminderDue(ctx context.Context, before time.Time) ([]*repository.Parcel, error) {
	var parcels []*repository.Parcel
	err := r.db.Select(ctx, &parcels, `
        SELECT * FROM parcels
        WHERE status = $1
          AND deposited_at IS NOT NULL
          AND deposited_at <= $2
          AND reminder_sent_at IS NULL
        ORDER BY deposited_at ASC
    `, repository.ParcelDeposited, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder-due parcels: %w", err)
	}
	return parcels, nil
}

func (r *ParcelRepo) GetOverdue(ctx context.Context, before time.Time) ([]*repository.Parcel, error) {
	var parcels []*repository.Parcel
	err := r.db.Select(ctx, &parcels, `
        SELECT * FROM parcels
        WHERE status = $1
          AND deposited_at IS NOT NULL
          AND deposited_at < $2
        ORDER BY deposited_at ASC
    `, repository.ParcelDeposited, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue parcels: %w", err)
	}
	return parcels, nil
}

func (r *ParcelRepo) GetActiveByLockerTx(ctx context.Context, tx storage.Tx, lockerID string) (*repository.Parcel, error) {
	ptx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var parcel repository.Parcel
	err = ptx.Get(ctx, &parcel, `
        SELECT * FROM parcels
        WHERE locker_id = $1 AND status IN ($2, $3, $4)
        LIMIT 1
    `, lockerID, repository.ParcelDeposited, repository.ParcelPickupDisputed, repository.ParcelMissing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &parcel, nil
}

func (r *ParcelRepo) UpdateTx(ctx context.Context, tx storage.Tx, parcel *repository.Parcel) error {
	ptx, err := txFrom(tx)
	if err != nil {
		return err
	}

	parcel.UpdatedAt = time.Now().UTC()
	tag, err := ptx.Exec(ctx, `
        UPDATE parcels
        SET
            locker_id = $1,
            recipient_email = $2,
            status = $3,
            pin_hash = $4,
            otp_expiry = $5,
            deposited_at = $6,
            picked_up_at = $7,
            pin_generation_token = $8,
            pin_generation_token_expiry = $9,
            pin_generation_count = $10,
            last_pin_generation = $11,
            reminder_sent_at = $12,
            updated_at = $13
        WHERE id = $14
    `, parcel.LockerID, parcel.RecipientEmail, parcel.Status, parcel.PinHash, parcel.OtpExpiry,
		parcel.DepositedAt, parcel.PickedUpAt, parcel.PinGenerationToken, parcel.PinGenerationTokenExpiry,
		parcel.PinGenerationCount, parcel.LastPinGeneration, parcel.ReminderSentAt, parcel.UpdatedAt, parcel.ID)
	if err != nil {
		return fmt.Errorf("failed to update parcel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *ParcelRepo) SetReminderSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE parcels SET reminder_sent_at = $1, updated_at = $2
        WHERE id = $3 AND status = $4 AND reminder_sent_at IS NULL
    `, at, time.Now().UTC(), id, repository.ParcelDeposited)
	if err != nil {
		return fmt.Errorf("failed to set reminder timestamp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

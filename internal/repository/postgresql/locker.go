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

type LockerRepo struct {
	db db.DB
}

func NewLockerRepo(db db.DB) storage.LockerRepository {
	return &LockerRepo{db: db}
}

func (r *LockerRepo) Create(ctx context.Context, locker *repository.Locker) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
        INSERT INTO lockers (id, location, size, status, sensor_occupied, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, locker.ID, locker.Location, locker.Size, locker.Status, locker.SensorOccupied, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert locker: %w", err)
	}
	return nil
}

func (r *LockerRepo) GetByID(ctx context.Context, id string) (*repository.Locker, error) {
	var locker repository.Locker
	err := r.db.Get(ctx, &locker, "SELECT * FROM lockers WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &locker, nil
}

func (r *LockerRepo) GetByIDTx(ctx context.Context, tx storage.Tx, id string) (*repository.Locker, error) {
	ptx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var locker repository.Locker
	err = ptx.Get(ctx, &locker, "SELECT * FROM lockers WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &locker, nil
}

// ReserveFreeTx claims one free locker of the requested size atomically: the
// candidate row is locked (skipping rows other transactions already hold) and
// flipped to 'occupied' in a single statement, so two concurrent deposits can
// never reserve the same locker.
func (r *LockerRepo) ReserveFreeTx(ctx context.Context, tx storage.Tx, size repository.LockerSize) (*repository.Locker, error) {
	ptx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var locker repository.Locker
	err = ptx.Get(ctx, &locker, `
        UPDATE lockers
        SET status = $1, updated_at = $2
        WHERE id = (
            SELECT id FROM lockers
            WHERE size = $3 AND status = $4
            ORDER BY id
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING *
    `, repository.LockerOccupied, time.Now().UTC(), size, repository.LockerFree)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to reserve locker: %w", err)
	}
	return &locker, nil
}

func (r *LockerRepo) UpdateStatusTx(ctx context.Context, tx storage.Tx, id string, status repository.LockerStatus) error {
	ptx, err := txFrom(tx)
	if err != nil {
		return err
	}

	tag, err := ptx.Exec(ctx, `
        UPDATE lockers SET status = $1, updated_at = $2 WHERE id = $3
    `, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update locker status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *LockerRepo) UpdateSensor(ctx context.Context, id string, occupied bool) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE lockers SET sensor_occupied = $1, updated_at = $2 WHERE id = $3
    `, occupied, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update locker sensor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *LockerRepo) List(ctx context.Context) ([]*repository.Locker, error) {
	var lockers []*repository.Locker
	err := r.db.Select(ctx, &lockers, "SELECT * FROM lockers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	return lockers, nil
}

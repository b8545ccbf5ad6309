// Package storage declares the persistence capabilities the locker services
// are built against. Implementations live in internal/repository/postgresql
// (production) and internal/repository/memory (tests).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Rat-cell/lockerhub/internal/repository"
)

// Tx scopes a unit of work. Every multi-row lifecycle transition runs inside
// one Tx: all rows persist or none do.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TxManager interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type LockerRepository interface {
	Create(ctx context.Context, locker *repository.Locker) error
	GetByID(ctx context.Context, id string) (*repository.Locker, error)
	// GetByIDTx locks the locker row for the duration of the transaction.
	GetByIDTx(ctx context.Context, tx Tx, id string) (*repository.Locker, error)
	// ReserveFreeTx atomically claims one free locker of the given size and
	// marks it occupied. Returns repository.ErrObjectNotFound when no free
	// locker of that size exists.
	ReserveFreeTx(ctx context.Context, tx Tx, size repository.LockerSize) (*repository.Locker, error)
	UpdateStatusTx(ctx context.Context, tx Tx, id string, status repository.LockerStatus) error
	UpdateSensor(ctx context.Context, id string, occupied bool) error
	List(ctx context.Context) ([]*repository.Locker, error)
}

type ParcelRepository interface {
	CreateTx(ctx context.Context, tx Tx, parcel *repository.Parcel) error
	GetByID(ctx context.Context, id string) (*repository.Parcel, error)
	// GetByIDTx locks the parcel row for the duration of the transaction.
	GetByIDTx(ctx context.Context, tx Tx, id string) (*repository.Parcel, error)
	GetByTokenTx(ctx context.Context, tx Tx, token string) (*repository.Parcel, error)
	GetDepositedByEmailAndLocker(ctx context.Context, email, lockerID string) (*repository.Parcel, error)
	GetDepositedWithPin(ctx context.Context) ([]*repository.Parcel, error)
	GetReminderDue(ctx context.Context, before time.Time) ([]*repository.Parcel, error)
	GetOverdue(ctx context.Context, before time.Time) ([]*repository.Parcel, error)
	GetActiveByLockerTx(ctx context.Context, tx Tx, lockerID string) (*repository.Parcel, error)
	UpdateTx(ctx context.Context, tx Tx, parcel *repository.Parcel) error
	SetReminderSent(ctx context.Context, id string, at time.Time) error
}

type AuditLogRepository interface {
	CreateBatch(ctx context.Context, records []*repository.AuditRecord) error
}

type OutboxTaskRepository interface {
	Create(ctx context.Context, task *repository.OutboxTask) error
	GetProcessableTasks(ctx context.Context, limit int) ([]*repository.OutboxTask, error)
	UpdateTaskStatusTx(ctx context.Context, tx Tx, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, username, password string) error
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

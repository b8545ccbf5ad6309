package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rat-cell/lockerhub/internal/repository"
)

func newLocker(id string, status repository.LockerStatus) *repository.Locker {
	return &repository.Locker{
		ID:       id,
		Location: "bank A / " + id,
		Size:     repository.SizeMedium,
		Status:   status,
	}
}

func TestRollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Lockers().Create(ctx, newLocker("L1", repository.LockerFree)))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Lockers().UpdateStatusTx(ctx, tx, "L1", repository.LockerOccupied))
	require.NoError(t, tx.Rollback(ctx))

	locker, err := store.Lockers().GetByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, repository.LockerFree, locker.Status)
}

func TestCommitPersistsState(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Lockers().Create(ctx, newLocker("L1", repository.LockerFree)))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Lockers().UpdateStatusTx(ctx, tx, "L1", repository.LockerOccupied))
	require.NoError(t, tx.Commit(ctx))

	locker, err := store.Lockers().GetByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, repository.LockerOccupied, locker.Status)
}

func TestStaleTxRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Lockers().Create(ctx, newLocker("L1", repository.LockerFree)))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	// Operations on a finished transaction fail instead of corrupting state.
	err = store.Lockers().UpdateStatusTx(ctx, tx, "L1", repository.LockerOccupied)
	assert.Error(t, err)
}

func TestReserveFreeTxSkipsNonMatching(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Lockers().Create(ctx, newLocker("L1", repository.LockerOccupied)))
	require.NoError(t, store.Lockers().Create(ctx, &repository.Locker{
		ID: "L2", Location: "bank A / L2", Size: repository.SizeSmall, Status: repository.LockerFree,
	}))
	require.NoError(t, store.Lockers().Create(ctx, newLocker("L3", repository.LockerFree)))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	locker, err := store.Lockers().ReserveFreeTx(ctx, tx, repository.SizeMedium)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, "L3", locker.ID)
	assert.Equal(t, repository.LockerOccupied, locker.Status)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = store.Lockers().ReserveFreeTx(ctx, tx, repository.SizeMedium)
	assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	require.NoError(t, tx.Rollback(ctx))
}

func TestGetDepositedByEmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	lockerID := "L1"
	now := time.Now().UTC()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Parcels().CreateTx(ctx, tx, &repository.Parcel{
		ID:             "p1",
		LockerID:       &lockerID,
		RecipientEmail: "Student@Campus.Edu",
		Status:         repository.ParcelDeposited,
		DepositedAt:    &now,
	}))
	require.NoError(t, tx.Commit(ctx))

	parcel, err := store.Parcels().GetDepositedByEmailAndLocker(ctx, "student@campus.edu", "L1")
	require.NoError(t, err)
	assert.Equal(t, "p1", parcel.ID)

	_, err = store.Parcels().GetDepositedByEmailAndLocker(ctx, "student@campus.edu", "L2")
	assert.ErrorIs(t, err, repository.ErrObjectNotFound)
}

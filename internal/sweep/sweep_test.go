package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/notify/mocks"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/repository/memory"
)

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Entry) {}

type fixture struct {
	store   *memory.Store
	sweeper *Sweeper
	sender  *mocks.MockSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	sender := mocks.NewMockSender(ctrl)
	sweeper := New(store, store.Parcels(), store.Lockers(), nopRecorder{}, sender, zap.NewNop(), Options{
		MaxPickupWindow: 7 * 24 * time.Hour,
		ReminderLead:    24 * time.Hour,
	})
	return &fixture{store: store, sweeper: sweeper, sender: sender}
}

func (f *fixture) addLocker(t *testing.T, id string, status repository.LockerStatus) {
	t.Helper()
	require.NoError(t, f.store.Lockers().Create(context.Background(), &repository.Locker{
		ID:       id,
		Location: "bank A / " + id,
		Size:     repository.SizeMedium,
		Status:   status,
	}))
}

// addParcel persists a deposited parcel aged by the given duration.
func (f *fixture) addParcel(t *testing.T, lockerID, email string, age time.Duration) *repository.Parcel {
	return f.addParcelAt(t, lockerID, email, time.Now().UTC().Add(-age))
}

func (f *fixture) addParcelAt(t *testing.T, lockerID, email string, depositedAt time.Time) *repository.Parcel {
	t.Helper()
	ctx := context.Background()
	parcel := &repository.Parcel{
		ID:             uuid.NewString(),
		LockerID:       &lockerID,
		RecipientEmail: email,
		Status:         repository.ParcelDeposited,
		DepositedAt:    &depositedAt,
		CreatedAt:      depositedAt,
		UpdatedAt:      depositedAt,
	}
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Parcels().CreateTx(ctx, tx, parcel))
	require.NoError(t, tx.Commit(ctx))
	return parcel
}

func (f *fixture) parcel(t *testing.T, id string) *repository.Parcel {
	t.Helper()
	parcel, err := f.store.Parcels().GetByID(context.Background(), id)
	require.NoError(t, err)
	return parcel
}

func (f *fixture) lockerStatus(t *testing.T, id string) repository.LockerStatus {
	t.Helper()
	locker, err := f.store.Lockers().GetByID(context.Background(), id)
	require.NoError(t, err)
	return locker.Status
}

func TestRunRemindersSendsOnce(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	parcel := f.addParcel(t, "L1", "a@b.c", 25*time.Hour)

	f.sender.EXPECT().Send(gomock.Any(), "a@b.c", gomock.Any(), gomock.Any()).Return(nil)
	sent, failed, err := f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)
	assert.NotNil(t, f.parcel(t, parcel.ID).ReminderSentAt)

	// Second run selects nothing: the reminder already went out.
	sent, failed, err = f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, failed)
}

func TestRunRemindersSkipsRecentDeposits(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	parcel := f.addParcel(t, "L1", "a@b.c", 2*time.Hour)

	sent, failed, err := f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, failed)
	assert.Nil(t, f.parcel(t, parcel.ID).ReminderSentAt)
}

func TestRunRemindersRetriesAfterSendFailure(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	f.addLocker(t, "L2", repository.LockerOccupied)
	broken := f.addParcel(t, "L1", "down@b.c", 25*time.Hour)
	f.addParcel(t, "L2", "ok@b.c", 25*time.Hour)

	f.sender.EXPECT().Send(gomock.Any(), "down@b.c", gomock.Any(), gomock.Any()).
		Return(errors.New("smtp down"))
	f.sender.EXPECT().Send(gomock.Any(), "ok@b.c", gomock.Any(), gomock.Any()).Return(nil)

	sent, failed, err := f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
	assert.Nil(t, f.parcel(t, broken.ID).ReminderSentAt)

	// The failed parcel is retried on the next run.
	f.sender.EXPECT().Send(gomock.Any(), "down@b.c", gomock.Any(), gomock.Any()).Return(nil)
	sent, failed, err = f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)
}

func TestRunOverdueThresholdIsStrict(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	f.addLocker(t, "L2", repository.LockerOccupied)

	// Pin the clock: the threshold is strict, so a parcel deposited exactly
	// max-pickup-days ago is not overdue yet.
	fixed := time.Now().UTC()
	f.sweeper.now = func() time.Time { return fixed }
	old := f.addParcelAt(t, "L1", "old@b.c", fixed.Add(-8*24*time.Hour))
	exact := f.addParcelAt(t, "L2", "exact@b.c", fixed.Add(-7*24*time.Hour))

	processed, failed, err := f.sweeper.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)

	assert.Equal(t, repository.ParcelReturnToSender, f.parcel(t, old.ID).Status)
	assert.Equal(t, repository.LockerAwaitingCollection, f.lockerStatus(t, "L1"))

	// Exactly at the threshold is not overdue yet.
	assert.Equal(t, repository.ParcelDeposited, f.parcel(t, exact.ID).Status)
	assert.Equal(t, repository.LockerOccupied, f.lockerStatus(t, "L2"))
}

func TestRunOverdueIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	f.addParcel(t, "L1", "a@b.c", 10*24*time.Hour)

	processed, _, err := f.sweeper.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// A second pass finds nothing: the parcel left 'deposited'.
	processed, failed, err := f.sweeper.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, failed)
}

func TestRunOverdueLockerSideEffects(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.LockerOccupied)
	f.addLocker(t, "L2", repository.LockerOutOfService)
	f.addLocker(t, "L3", repository.LockerFree)
	f.addParcel(t, "L1", "a@b.c", 8*24*time.Hour)
	f.addParcel(t, "L2", "b@b.c", 8*24*time.Hour)
	f.addParcel(t, "L3", "c@b.c", 8*24*time.Hour)

	processed, failed, err := f.sweeper.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 0, failed)

	// Lockers with contents (or under admin hold) wait for staff collection;
	// an already-free locker stays free.
	assert.Equal(t, repository.LockerAwaitingCollection, f.lockerStatus(t, "L1"))
	assert.Equal(t, repository.LockerAwaitingCollection, f.lockerStatus(t, "L2"))
	assert.Equal(t, repository.LockerFree, f.lockerStatus(t, "L3"))
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	runner := NewRunner(f.sweeper, time.Minute, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

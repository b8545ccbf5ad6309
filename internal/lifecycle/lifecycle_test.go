package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/allocator"
	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/notify/mocks"
	"github.com/Rat-cell/lockerhub/internal/pin"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/repository/memory"
)

type captureRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureRecorder) Record(_ context.Context, e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureRecorder) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	recorder *captureRecorder
	sender   *mocks.MockSender
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	recorder := &captureRecorder{}
	sender := mocks.NewMockSender(ctrl)
	logger := zap.NewNop()
	alloc := allocator.New(store, store.Lockers(), recorder, logger)
	svc := New(store, store.Parcels(), store.Lockers(), alloc, recorder, sender, logger, opts)
	return &fixture{store: store, svc: svc, recorder: recorder, sender: sender}
}

func defaultOptions() Options {
	return Options{
		PinValidity:            24 * time.Hour,
		TokenValidity:          24 * time.Hour,
		MaxDailyPinGenerations: 3,
		EmailTokenIssuance:     false,
		PublicBaseURL:          "http://localhost:9000",
	}
}

func (f *fixture) addLocker(t *testing.T, id string, size repository.LockerSize, status repository.LockerStatus) {
	t.Helper()
	require.NoError(t, f.store.Lockers().Create(context.Background(), &repository.Locker{
		ID:       id,
		Location: "bank A / " + id,
		Size:     size,
		Status:   status,
	}))
}

func (f *fixture) locker(t *testing.T, id string) *repository.Locker {
	t.Helper()
	locker, err := f.store.Lockers().GetByID(context.Background(), id)
	require.NoError(t, err)
	return locker
}

func (f *fixture) parcel(t *testing.T, id string) *repository.Parcel {
	t.Helper()
	parcel, err := f.store.Parcels().GetByID(context.Background(), id)
	require.NoError(t, err)
	return parcel
}

// mutateParcel rewrites parcel fields directly, bypassing the service. Tests
// use it to age timestamps instead of sleeping.
func (f *fixture) mutateParcel(t *testing.T, id string, fn func(*repository.Parcel)) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	parcel, err := f.store.Parcels().GetByIDTx(ctx, tx, id)
	require.NoError(t, err)
	fn(parcel)
	require.NoError(t, f.store.Parcels().UpdateTx(ctx, tx, parcel))
	require.NoError(t, tx.Commit(ctx))
}

func TestDepositImmediatePin(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	f.sender.EXPECT().Send(gomock.Any(), "student@campus.edu", gomock.Any(), gomock.Any()).Return(nil)

	parcel, plaintext, err := f.svc.Deposit(context.Background(), repository.SizeMedium, "student@campus.edu")
	require.NoError(t, err)

	assert.Equal(t, repository.ParcelDeposited, parcel.Status)
	require.NotNil(t, parcel.LockerID)
	assert.Equal(t, "L1", *parcel.LockerID)
	assert.Regexp(t, `^\d{6}$`, plaintext)
	require.NotNil(t, parcel.PinHash)
	assert.True(t, pin.Verify(*parcel.PinHash, plaintext))
	require.NotNil(t, parcel.OtpExpiry)
	assert.Nil(t, parcel.PinGenerationToken)

	assert.Equal(t, repository.LockerOccupied, f.locker(t, "L1").Status)
	assert.Contains(t, f.recorder.actions(), "parcel_deposited")
}

func TestDepositTokenMode(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeSmall, repository.LockerFree)
	f.sender.EXPECT().Send(gomock.Any(), "student@campus.edu", gomock.Any(), gomock.Any()).Return(nil)

	parcel, plaintext, err := f.svc.Deposit(context.Background(), repository.SizeSmall, "student@campus.edu")
	require.NoError(t, err)

	assert.Empty(t, plaintext)
	assert.Nil(t, parcel.PinHash)
	require.NotNil(t, parcel.PinGenerationToken)
	assert.Len(t, *parcel.PinGenerationToken, 64)
	require.NotNil(t, parcel.PinGenerationTokenExpiry)
}

func TestDepositNoAvailability(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeSmall, repository.LockerOccupied)
	f.addLocker(t, "L2", repository.SizeLarge, repository.LockerFree)

	parcel, _, err := f.svc.Deposit(context.Background(), repository.SizeSmall, "student@campus.edu")
	assert.ErrorIs(t, err, allocator.ErrNoAvailability)
	assert.Nil(t, parcel)
	// Nothing was created or reserved.
	assert.Equal(t, repository.LockerFree, f.locker(t, "L2").Status)
	assert.Empty(t, f.recorder.actions())
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)

	_, _, err := f.svc.Deposit(context.Background(), repository.SizeMedium, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, _, err = f.svc.Deposit(context.Background(), repository.SizeMedium, "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, _, err = f.svc.Deposit(context.Background(), "gigantic", "a@b.c")
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestDepositNotificationFailureDoesNotUndoDeposit(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("smtp down"))

	parcel, _, err := f.svc.Deposit(context.Background(), repository.SizeMedium, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, repository.ParcelDeposited, f.parcel(t, parcel.ID).Status)
	assert.Equal(t, repository.LockerOccupied, f.locker(t, "L1").Status)
}

func depositOne(t *testing.T, f *fixture, email string) (*repository.Parcel, string) {
	t.Helper()
	f.sender.EXPECT().Send(gomock.Any(), email, gomock.Any(), gomock.Any()).Return(nil)
	parcel, plaintext, err := f.svc.Deposit(context.Background(), repository.SizeMedium, email)
	require.NoError(t, err)
	return parcel, plaintext
}

func TestPickupHappyPath(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")

	parcel, err := f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, deposited.ID, parcel.ID)
	assert.Equal(t, repository.ParcelPickedUp, parcel.Status)
	require.NotNil(t, parcel.PickedUpAt)
	assert.Equal(t, repository.LockerFree, f.locker(t, "L1").Status)
	assert.Contains(t, f.recorder.actions(), "parcel_picked_up")
}

func TestPickupWrongPin(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")

	wrong := "000000"
	if wrong == plaintext {
		wrong = "000001"
	}
	_, err := f.svc.ProcessPickup(context.Background(), wrong)
	assert.ErrorIs(t, err, ErrInvalidPin)

	assert.Equal(t, repository.ParcelDeposited, f.parcel(t, deposited.ID).Status)
	assert.Equal(t, repository.LockerOccupied, f.locker(t, "L1").Status)
}

func TestPickupExpiredPin(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")

	expired := time.Now().UTC().Add(-time.Minute)
	f.mutateParcel(t, deposited.ID, func(p *repository.Parcel) {
		p.OtpExpiry = &expired
	})

	parcel, err := f.svc.ProcessPickup(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrPinExpired)
	require.NotNil(t, parcel)
	assert.Equal(t, repository.ParcelExpired, parcel.Status)
	// Contents are still inside: the locker stays occupied.
	assert.Equal(t, repository.LockerOccupied, f.locker(t, "L1").Status)

	// An expired parcel cannot be picked up again with the same pin.
	_, err = f.svc.ProcessPickup(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestPickupFreesOutOfServiceLockerAsOutOfService(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	_, plaintext := depositOne(t, f, "a@b.c")

	// Admin takes the occupied locker out of service before pickup.
	_, err := f.svc.SetLockerStatus(context.Background(), Actor{ID: "u1", Username: "admin"}, "L1", repository.LockerOutOfService)
	require.NoError(t, err)

	_, err = f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, repository.LockerOutOfService, f.locker(t, "L1").Status)
}

func TestGeneratePinFromToken(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")
	token := *f.parcel(t, deposited.ID).PinGenerationToken

	parcel, plaintext, err := f.svc.GeneratePinFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, plaintext)
	assert.Equal(t, 1, parcel.PinGenerationCount)
	require.NotNil(t, parcel.PinHash)
	assert.True(t, pin.Verify(*parcel.PinHash, plaintext))

	// The pickup works with the generated pin.
	picked, err := f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, repository.ParcelPickedUp, picked.Status)
}

func TestGeneratePinFromTokenErrors(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")
	token := *f.parcel(t, deposited.ID).PinGenerationToken

	_, _, err := f.svc.GeneratePinFromToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	expired := time.Now().UTC().Add(-time.Minute)
	f.mutateParcel(t, deposited.ID, func(p *repository.Parcel) {
		p.PinGenerationTokenExpiry = &expired
	})
	_, _, err = f.svc.GeneratePinFromToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestGeneratePinDailyLimit(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	opts.MaxDailyPinGenerations = 3
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")
	token := *f.parcel(t, deposited.ID).PinGenerationToken

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.GeneratePinFromToken(context.Background(), token)
		require.NoError(t, err)
	}
	_, _, err := f.svc.GeneratePinFromToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrPinLimitReached)

	// A generation older than 24h no longer counts.
	old := time.Now().UTC().Add(-25 * time.Hour)
	f.mutateParcel(t, deposited.ID, func(p *repository.Parcel) {
		p.LastPinGeneration = &old
	})
	parcel, _, err := f.svc.GeneratePinFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 1, parcel.PinGenerationCount)
}

func TestRegenerateToken(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")
	oldToken := *f.parcel(t, deposited.ID).PinGenerationToken

	parcel, newToken, err := f.svc.RegenerateToken(context.Background(), deposited.ID, "A@B.C", false)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, newToken)
	assert.Equal(t, newToken, *parcel.PinGenerationToken)

	// Old token is dead, new one works.
	_, _, err = f.svc.GeneratePinFromToken(context.Background(), oldToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, _, err = f.svc.GeneratePinFromToken(context.Background(), newToken)
	require.NoError(t, err)

	_, _, err = f.svc.RegenerateToken(context.Background(), deposited.ID, "someone@else.com", false)
	assert.ErrorIs(t, err, ErrEmailMismatch)

	_, _, err = f.svc.RegenerateToken(context.Background(), "missing", "a@b.c", false)
	assert.ErrorIs(t, err, ErrParcelNotFound)
}

func TestRegenerateTokenAdminResetsCounter(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	opts.MaxDailyPinGenerations = 1
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")
	token := *f.parcel(t, deposited.ID).PinGenerationToken

	_, _, err := f.svc.GeneratePinFromToken(context.Background(), token)
	require.NoError(t, err)
	_, _, err = f.svc.GeneratePinFromToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrPinLimitReached)

	_, newToken, err := f.svc.RegenerateToken(context.Background(), deposited.ID, "a@b.c", true)
	require.NoError(t, err)
	_, _, err = f.svc.GeneratePinFromToken(context.Background(), newToken)
	require.NoError(t, err)
}

func TestRequestPinRegenerationGenericMessage(t *testing.T) {
	opts := defaultOptions()
	opts.EmailTokenIssuance = true
	f := newFixture(t, opts)
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	depositOne(t, f, "a@b.c")

	// Matching request sends mail.
	f.sender.EXPECT().Send(gomock.Any(), "a@b.c", gomock.Any(), gomock.Any()).Return(nil)
	msg, err := f.svc.RequestPinRegenerationByEmailAndLocker(context.Background(), "a@b.c", "L1")
	require.NoError(t, err)
	assert.Equal(t, GenericRegenerationMessage, msg)

	// Non-matching request returns the same message and sends nothing.
	msg, err = f.svc.RequestPinRegenerationByEmailAndLocker(context.Background(), "wrong@b.c", "L1")
	require.NoError(t, err)
	assert.Equal(t, GenericRegenerationMessage, msg)
}

func TestRetractDeposit(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")

	parcel, err := f.svc.RetractDeposit(context.Background(), deposited.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ParcelRetracted, parcel.Status)
	assert.Equal(t, repository.LockerFree, f.locker(t, "L1").Status)

	// Only deposited parcels can be retracted.
	_, err = f.svc.RetractDeposit(context.Background(), deposited.ID)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, repository.ParcelRetracted, stateErr.Actual)
}

func TestRetractDepositKeepsOutOfServiceLocker(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")

	_, err := f.svc.SetLockerStatus(context.Background(), Actor{Username: "admin"}, "L1", repository.LockerOutOfService)
	require.NoError(t, err)

	_, err = f.svc.RetractDeposit(context.Background(), deposited.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.LockerOutOfService, f.locker(t, "L1").Status)
}

func TestDisputePickup(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")

	// Dispute before pickup is rejected.
	_, err := f.svc.DisputePickup(context.Background(), deposited.ID)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)

	_, err = f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)

	parcel, err := f.svc.DisputePickup(context.Background(), deposited.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ParcelPickupDisputed, parcel.Status)
	assert.Equal(t, repository.LockerDisputedContents, f.locker(t, "L1").Status)
}

func TestReportMissingByRecipient(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, _ := depositOne(t, f, "a@b.c")

	parcel, err := f.svc.ReportMissingByRecipient(context.Background(), deposited.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ParcelMissing, parcel.Status)
	assert.Equal(t, repository.LockerOutOfService, f.locker(t, "L1").Status)

	// Not valid from missing.
	_, err = f.svc.ReportMissingByRecipient(context.Background(), deposited.ID)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestMarkMissingByAdmin(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")

	_, err := f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)

	actor := Actor{ID: "u1", Username: "admin"}
	parcel, changed, err := f.svc.MarkMissingByAdmin(context.Background(), actor, deposited.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, repository.ParcelMissing, parcel.Status)
	assert.Equal(t, repository.LockerOutOfService, f.locker(t, "L1").Status)

	// Idempotent: second call is a reported no-op without a fresh audit entry.
	before := len(f.recorder.actions())
	parcel, changed, err = f.svc.MarkMissingByAdmin(context.Background(), actor, deposited.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, repository.ParcelMissing, parcel.Status)
	assert.Len(t, f.recorder.actions(), before)

	_, _, err = f.svc.MarkMissingByAdmin(context.Background(), actor, "missing-id")
	assert.ErrorIs(t, err, ErrParcelNotFound)
}

func TestSetLockerStatus(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	actor := Actor{ID: "u1", Username: "admin"}

	locker, err := f.svc.SetLockerStatus(context.Background(), actor, "L1", repository.LockerOutOfService)
	require.NoError(t, err)
	assert.Equal(t, repository.LockerOutOfService, locker.Status)

	// Same status again is a no-op success.
	_, err = f.svc.SetLockerStatus(context.Background(), actor, "L1", repository.LockerOutOfService)
	require.NoError(t, err)

	_, err = f.svc.SetLockerStatus(context.Background(), actor, "L1", "melted")
	assert.ErrorIs(t, err, ErrInvalidLockerStatus)

	_, err = f.svc.SetLockerStatus(context.Background(), actor, "nope", repository.LockerFree)
	assert.ErrorIs(t, err, ErrLockerNotFound)
}

func TestSetLockerStatusRefusesFreeingOccupiedLocker(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)
	deposited, plaintext := depositOne(t, f, "a@b.c")
	actor := Actor{Username: "admin"}

	_, err := f.svc.SetLockerStatus(context.Background(), actor, "L1", repository.LockerFree)
	assert.ErrorIs(t, err, ErrLockerHoldsActiveParcel)
	assert.Equal(t, repository.ParcelDeposited, f.parcel(t, deposited.ID).Status)

	_, err = f.svc.ProcessPickup(context.Background(), plaintext)
	require.NoError(t, err)

	// After pickup the locker no longer holds an active parcel.
	_, err = f.svc.SetLockerStatus(context.Background(), actor, "L1", repository.LockerOutOfService)
	require.NoError(t, err)
	_, err = f.svc.SetLockerStatus(context.Background(), actor, "L1", repository.LockerFree)
	require.NoError(t, err)
}

func TestMarkLockerEmptied(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerAwaitingCollection)
	f.addLocker(t, "L2", repository.SizeMedium, repository.LockerFree)
	actor := Actor{Username: "staff"}

	locker, err := f.svc.MarkLockerEmptied(context.Background(), actor, "L1")
	require.NoError(t, err)
	assert.Equal(t, repository.LockerFree, locker.Status)

	var lockerErr *LockerStateError
	_, err = f.svc.MarkLockerEmptied(context.Background(), actor, "L2")
	assert.ErrorAs(t, err, &lockerErr)

	_, err = f.svc.MarkLockerEmptied(context.Background(), actor, "nope")
	assert.ErrorIs(t, err, ErrLockerNotFound)
}

func TestSetLockerSensor(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.addLocker(t, "L1", repository.SizeMedium, repository.LockerFree)

	require.NoError(t, f.svc.SetLockerSensor(context.Background(), "L1", true))
	locker := f.locker(t, "L1")
	require.NotNil(t, locker.SensorOccupied)
	assert.True(t, *locker.SensorOccupied)
	// Sensor reading never moves the state machine.
	assert.Equal(t, repository.LockerFree, locker.Status)

	assert.ErrorIs(t, f.svc.SetLockerSensor(context.Background(), "nope", false), ErrLockerNotFound)
}

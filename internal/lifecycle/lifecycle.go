// Package lifecycle implements the parcel/locker state machine: deposit, PIN
// issuance, pickup, retraction, dispute, missing reports, and the admin
// locker operations. Every transition runs in one transaction (parcel row
// locked first, then its locker) and emits exactly one audit entry after
// commit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/allocator"
	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/metrics"
	"github.com/Rat-cell/lockerhub/internal/notify"
	"github.com/Rat-cell/lockerhub/internal/pin"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

const maxEmailLength = 254

// Actor identifies the operator behind an admin action for audit purposes.
type Actor struct {
	ID       string
	Username string
}

// Options fixes the issuance policy at construction time. EmailTokenIssuance
// selects between the two PIN models: when true a deposit yields an emailed
// PIN-generation link; when false the PIN is generated and mailed at deposit
// time.
type Options struct {
	PinValidity            time.Duration
	TokenValidity          time.Duration
	MaxDailyPinGenerations int
	EmailTokenIssuance     bool
	PublicBaseURL          string
}

type Service struct {
	txm      storage.TxManager
	parcels  storage.ParcelRepository
	lockers  storage.LockerRepository
	alloc    *allocator.Allocator
	audit    audit.Recorder
	notifier notify.Sender
	logger   *zap.Logger
	opts     Options
}

func New(
	txm storage.TxManager,
	parcels storage.ParcelRepository,
	lockers storage.LockerRepository,
	alloc *allocator.Allocator,
	recorder audit.Recorder,
	notifier notify.Sender,
	logger *zap.Logger,
	opts Options,
) *Service {
	return &Service{
		txm:      txm,
		parcels:  parcels,
		lockers:  lockers,
		alloc:    alloc,
		audit:    recorder,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// Deposit reserves a locker, creates the parcel, and issues either a PIN
// (immediate mode; returned as plaintext) or a PIN-generation token (email
// mode; plaintext return is empty). When no locker of the size is free,
// nothing is created and ErrNoAvailability is returned.
func (s *Service) Deposit(ctx context.Context, size repository.LockerSize, recipientEmail string) (*repository.Parcel, string, error) {
	if err := validateEmail(recipientEmail); err != nil {
		return nil, "", err
	}
	if !repository.ValidLockerSize(size) {
		return nil, "", ErrInvalidSize
	}

	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	locker, err := s.alloc.ReserveTx(ctx, tx, size)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	depositedAt := now
	parcel := &repository.Parcel{
		ID:             uuid.NewString(),
		LockerID:       &locker.ID,
		RecipientEmail: recipientEmail,
		Status:         repository.ParcelDeposited,
		DepositedAt:    &depositedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var plaintextPin string
	if s.opts.EmailTokenIssuance {
		token, err := pin.NewToken()
		if err != nil {
			return nil, "", fmt.Errorf("failed to issue pin token: %w", err)
		}
		expiry := now.Add(s.opts.TokenValidity)
		parcel.PinGenerationToken = &token
		parcel.PinGenerationTokenExpiry = &expiry
	} else {
		plaintext, hash, err := pin.Generate()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate pin: %w", err)
		}
		expiry := now.Add(s.opts.PinValidity)
		parcel.PinHash = &hash
		parcel.OtpExpiry = &expiry
		plaintextPin = plaintext
	}

	if err := s.parcels.CreateTx(ctx, tx, parcel); err != nil {
		return nil, "", fmt.Errorf("failed to create parcel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit deposit: %w", err)
	}

	metrics.ParcelsDepositedTotal.Inc()
	s.audit.Record(ctx, audit.Entry{
		Timestamp: now,
		Action:    "parcel_deposited",
		ParcelID:  parcel.ID,
		LockerID:  locker.ID,
		NewStatus: string(repository.ParcelDeposited),
		Details:   map[string]interface{}{"size": string(size)},
	})

	s.sendDepositNotification(ctx, parcel, locker, plaintextPin)
	return parcel, plaintextPin, nil
}

func (s *Service) sendDepositNotification(ctx context.Context, parcel *repository.Parcel, locker *repository.Locker, plaintextPin string) {
	var subject, body string
	if s.opts.EmailTokenIssuance {
		subject, body = notify.TokenIssuedMessage(s.tokenLink(*parcel.PinGenerationToken), int(s.opts.TokenValidity.Hours()))
	} else {
		subject, body = notify.PinIssuedMessage(plaintextPin, locker.Location, int(s.opts.PinValidity.Hours()))
	}
	if err := s.notifier.Send(ctx, parcel.RecipientEmail, subject, body); err != nil {
		// Best-effort: the deposit is committed; the recipient can always
		// request regeneration.
		s.logger.Warn("failed to send deposit notification",
			zap.String("parcel_id", parcel.ID), zap.Error(err))
	}
}

// GeneratePinFromToken creates a fresh PIN for the parcel behind an emailed
// token link. The token stays valid until it expires or is replaced, so the
// daily generation counter is what bounds repeated use.
func (s *Service) GeneratePinFromToken(ctx context.Context, token string) (*repository.Parcel, string, error) {
	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	parcel, err := s.parcels.GetByTokenTx(ctx, tx, token)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, "", ErrTokenNotFound
		}
		return nil, "", fmt.Errorf("failed to look up token: %w", err)
	}

	if parcel.Status != repository.ParcelDeposited {
		return nil, "", &StateError{Required: []repository.ParcelStatus{repository.ParcelDeposited}, Actual: parcel.Status}
	}

	now := time.Now().UTC()
	if parcel.PinGenerationTokenExpiry == nil || now.After(*parcel.PinGenerationTokenExpiry) {
		return nil, "", ErrTokenExpired
	}

	// The counter covers a rolling day: a generation older than 24h no
	// longer counts against the limit.
	count := parcel.PinGenerationCount
	if parcel.LastPinGeneration != nil && now.Sub(*parcel.LastPinGeneration) > 24*time.Hour {
		count = 0
	}
	if count >= s.opts.MaxDailyPinGenerations {
		return nil, "", ErrPinLimitReached
	}

	plaintext, hash, err := pin.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate pin: %w", err)
	}

	pinExpiry := now.Add(s.opts.PinValidity)
	parcel.PinHash = &hash
	parcel.OtpExpiry = &pinExpiry
	parcel.PinGenerationCount = count + 1
	parcel.LastPinGeneration = &now

	if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
		return nil, "", fmt.Errorf("failed to store pin: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit pin generation: %w", err)
	}

	metrics.PinsGeneratedTotal.Inc()
	s.audit.Record(ctx, audit.Entry{
		Timestamp: now,
		Action:    "pin_generated",
		ParcelID:  parcel.ID,
		LockerID:  derefOrEmpty(parcel.LockerID),
		Details:   map[string]interface{}{"generation_count": parcel.PinGenerationCount},
	})
	return parcel, plaintext, nil
}

// RegenerateToken issues a replacement PIN-generation token. The daily
// counter is reset on admin request or when the previous generation happened
// on an earlier calendar day. Mailing the new link is the caller's job.
func (s *Service) RegenerateToken(ctx context.Context, parcelID, recipientEmail string, adminReset bool) (*repository.Parcel, string, error) {
	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	parcel, err := s.parcels.GetByIDTx(ctx, tx, parcelID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, "", ErrParcelNotFound
		}
		return nil, "", fmt.Errorf("failed to get parcel: %w", err)
	}

	if !strings.EqualFold(parcel.RecipientEmail, recipientEmail) {
		return nil, "", ErrEmailMismatch
	}
	if parcel.Status != repository.ParcelDeposited {
		return nil, "", &StateError{Required: []repository.ParcelStatus{repository.ParcelDeposited}, Actual: parcel.Status}
	}

	token, err := pin.NewToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue pin token: %w", err)
	}

	now := time.Now().UTC()
	expiry := now.Add(s.opts.TokenValidity)
	parcel.PinGenerationToken = &token
	parcel.PinGenerationTokenExpiry = &expiry

	if adminReset || generationOnEarlierDay(parcel.LastPinGeneration, now) {
		parcel.PinGenerationCount = 0
	}

	if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit token regeneration: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Timestamp: now,
		Action:    "pin_token_regenerated",
		ParcelID:  parcel.ID,
		LockerID:  derefOrEmpty(parcel.LockerID),
		Details:   map[string]interface{}{"admin_reset": adminReset},
	})
	return parcel, token, nil
}

// RequestPinRegenerationByEmailAndLocker handles the public "I lost my PIN"
// form. The response message is identical whether or not the details matched
// an active deposit.
func (s *Service) RequestPinRegenerationByEmailAndLocker(ctx context.Context, email, lockerID string) (string, error) {
	parcel, err := s.parcels.GetDepositedByEmailAndLocker(ctx, email, lockerID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			s.logger.Info("pin regeneration request did not match a deposit",
				zap.String("locker_id", lockerID))
			return GenericRegenerationMessage, nil
		}
		return "", fmt.Errorf("failed to look up deposit: %w", err)
	}

	parcel, token, err := s.RegenerateToken(ctx, parcel.ID, email, false)
	if err != nil {
		if IsBusinessError(err) {
			// The deposit changed between lookup and regeneration; reveal
			// nothing either way.
			return GenericRegenerationMessage, nil
		}
		return "", err
	}

	subject, body := notify.TokenIssuedMessage(s.tokenLink(token), int(s.opts.TokenValidity.Hours()))
	if err := s.notifier.Send(ctx, parcel.RecipientEmail, subject, body); err != nil {
		s.logger.Warn("failed to send regeneration mail",
			zap.String("parcel_id", parcel.ID), zap.Error(err))
	}
	return GenericRegenerationMessage, nil
}

// ProcessPickup scans deposited parcels and verifies the candidate PIN
// against each stored hash. The scan is O(n) in deposited-parcel count,
// which is fine for a single locker bank. A matched but expired PIN moves
// the parcel to 'expired' and leaves the locker untouched.
func (s *Service) ProcessPickup(ctx context.Context, candidatePin string) (*repository.Parcel, error) {
	candidates, err := s.parcels.GetDepositedWithPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposited parcels: %w", err)
	}

	var matched *repository.Parcel
	for _, candidate := range candidates {
		if pin.Verify(*candidate.PinHash, candidatePin) {
			matched = candidate
			break
		}
	}
	if matched == nil {
		return nil, ErrInvalidPin
	}

	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	// Re-read under lock: a concurrent pickup may have claimed the parcel
	// between scan and write. The status guard decides, not the snapshot.
	parcel, err := s.parcels.GetByIDTx(ctx, tx, matched.ID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrInvalidPin
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}
	if parcel.Status != repository.ParcelDeposited || parcel.PinHash == nil || *parcel.PinHash != *matched.PinHash {
		return nil, ErrInvalidPin
	}

	now := time.Now().UTC()
	if parcel.OtpExpiry == nil || now.After(*parcel.OtpExpiry) {
		oldStatus := parcel.Status
		parcel.Status = repository.ParcelExpired
		if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
			return nil, fmt.Errorf("failed to expire parcel: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit expiry: %w", err)
		}
		s.audit.Record(ctx, audit.Entry{
			Timestamp: now,
			Action:    "pin_expired",
			ParcelID:  parcel.ID,
			LockerID:  derefOrEmpty(parcel.LockerID),
			OldStatus: string(oldStatus),
			NewStatus: string(repository.ParcelExpired),
		})
		return parcel, ErrPinExpired
	}

	var lockerID string
	if parcel.LockerID != nil {
		lockerID = *parcel.LockerID
		locker, err := s.lockers.GetByIDTx(ctx, tx, lockerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get locker: %w", err)
		}
		wasOutOfService := locker.Status == repository.LockerOutOfService
		if err := s.alloc.ReleaseTx(ctx, tx, lockerID, wasOutOfService); err != nil {
			return nil, err
		}
	}

	oldStatus := parcel.Status
	parcel.Status = repository.ParcelPickedUp
	parcel.PickedUpAt = &now
	if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
		return nil, fmt.Errorf("failed to update parcel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pickup: %w", err)
	}

	metrics.ParcelsPickedUpTotal.Inc()
	s.audit.Record(ctx, audit.Entry{
		Timestamp: now,
		Action:    "parcel_picked_up",
		ParcelID:  parcel.ID,
		LockerID:  lockerID,
		OldStatus: string(oldStatus),
		NewStatus: string(repository.ParcelPickedUp),
	})
	return parcel, nil
}

// RetractDeposit returns a deposited parcel to its sender before pickup.
func (s *Service) RetractDeposit(ctx context.Context, parcelID string) (*repository.Parcel, error) {
	return s.transition(ctx, "deposit_retracted", parcelID, Actor{},
		[]repository.ParcelStatus{repository.ParcelDeposited},
		repository.ParcelRetracted,
		releaseLockerPreservingOverride)
}

// DisputePickup flags a picked-up parcel whose contents the recipient
// disputes; the locker is held for inspection.
func (s *Service) DisputePickup(ctx context.Context, parcelID string) (*repository.Parcel, error) {
	return s.transition(ctx, "pickup_disputed", parcelID, Actor{},
		[]repository.ParcelStatus{repository.ParcelPickedUp},
		repository.ParcelPickupDisputed,
		func(repository.LockerStatus) (repository.LockerStatus, bool) {
			return repository.LockerDisputedContents, true
		})
}

// ReportMissingByRecipient marks a parcel the recipient reports as missing;
// the locker goes out of service for investigation.
func (s *Service) ReportMissingByRecipient(ctx context.Context, parcelID string) (*repository.Parcel, error) {
	return s.transition(ctx, "parcel_reported_missing", parcelID, Actor{},
		[]repository.ParcelStatus{repository.ParcelDeposited, repository.ParcelPickedUp},
		repository.ParcelMissing,
		func(repository.LockerStatus) (repository.LockerStatus, bool) {
			return repository.LockerOutOfService, true
		})
}

// MarkMissingByAdmin forces a parcel into 'missing' from any status. Marking
// an already-missing parcel is a no-op reported as success with no change.
func (s *Service) MarkMissingByAdmin(ctx context.Context, actor Actor, parcelID string) (*repository.Parcel, bool, error) {
	current, err := s.parcels.GetByID(ctx, parcelID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, false, ErrParcelNotFound
		}
		return nil, false, fmt.Errorf("failed to get parcel: %w", err)
	}
	if current.Status == repository.ParcelMissing {
		return current, false, nil
	}

	parcel, err := s.transition(ctx, "parcel_marked_missing", parcelID, actor,
		nil, // any status
		repository.ParcelMissing,
		func(repository.LockerStatus) (repository.LockerStatus, bool) {
			return repository.LockerOutOfService, true
		})
	if err != nil {
		return nil, false, err
	}
	return parcel, true, nil
}

// lockerEffect derives the locker's next status from its current one at
// transition time. The second return value is false when the locker is left
// untouched.
type lockerEffect func(current repository.LockerStatus) (repository.LockerStatus, bool)

// releaseLockerPreservingOverride frees the locker unless an admin took it
// out of service while it held the parcel. That override is load-bearing:
// blindly forcing 'free' would put a broken locker back into circulation.
func releaseLockerPreservingOverride(current repository.LockerStatus) (repository.LockerStatus, bool) {
	switch current {
	case repository.LockerOccupied:
		return repository.LockerFree, true
	case repository.LockerOutOfService:
		return repository.LockerOutOfService, false
	default:
		// Unexpected locker state; release to free.
		return repository.LockerFree, true
	}
}

// transition executes one row of the state machine: lock parcel, check the
// source-status guard, lock and adjust the locker, persist, commit, audit.
func (s *Service) transition(
	ctx context.Context,
	action string,
	parcelID string,
	actor Actor,
	validFrom []repository.ParcelStatus,
	target repository.ParcelStatus,
	effect lockerEffect,
) (*repository.Parcel, error) {
	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	parcel, err := s.parcels.GetByIDTx(ctx, tx, parcelID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrParcelNotFound
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}

	if validFrom != nil && !statusIn(parcel.Status, validFrom) {
		return nil, &StateError{Required: validFrom, Actual: parcel.Status}
	}

	var lockerID string
	if parcel.LockerID != nil {
		lockerID = *parcel.LockerID
		locker, err := s.lockers.GetByIDTx(ctx, tx, lockerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get locker: %w", err)
		}
		if next, change := effect(locker.Status); change && next != locker.Status {
			if err := s.lockers.UpdateStatusTx(ctx, tx, lockerID, next); err != nil {
				return nil, fmt.Errorf("failed to update locker: %w", err)
			}
		}
	} else {
		s.logger.Warn("transition on detached parcel, no locker side effect",
			zap.String("parcel_id", parcelID), zap.String("action", action))
	}

	oldStatus := parcel.Status
	parcel.Status = target
	if err := s.parcels.UpdateTx(ctx, tx, parcel); err != nil {
		return nil, fmt.Errorf("failed to update parcel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Timestamp:     time.Now().UTC(),
		Action:        action,
		ParcelID:      parcel.ID,
		LockerID:      lockerID,
		OldStatus:     string(oldStatus),
		NewStatus:     string(target),
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
	})
	return parcel, nil
}

// SetLockerStatus applies an admin override to a locker. Setting 'free' is
// refused while an active parcel still references the locker. Setting the
// status it already has is success with no change.
func (s *Service) SetLockerStatus(ctx context.Context, actor Actor, lockerID string, newStatus repository.LockerStatus) (*repository.Locker, error) {
	if !repository.ValidLockerStatus(newStatus) {
		return nil, ErrInvalidLockerStatus
	}

	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	locker, err := s.lockers.GetByIDTx(ctx, tx, lockerID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrLockerNotFound
		}
		return nil, fmt.Errorf("failed to get locker: %w", err)
	}

	if locker.Status == newStatus {
		return locker, nil
	}

	if newStatus == repository.LockerFree {
		if _, err := s.parcels.GetActiveByLockerTx(ctx, tx, lockerID); err == nil {
			return nil, ErrLockerHoldsActiveParcel
		} else if !errors.Is(err, repository.ErrObjectNotFound) {
			return nil, fmt.Errorf("failed to check locker occupancy: %w", err)
		}
	}

	oldStatus := locker.Status
	if err := s.lockers.UpdateStatusTx(ctx, tx, lockerID, newStatus); err != nil {
		return nil, fmt.Errorf("failed to update locker: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit locker status change: %w", err)
	}

	locker.Status = newStatus
	s.audit.Record(ctx, audit.Entry{
		Timestamp:     time.Now().UTC(),
		Action:        "locker_status_changed",
		LockerID:      lockerID,
		OldStatus:     string(oldStatus),
		NewStatus:     string(newStatus),
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
	})
	return locker, nil
}

// MarkLockerEmptied confirms staff collected a returned parcel from a locker
// in 'awaiting_collection' and returns the locker to circulation.
func (s *Service) MarkLockerEmptied(ctx context.Context, actor Actor, lockerID string) (*repository.Locker, error) {
	tx, err := s.txm.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	locker, err := s.lockers.GetByIDTx(ctx, tx, lockerID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrLockerNotFound
		}
		return nil, fmt.Errorf("failed to get locker: %w", err)
	}

	if locker.Status != repository.LockerAwaitingCollection {
		return nil, &LockerStateError{Required: repository.LockerAwaitingCollection, Actual: locker.Status}
	}

	if err := s.lockers.UpdateStatusTx(ctx, tx, lockerID, repository.LockerFree); err != nil {
		return nil, fmt.Errorf("failed to update locker: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit locker emptied: %w", err)
	}

	locker.Status = repository.LockerFree
	s.audit.Record(ctx, audit.Entry{
		Timestamp:     time.Now().UTC(),
		Action:        "locker_emptied",
		LockerID:      lockerID,
		OldStatus:     string(repository.LockerAwaitingCollection),
		NewStatus:     string(repository.LockerFree),
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
	})
	return locker, nil
}

// SetLockerSensor records the occupancy sensor reading for a locker. Plain
// overlay: no transition keys on it.
func (s *Service) SetLockerSensor(ctx context.Context, lockerID string, occupied bool) error {
	if err := s.lockers.UpdateSensor(ctx, lockerID, occupied); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return ErrLockerNotFound
		}
		return fmt.Errorf("failed to update sensor state: %w", err)
	}
	return nil
}

func (s *Service) tokenLink(token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/pin/" + token
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

func statusIn(status repository.ParcelStatus, set []repository.ParcelStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

// generationOnEarlierDay reports whether the last PIN generation happened
// on a UTC calendar day before now's.
func generationOnEarlierDay(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	ly, lm, ld := last.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ly != ny || lm != nm || ld != nd
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/Rat-cell/lockerhub/internal/repository"
)

// Business-rule violations are expected outcomes, reported as plain errors.
// Infrastructure failures are wrapped with %w and surfaced separately.
var (
	ErrInvalidEmail    = errors.New("invalid recipient email")
	ErrInvalidSize     = errors.New("invalid locker size")
	ErrParcelNotFound  = errors.New("parcel not found")
	ErrLockerNotFound  = errors.New("locker not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenExpired    = errors.New("token has expired")
	ErrPinLimitReached = errors.New("daily PIN generation limit reached")
	ErrInvalidPin      = errors.New("invalid PIN")
	ErrPinExpired      = errors.New("PIN has expired")
	ErrEmailMismatch   = errors.New("recipient email does not match")

	ErrInvalidLockerStatus     = errors.New("invalid locker status")
	ErrLockerHoldsActiveParcel = errors.New("locker still holds an active parcel")
)

// GenericRegenerationMessage is returned for every PIN-regeneration request
// regardless of whether the details matched, so the endpoint cannot be used
// to probe which emails or lockers exist.
const GenericRegenerationMessage = "If your details matched an active deposit, a new PIN link has been emailed to you."

// StateError rejects a transition fired against a parcel whose current
// status is not a valid source for the event.
type StateError struct {
	Required []repository.ParcelStatus
	Actual   repository.ParcelStatus
}

func (e *StateError) Error() string {
	if len(e.Required) == 1 {
		return fmt.Sprintf("parcel not in '%s' state (current: '%s')", e.Required[0], e.Actual)
	}
	return fmt.Sprintf("parcel not in a valid state for this action (current: '%s')", e.Actual)
}

// LockerStateError is the locker-side counterpart of StateError.
type LockerStateError struct {
	Required repository.LockerStatus
	Actual   repository.LockerStatus
}

func (e *LockerStateError) Error() string {
	return fmt.Sprintf("locker not in '%s' state (current: '%s')", e.Required, e.Actual)
}

// IsBusinessError reports whether err is an expected business outcome rather
// than an infrastructure failure.
func IsBusinessError(err error) bool {
	var stateErr *StateError
	var lockerStateErr *LockerStateError
	switch {
	case errors.As(err, &stateErr), errors.As(err, &lockerStateErr):
		return true
	}
	for _, known := range []error{
		ErrInvalidEmail, ErrInvalidSize, ErrParcelNotFound, ErrLockerNotFound,
		ErrTokenNotFound, ErrTokenExpired, ErrPinLimitReached, ErrInvalidPin,
		ErrPinExpired, ErrEmailMismatch, ErrInvalidLockerStatus, ErrLockerHoldsActiveParcel,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

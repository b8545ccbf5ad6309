package repository

import (
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("not found")

type LockerSize string

const (
	SizeSmall  LockerSize = "small"
	SizeMedium LockerSize = "medium"
	SizeLarge  LockerSize = "large"
)

func ValidLockerSize(s LockerSize) bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

type LockerStatus string

const (
	LockerFree               LockerStatus = "free"
	LockerOccupied           LockerStatus = "occupied"
	LockerOutOfService       LockerStatus = "out_of_service"
	LockerDisputedContents   LockerStatus = "disputed_contents"
	LockerAwaitingCollection LockerStatus = "awaiting_collection"
)

func ValidLockerStatus(s LockerStatus) bool {
	switch s {
	case LockerFree, LockerOccupied, LockerOutOfService, LockerDisputedContents, LockerAwaitingCollection:
		return true
	}
	return false
}

type ParcelStatus string

const (
	ParcelDeposited      ParcelStatus = "deposited"
	ParcelPickedUp       ParcelStatus = "picked_up"
	ParcelMissing        ParcelStatus = "missing"
	ParcelExpired        ParcelStatus = "expired"
	ParcelRetracted      ParcelStatus = "retracted_by_sender"
	ParcelPickupDisputed ParcelStatus = "pickup_disputed"
	ParcelAwaitingReturn ParcelStatus = "awaiting_return"
	ParcelReturnToSender ParcelStatus = "return_to_sender"
)

// ActiveParcelStatus reports whether a parcel in this status still ties up its
// locker. A locker referenced by an active parcel must never be 'free'.
func ActiveParcelStatus(s ParcelStatus) bool {
	return s == ParcelDeposited || s == ParcelPickupDisputed || s == ParcelMissing
}

type Locker struct {
	ID             string       `db:"id" json:"id"`
	Location       string       `db:"location" json:"location"`
	Size           LockerSize   `db:"size" json:"size"`
	Status         LockerStatus `db:"status" json:"status"`
	SensorOccupied *bool        `db:"sensor_occupied" json:"sensor_occupied,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

type Parcel struct {
	ID                       string       `db:"id"`
	LockerID                 *string      `db:"locker_id"`
	RecipientEmail           string       `db:"recipient_email"`
	Status                   ParcelStatus `db:"status"`
	PinHash                  *string      `db:"pin_hash"`
	OtpExpiry                *time.Time   `db:"otp_expiry"`
	DepositedAt              *time.Time   `db:"deposited_at"`
	PickedUpAt               *time.Time   `db:"picked_up_at"`
	PinGenerationToken       *string      `db:"pin_generation_token"`
	PinGenerationTokenExpiry *time.Time   `db:"pin_generation_token_expiry"`
	PinGenerationCount       int          `db:"pin_generation_count"`
	LastPinGeneration        *time.Time   `db:"last_pin_generation"`
	ReminderSentAt           *time.Time   `db:"reminder_sent_at"`
	CreatedAt                time.Time    `db:"created_at"`
	UpdatedAt                time.Time    `db:"updated_at"`
}

type AuditRecord struct {
	ID            int64     `db:"id"`
	Action        string    `db:"action"`
	Details       []byte    `db:"details"`
	ActorID       *string   `db:"actor_id"`
	ActorUsername *string   `db:"actor_username"`
	CreatedAt     time.Time `db:"created_at"`
}

type User struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Password string `db:"password"`
}

//go:generate mockgen -source ./notify.go -destination=./mocks/notify.go -package=mocks
package notify

import (
	"context"
	"fmt"
)

// Sender is the notification capability the lifecycle and sweep depend on.
// Sends happen after the business transaction commits and are best-effort: a
// failed send never rolls back parcel or locker state.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

func PinIssuedMessage(pin, lockerLocation string, validityHours int) (subject, body string) {
	subject = "Your parcel has arrived"
	body = fmt.Sprintf(
		"A parcel was deposited for you in locker %s.\n\nYour pickup PIN is %s. It is valid for %d hours.",
		lockerLocation, pin, validityHours)
	return subject, body
}

func TokenIssuedMessage(link string, validityHours int) (subject, body string) {
	subject = "Your parcel has arrived"
	body = fmt.Sprintf(
		"A parcel was deposited for you.\n\nOpen the link below to generate your pickup PIN. The link is valid for %d hours.\n\n%s",
		validityHours, link)
	return subject, body
}

func ReminderMessage(lockerLocation string) (subject, body string) {
	subject = "Reminder: your parcel is waiting"
	body = fmt.Sprintf(
		"Your parcel is still waiting in locker %s. Please pick it up before the storage period expires.",
		lockerLocation)
	return subject, body
}

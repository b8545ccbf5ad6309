package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ConsoleSender prints mails to stdout. Development stand-in for a real
// transport behind the same Sender capability.
type ConsoleSender struct {
	logger *zap.Logger
}

func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, recipient, subject, body string) error {
	select {
	case <-time.After(50 * time.Millisecond):
		fmt.Printf("\n--- MAIL (CONSOLE) ---\nTo: %s\nSubject: %s\n\n%s\n--- END MAIL ---\n", recipient, subject, body)
		return nil
	case <-ctx.Done():
		s.logger.Warn("mail send cancelled", zap.String("recipient", recipient), zap.String("subject", subject))
		return ctx.Err()
	}
}

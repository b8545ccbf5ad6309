package audit

import (
	"context"
	"time"
)

// Entry describes one business action. Exactly one entry accompanies every
// successful lifecycle transition; recording is best-effort and never rolls
// back the business transaction it describes.
type Entry struct {
	Timestamp     time.Time              `json:"timestamp"`
	Action        string                 `json:"action"`
	ParcelID      string                 `json:"parcel_id,omitempty"`
	LockerID      string                 `json:"locker_id,omitempty"`
	OldStatus     string                 `json:"old_status,omitempty"`
	NewStatus     string                 `json:"new_status,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	ActorUsername string                 `json:"actor_username,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Sink receives flushed batches from the Manager.
type Sink interface {
	WriteBatch(ctx context.Context, batch []Entry) error
}

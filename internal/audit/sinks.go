package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

// LogSink writes batches to the structured log. Used in development and as
// the fallback sink of last resort.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) WriteBatch(_ context.Context, batch []Entry) error {
	for _, entry := range batch {
		s.logger.Info("audit",
			zap.Time("timestamp", entry.Timestamp),
			zap.String("action", entry.Action),
			zap.String("parcel_id", entry.ParcelID),
			zap.String("locker_id", entry.LockerID),
			zap.String("old_status", entry.OldStatus),
			zap.String("new_status", entry.NewStatus),
			zap.String("actor", entry.ActorUsername),
			zap.Any("details", entry.Details))
	}
	return nil
}

// StoreSink appends batches to the audit_log table.
type StoreSink struct {
	repo storage.AuditLogRepository
}

func NewStoreSink(repo storage.AuditLogRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) WriteBatch(ctx context.Context, batch []Entry) error {
	records := make([]*repository.AuditRecord, 0, len(batch))
	for _, entry := range batch {
		details, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		record := &repository.AuditRecord{
			Action:    entry.Action,
			Details:   details,
			CreatedAt: entry.Timestamp,
		}
		if entry.ActorID != "" {
			actorID := entry.ActorID
			record.ActorID = &actorID
		}
		if entry.ActorUsername != "" {
			actorUsername := entry.ActorUsername
			record.ActorUsername = &actorUsername
		}
		records = append(records, record)
	}
	return s.repo.CreateBatch(ctx, records)
}

// OutboxSink enqueues one outbox task per entry; the outbox publisher drains
// the tasks into Kafka independently of the request path.
type OutboxSink struct {
	repo  storage.OutboxTaskRepository
	topic string
}

func NewOutboxSink(repo storage.OutboxTaskRepository, topic string) *OutboxSink {
	return &OutboxSink{repo: repo, topic: topic}
}

func (s *OutboxSink) WriteBatch(ctx context.Context, batch []Entry) error {
	for _, entry := range batch {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		task := &repository.OutboxTask{
			Payload:   payload,
			Topic:     s.topic,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue audit outbox task: %w", err)
		}
	}
	return nil
}

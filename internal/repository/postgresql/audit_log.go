package postgresql

import (
	"context"
	"fmt"

	"github.com/Rat-cell/lockerhub/internal/db"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

type AuditLogRepo struct {
	db db.DB
}

func NewAuditLogRepo(db db.DB) storage.AuditLogRepository {
	return &AuditLogRepo{db: db}
}

// CreateBatch appends the records one by one outside any business
// transaction. Audit is observational: a failed append is reported to the
// caller for logging, never propagated into the business path.
func (r *AuditLogRepo) CreateBatch(ctx context.Context, records []*repository.AuditRecord) error {
	for _, record := range records {
		_, err := r.db.Exec(ctx, `
            INSERT INTO audit_log (action, details, actor_id, actor_username, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, record.Action, record.Details, record.ActorID, record.ActorUsername, record.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
	}
	return nil
}

package server

import (
	"context"

	"github.com/Rat-cell/lockerhub/internal/audit"
)

// auditRecorderSink forwards request audits into the shared audit pipeline.
type auditRecorderSink struct {
	rec audit.Recorder
}

func NewAuditRecorderSink(rec audit.Recorder) AuditSink {
	return auditRecorderSink{rec: rec}
}

func (s auditRecorderSink) Record(ctx context.Context, entry RequestAudit) {
	s.rec.Record(ctx, audit.Entry{
		Timestamp:     entry.Timestamp,
		Action:        "http_request",
		ActorUsername: entry.Username,
		Details: map[string]interface{}{
			"method":      entry.Method,
			"path":        entry.Path,
			"status_code": entry.StatusCode,
			"request":     entry.Request,
			"response":    entry.Response,
		},
	})
}

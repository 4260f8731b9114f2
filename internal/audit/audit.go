// Package audit provides the append-only admin action log.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Logger appends audit records. In strict mode a write failure is
// returned to the caller; otherwise it is logged and swallowed so the
// primary state change stands. The reconciler bypasses this type and
// writes its audit row inside the status transaction.
type Logger struct {
	repo   domain.Repository
	strict bool
}

// NewLogger creates an audit logger.
func NewLogger(repo domain.Repository, strict bool) *Logger {
	return &Logger{repo: repo, strict: strict}
}

// Record appends one audit entry, filling ID and timestamp when unset.
func (l *Logger) Record(ctx context.Context, entry *domain.AdminLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := l.repo.AppendAdminLog(ctx, entry); err != nil {
		if l.strict {
			return err
		}
		slog.Error("audit log write failed",
			"action", entry.Action,
			"target_type", entry.TargetType,
			"target_id", entry.TargetID,
			"error", err,
		)
		return nil
	}
	return nil
}

// List returns the audit trail for a target, oldest first.
func (l *Logger) List(ctx context.Context, targetType, targetID string) ([]*domain.AdminLog, error) {
	return l.repo.ListAdminLogs(ctx, targetType, targetID)
}

package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the user performing a write, for audit purposes.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// recordAudit stores an audit entry. Failures are logged and never fail the
// calling operation.
func recordAudit(ctx context.Context, writer auditWriter, logger *zap.Logger, actor Actor, action, resource string, resourceID *string, oldValues, newValues interface{}) {
	if writer == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	entry.OldValues = marshalAuditValue(logger, oldValues)
	entry.NewValues = marshalAuditValue(logger, newValues)
	if err := writer.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func marshalAuditValue(logger *zap.Logger, value interface{}) []byte {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("failed to encode audit value", zap.Error(err))
		return nil
	}
	return data
}

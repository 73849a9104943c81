package peerbonus

import (
	"context"

	internalaudit "github.com/peerbonus/peerbonus-go/internal/audit"
	"github.com/sirupsen/logrus"
)

const (
	auditHydrated          = "session_hydrated"
	auditHydrationFailed   = "session_hydration_failed"
	auditLoginSuccess      = "login_success"
	auditLoginFailure      = "login_failure"
	auditRegisterSuccess   = "register_success"
	auditRegisterFailure   = "register_failure"
	auditLogout            = "logout"
	auditSessionSuperseded = "session_superseded"
	auditUnauthorized      = "session_unauthorized"
)

// NewLogrusSink returns an audit sink that logs through logger.
func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	return internalaudit.NewLogrusSink(logger)
}

func (m *Manager) emitAudit(ctx context.Context, eventType, userID string, success bool, err error, metadata map[string]string) {
	if m.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: m.now().UTC(),
		Type:      eventType,
		Instance:  m.instance,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.audit.Emit(context.WithoutCancel(ctx), event)
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}


package civix

import (
	"context"
	"io"

	internalaudit "github.com/civix-platform/civix/internal/audit"
	"github.com/civix-platform/civix/session"
	"github.com/sirupsen/logrus"
)

// Audit event types emitted by the Manager.
const (
	AuditSessionLogin          = "session_login"
	AuditSessionLogout         = "session_logout"
	AuditSessionRestored       = "session_restored"
	AuditProfileEnriched       = "profile_enriched"
	AuditProfileEnrichmentFail = "profile_enrichment_failed"
	AuditRemoteSignOutFailed   = "remote_sign_out_failed"
	AuditProfileUpdated        = "profile_updated"
	AuditProviderSignedOut     = "provider_signed_out"
	AuditSnapshotFallbackUsed  = "snapshot_fallback_used"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes audit events through a logrus logger.
type LogSink = internalaudit.LogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink returns a LogSink. A nil logger uses the logrus standard logger.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return internalaudit.NewLogSink(logger)
}

func (m *Manager) emitAudit(ctx context.Context, eventType string, user session.Session, success bool, err error, metadata map[string]string) {
	if m.audit == nil {
		return
	}
	event := AuditEvent{
		EventType: eventType,
		UserID:    user.UserID,
		DeviceID:  m.config.DeviceID,
		Success:   success,
		Metadata:  metadata,
	}
	if user.Role != "" {
		event.Role = user.Role.String()
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.audit.Emit(ctx, event)
}

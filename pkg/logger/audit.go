package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one sign-in or MFA outcome
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	Success       bool
	FailureReason string
}

// AuditLogger writes security events with audit_type set so they can be
// filtered out of the request log
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt records a credential check. Failures are logged at warn.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{slog.Bool("success", event.Success)}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.emit(level, "auth", event.EventType, attrs)
}

// LogAccountAction records a change to a user's security settings
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{slog.String("user_id", userID)}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	al.emit(slog.LevelInfo, "account", eventType, attrs)
}

func (al *AuditLogger) emit(level slog.Level, auditType, eventType string, attrs []slog.Attr) {
	attrs = append([]slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}, attrs...)
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

package observability

import (
	"context"
	"log/slog"
	"strings"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Audit emits a structured security-audit event. PII must be redacted by the
// caller before it reaches here; use MaskEmail for addresses and never pass
// raw user IDs or credential strings in attrs.
func Audit(ctx context.Context, eventName, outcome, reason, severity string, attrs ...any) {
	base := []any{
		"event_name", eventName,
		"outcome", outcome,
		"reason", reason,
		"severity", severity,
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit.event", base...)
}

// MaskEmail keeps the first character of the local part and the domain:
// "player@example.com" becomes "p***@example.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
